package markdown

import "strings"

// Attributes is an ordered string mapping. A nil *Attributes behaves as an
// empty mapping for reads.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes returns an empty mapping.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// Set stores value under key, keeping the original position of an existing key.
func (a *Attributes) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value stored under key.
func (a *Attributes) Get(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[key]
	return v, ok
}

// Pop removes key and returns its value.
func (a *Attributes) Pop(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[key]
	if !ok {
		return "", false
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Len returns the number of entries.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns the keys in declaration order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Parts formats every entry as key=value, quoting values that contain spaces.
func (a *Attributes) Parts() []string {
	if a == nil {
		return nil
	}
	parts := make([]string, 0, len(a.keys))
	for _, k := range a.keys {
		v := a.values[k]
		if strings.Contains(v, " ") {
			parts = append(parts, k+`="`+v+`"`)
		} else {
			parts = append(parts, k+"="+v)
		}
	}
	return parts
}
