package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string   `yaml:"name" toml:"name"`
	Dirs  []string `yaml:"dirs" toml:"dirs"`
	Port  int      `yaml:"port" toml:"port"`
	fail  bool
	valid int
}

func (s *sample) Validate() error {
	s.valid++
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAMLExpandsEnv(t *testing.T) {
	t.Setenv("NBSYNC_TEST_DIR", "/srv/notebooks")
	p := writeFile(t, "config.yaml", "name: docs\ndirs:\n  - ${NBSYNC_TEST_DIR}\nport: 9000\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "docs" || s.Port != 9000 || len(s.Dirs) != 1 || s.Dirs[0] != "/srv/notebooks" {
		t.Errorf("got %+v", s)
	}
	if s.valid != 1 {
		t.Errorf("Validate called %d times", s.valid)
	}
}

func TestLoad_TOML(t *testing.T) {
	p := writeFile(t, "config.toml", "name = \"docs\"\ndirs = [\"a\", \"b\"]\nport = 8081\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "docs" || s.Port != 8081 || strings.Join(s.Dirs, ",") != "a,b" {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := writeFile(t, "config.yaml", "name: x\n")
	s := sample{fail: true}
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadWithDefaults_FallsBack(t *testing.T) {
	def := writeFile(t, "default.yaml", "name: fallback\n")
	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &s); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if s.Name != "fallback" {
		t.Errorf("name = %q", s.Name)
	}
}
