// Package storage defines the file-system abstractions for documentation
// pages and the notebooks they reference.
package storage

import "github.com/starford/nbsync/internal/models"

// Provider is the interface for page file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to root).
	List(dir string) ([]models.PageMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
}
