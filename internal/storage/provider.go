// Package storage defines the import inbox file-system abstraction.
package storage

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Batch file extensions accepted by List.
var Extensions = []string{".yaml", ".yml"}

// File describes one batch file in the inbox.
type File struct {
	Path     string    // relative to the inbox root
	Checksum string    // SHA-256 of the content
	ModTime  time.Time
}

// Provider is the interface for inbox file operations.
type Provider interface {
	// List returns every batch file under dir (relative to the inbox root),
	// skipping hidden files and the directories named in skip.
	List(dir string, skip ...string) ([]File, error)
	// Read returns the raw bytes of the file at path (relative to the inbox root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the inbox root).
	Write(path string, content []byte) error
	// Create is Write that fails with fs.ErrExist when path is taken.
	Create(path string, content []byte) error
	// Delete removes the file at path (relative to the inbox root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the inbox root).
	Move(oldPath, newPath string) error
	// Root returns the absolute inbox directory.
	Root() string
}

// IsBatchFile reports whether name has a batch file extension and is not hidden.
func IsBatchFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return slices.Contains(Extensions, ext) && len(base) > len(ext)
}
