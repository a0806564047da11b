// Package vfs provides the in-memory virtual filesystem that supplies skill
// bodies and reference material to running skills on demand. It is populated
// once at bootstrap and sealed read-only before any run starts, so a skill
// can never rewrite another skill's instructions mid-run.
package vfs

import (
	"fmt"
	"sort"
	"sync"
)

// ErrPathNotFound is returned when a read targets an unset path.
var ErrPathNotFound = fmt.Errorf("path not found")

// ErrSealed is returned when a write is attempted after Seal.
var ErrSealed = fmt.Errorf("filesystem is sealed")

// PathError wraps a path with the error that occurred on it.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// FS is an in-memory, path-keyed content store
type FS struct {
	files  map[string]string
	sealed bool
	mu     sync.RWMutex
}

// New creates an empty virtual filesystem
func New() *FS {
	return &FS{
		files: make(map[string]string),
	}
}

// Write stores content at path. Writes are only legal during bootstrap,
// before Seal is called.
func (fs *FS) Write(path, content string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sealed {
		return &PathError{Path: path, Err: ErrSealed}
	}

	fs.files[path] = content
	return nil
}

// Read returns the content stored at path
func (fs *FS) Read(path string) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	content, ok := fs.files[path]
	if !ok {
		return "", &PathError{Path: path, Err: ErrPathNotFound}
	}

	return content, nil
}

// Exists reports whether path is set
func (fs *FS) Exists(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, ok := fs.files[path]
	return ok
}

// Seal makes the filesystem read-only. Called once after bootstrap.
func (fs *FS) Seal() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.sealed = true
}

// Paths returns all stored paths in sorted order
func (fs *FS) Paths() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	paths := make([]string, 0, len(fs.files))
	for path := range fs.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

// Len returns the number of stored files
func (fs *FS) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return len(fs.files)
}
