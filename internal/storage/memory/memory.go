// Package memory provides an in-memory BlobStore for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/berginj/glovebrand/internal/branding"
)

// Object is one stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// Store keeps blobs in a map. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New creates an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Put stores the blob, overwriting any previous object at the path.
func (s *Store) Put(_ context.Context, path string, contentType string, data []byte) (branding.ArtifactLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[path] = Object{ContentType: contentType, Data: copied}
	return branding.ArtifactLocation{Path: path, URL: "memory://" + path}, nil
}

// Get returns the blob at path.
func (s *Store) Get(_ context.Context, path string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return Object{}, fmt.Errorf("blob %q not found", path)
	}
	return obj, nil
}

// Len reports the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
