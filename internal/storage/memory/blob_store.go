// Package memory stores snapshots and artifacts in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
)

// Store keeps snapshots and artifacts in maps keyed by name.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]crawler.Snapshot
	pages     map[string][]byte
	objects   map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		snapshots: make(map[string]crawler.Snapshot),
		pages:     make(map[string][]byte),
		objects:   make(map[string][]byte),
	}
}

// Put stores a copy of data under name.
func (s *Store) Put(_ context.Context, name string, sourceURL string, data []byte) (crawler.Snapshot, error) {
	if name == "" {
		return crawler.Snapshot{}, fmt.Errorf("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := crawler.Snapshot{URL: sourceURL, Path: "memory://" + name, FetchedAt: time.Now().UTC()}
	s.snapshots[snapshot.Path] = snapshot
	s.pages[snapshot.Path] = append([]byte(nil), data...)
	return snapshot, nil
}

// List returns the stored snapshots sorted by path.
func (s *Store) List(_ context.Context) ([]crawler.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns a copy of the snapshot body.
func (s *Store) Read(_ context.Context, snapshot crawler.Snapshot) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.pages[snapshot.Path]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found", snapshot.Path)
	}
	return append([]byte(nil), data...), nil
}

// Purge drops every snapshot. Artifacts are kept.
func (s *Store) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = make(map[string]crawler.Snapshot)
	s.pages = make(map[string][]byte)
	return nil
}

// PutObject persists the content and returns a URI.
func (s *Store) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns a copy of an artifact.
func (s *Store) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s not found", path)
	}
	return append([]byte(nil), data...), nil
}
