// Package routes maintains the persisted slug→storage-folder index, the
// single source of truth for resolving public slugs into filesystem locations.
package routes

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/plumekit/core/internal/pkg/fsutil"
)

// Service is the route index repository. It is constructed once, injected
// into every consumer, and guards its map with a single-writer lock; every
// mutation rewrites the persisted file atomically.
type Service struct {
	path string

	mu      sync.RWMutex
	entries map[string]string // slug -> storage folder name
}

// NewService loads the index at path. A missing file yields an empty index.
func NewService(path string) (*Service, error) {
	s := &Service{path: path, entries: make(map[string]string)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load() error {
	err := fsutil.ReadJSON(s.path, &s.entries)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = make(map[string]string)
			return nil
		}
		return fmt.Errorf("load route index %s: %w", s.path, err)
	}
	if s.entries == nil {
		s.entries = make(map[string]string)
	}
	return nil
}

// Resolve translates a public slug into its storage folder. The second return
// is false when the slug has no entry; that is the not-found signal, not an
// error.
func (s *Service) Resolve(slug string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.entries[slug]
	return folder, ok
}

// Has reports whether slug is present in the index.
func (s *Service) Has(slug string) bool {
	_, ok := s.Resolve(slug)
	return ok
}

// Slugs returns every indexed slug, sorted.
func (s *Service) Slugs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for slug := range s.entries {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Add records slug→folder and persists the full index.
func (s *Service) Add(slug, folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[slug] = folder
	return s.persistLocked()
}

// Remove drops the entry for slug and persists the full index. Removing an
// absent slug is a no-op.
func (s *Service) Remove(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[slug]; !ok {
		return nil
	}
	delete(s.entries, slug)
	return s.persistLocked()
}

// Update atomically applies fn to the index under the writer lock and
// persists the result if fn reports a change. Creation uses this to run the
// slug uniqueness scan and the insert as one critical section.
func (s *Service) Update(fn func(entries map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(s.entries) {
		return nil
	}
	return s.persistLocked()
}

func (s *Service) persistLocked() error {
	if err := fsutil.WriteJSONAtomic(s.path, s.entries); err != nil {
		return fmt.Errorf("persist route index %s: %w", s.path, err)
	}
	return nil
}
