// Package selection tracks which discovered sources the operator wants to record.
package selection

import (
	"slices"
	"sort"
	"sync"

	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Set is a concurrency-safe set of selected source keys. What a session
// records is always the intersection of the set with the live catalog.
type Set struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// New returns an empty set.
func New() *Set {
	return &Set{keys: make(map[string]struct{})}
}

// Select adds key. Selecting twice is the same as selecting once.
func (s *Set) Select(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = struct{}{}
}

// Deselect removes key. Removing an unselected key does nothing.
func (s *Set) Deselect(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
}

// Set selects or deselects key.
func (s *Set) Set(key string, selected bool) {
	if selected {
		s.Select(key)

		return
	}

	s.Deselect(key)
}

// SelectAll selects every source in catalog.
func (s *Set) SelectAll(catalog discovery.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range catalog.Keys() {
		s.keys[key] = struct{}{}
	}
}

// SelectNone clears the set.
func (s *Set) SelectNone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.keys)
}

// AutoSelectOwn selects catalog sources whose name is one of ownNames and
// returns the keys it selected.
func (s *Set) AutoSelectOwn(catalog discovery.Catalog, ownNames []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var picked []string

	for _, desc := range catalog.Descriptors() {
		if slices.Contains(ownNames, desc.Name) {
			s.keys[desc.Key] = struct{}{}
			picked = append(picked, desc.Key)
		}
	}

	return picked
}

// Prune deselects the given keys, typically the removed side of a catalog change.
func (s *Set) Prune(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.keys, key)
	}
}

// IsSelected reports whether key is stored in the set.
func (s *Set) IsSelected(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]

	return ok
}

// Keys returns the stored keys, sorted.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedLocked()
}

// Effective returns the selected descriptors present in catalog, sorted by
// key. Keys no longer in the catalog are dropped from the set.
func (s *Set) Effective(catalog discovery.Catalog) []stream.SourceDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []stream.SourceDescriptor

	for _, key := range s.sortedLocked() {
		desc, ok := catalog.Get(key)
		if !ok {
			delete(s.keys, key)

			continue
		}

		desc.Status = stream.StatusSelected
		out = append(out, desc)
	}

	return out
}

// Annotate returns the catalog's descriptors with Status reflecting the selection.
func (s *Set) Annotate(catalog discovery.Catalog) []stream.SourceDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	descs := catalog.Descriptors()
	for i := range descs {
		if _, ok := s.keys[descs[i].Key]; ok {
			descs[i].Status = stream.StatusSelected
		}
	}

	return descs
}

func (s *Set) sortedLocked() []string {
	keys := make([]string, 0, len(s.keys))
	for key := range s.keys {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
