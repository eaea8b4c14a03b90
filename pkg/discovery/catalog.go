package discovery

import (
	"sort"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Catalog is an immutable snapshot of the sources seen by one poll.
type Catalog struct {
	byKey map[string]stream.SourceDescriptor
	keys  []string
}

// NewCatalog builds a catalog. Later duplicates of a key replace earlier ones.
func NewCatalog(descs []stream.SourceDescriptor) Catalog {
	byKey := make(map[string]stream.SourceDescriptor, len(descs))

	for _, desc := range descs {
		if desc.Key == "" {
			desc.Key = stream.Key(desc.Name, desc.OriginID)
		}

		desc.Status = stream.StatusAvailable
		byKey[desc.Key] = desc
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return Catalog{byKey: byKey, keys: keys}
}

// Len returns the number of sources.
func (c Catalog) Len() int {
	return len(c.keys)
}

// Keys returns the sorted source keys.
func (c Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)

	return out
}

// Get returns the descriptor for key.
func (c Catalog) Get(key string) (stream.SourceDescriptor, bool) {
	desc, ok := c.byKey[key]

	return desc, ok
}

// Contains reports whether key is in the catalog.
func (c Catalog) Contains(key string) bool {
	_, ok := c.byKey[key]

	return ok
}

// Descriptors returns all descriptors sorted by key.
func (c Catalog) Descriptors() []stream.SourceDescriptor {
	out := make([]stream.SourceDescriptor, 0, len(c.keys))
	for _, key := range c.keys {
		out = append(out, c.byKey[key])
	}

	return out
}

// Change is the difference between two consecutive catalogs.
type Change struct {
	Added   []stream.SourceDescriptor
	Removed []stream.SourceDescriptor
	Catalog Catalog
}

// Changed reports whether any source appeared or disappeared.
func (c Change) Changed() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0
}

// RemovedKeys lists the keys of removed sources.
func (c Change) RemovedKeys() []string {
	keys := make([]string, 0, len(c.Removed))
	for _, desc := range c.Removed {
		keys = append(keys, desc.Key)
	}

	return keys
}

// Diff computes added = next \ prev and removed = prev \ next. Removed
// descriptors are reported as disconnected.
func Diff(prev, next Catalog) Change {
	change := Change{Catalog: next}

	for _, key := range next.keys {
		if !prev.Contains(key) {
			change.Added = append(change.Added, next.byKey[key])
		}
	}

	for _, key := range prev.keys {
		if !next.Contains(key) {
			desc := prev.byKey[key]
			desc.Status = stream.StatusDisconnected
			change.Removed = append(change.Removed, desc)
		}
	}

	return change
}
