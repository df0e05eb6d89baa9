// Package marketplace implements the Capability Marketplace: the
// central coordinator owning the manifest store, isolation gate,
// executor dispatch, import/export, and discovery-agent fan-out
// (spec.md §4.7).
package marketplace

import (
	"sync"

	"github.com/ccos-project/ccos-core/manifest"
)

// Store is the concurrency-safe manifest registry: many concurrent
// readers are expected, mutators take the exclusive lock (spec.md §2,
// §5). It is the one place the marketplace's "single mutation holds the
// lock until the audit call returns" ordering guarantee (spec.md §4.5)
// is actually enforced.
type Store struct {
	mu        sync.RWMutex
	manifests map[string]*manifest.CapabilityManifest
}

// NewStore builds an empty manifest store.
func NewStore() *Store {
	return &Store{manifests: make(map[string]*manifest.CapabilityManifest)}
}

// Get returns the manifest for id, if registered.
func (s *Store) Get(id string) (*manifest.CapabilityManifest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[id]
	return m, ok
}

// Snapshot returns a defensive-copy list of every registered manifest.
func (s *Store) Snapshot() []*manifest.CapabilityManifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*manifest.CapabilityManifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m)
	}
	return out
}

// withLock runs fn holding the store's exclusive lock, giving callers a
// place to perform a mutation and its audit emission atomically, which
// is what spec.md §4.5's ordering guarantee depends on.
func (s *Store) withLock(fn func(manifests map[string]*manifest.CapabilityManifest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.manifests)
}
