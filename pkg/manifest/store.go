package manifest

import (
	"fmt"
	"sort"
	"sync"
)

// Store holds a target set of manifests keyed by (kind, namespace, name)
// with thread-safe operations.
type Store struct {
	manifests map[Key]*Manifest

	mu sync.RWMutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		manifests: make(map[Key]*Manifest),
	}
}

// DefaultStore builds the target set for one power-monitoring deployment:
// the exporter Service, the scrape and dashboard network policies, and the
// ServiceMonitor.
func DefaultStore(cfg StackConfig) (*Store, error) {
	s := NewStore()

	builders := []func(StackConfig) (*Manifest, error){
		KeplerService,
		KeplerNetworkPolicy,
		GrafanaNetworkPolicy,
		KeplerServiceMonitor,
	}
	for _, build := range builders {
		m, err := build(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Register(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds a manifest to the store. A duplicate key is an error: a
// target set that names the same object twice is ambiguous about which spec
// wins.
func (s *Store) Register(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := m.Key()
	if _, ok := s.manifests[key]; ok {
		return fmt.Errorf("duplicate manifest %s", key)
	}
	s.manifests[key] = m
	return nil
}

// Get retrieves a manifest by key.
func (s *Store) Get(key Key) (*Manifest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[key]
	return m, ok
}

// List returns all manifests in deterministic key order, so apply runs and
// report output are stable across invocations.
func (s *Store) List() []*Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.manifests))
	for k := range s.manifests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	out := make([]*Manifest, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.manifests[k])
	}
	return out
}

// Count returns the number of registered manifests.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.manifests)
}
