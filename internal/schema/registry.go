package schema

import (
	"slices"
	"sync"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

// Registry indexes specs by kind and minimum version.
// It is filled once at startup and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	specs map[Kind][]*Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[Kind][]*Spec)}
}

// Add registers spec. A spec with the same kind and minimum version
// replaces the earlier one.
func (r *Registry) Add(spec *Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.specs[spec.Kind]
	for i, existing := range list {
		if existing.MinVersion.Compare(spec.MinVersion) == 0 {
			list[i] = spec
			return
		}
	}
	list = append(list, spec)
	slices.SortFunc(list, func(a, b *Spec) int {
		return a.MinVersion.Compare(b.MinVersion)
	})
	r.specs[spec.Kind] = list
}

// Get returns the spec with the highest minimum version <= v.
// A version older than every entry gets the oldest spec. A kind with no
// entries gets Permissive(kind). Get never fails.
func (r *Registry) Get(kind Kind, v version.Version) *Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.specs[kind]
	if len(list) == 0 {
		return Permissive(kind)
	}
	selected := list[0]
	for _, s := range list {
		if v.AtLeast(s.MinVersion) {
			selected = s
		}
	}
	return selected
}

// Entries returns the specs registered for kind, oldest first.
func (r *Registry) Entries(kind Kind) []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.specs[kind])
}

// Len returns the total number of registered specs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.specs {
		n += len(list)
	}
	return n
}
