package provider

import (
	"sync"
	"time"
)

// Descriptor holds the routing-relevant capabilities of a provider.
// Descriptors come from configuration and are read-only at runtime.
type Descriptor struct {
	Name         string
	DefaultModel string
	// Strengths maps task category -> relative strength in [0,1].
	Strengths map[string]float64
	// CostTier ranks relative cost; 1 is cheapest.
	CostTier int
	// Priority weights the provider under the priority strategy.
	Priority int
	// Timeout is the per-invocation budget.
	Timeout time.Duration
}

// Strength returns the provider's strength for a category, 0 if unknown.
func (d Descriptor) Strength(category string) float64 {
	return d.Strengths[category]
}

// Registry pairs provider implementations with their descriptors.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	order   []string
}

type registryEntry struct {
	desc Descriptor
	impl Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds a provider with its descriptor. Re-registering a name
// replaces the previous entry but keeps its position in the ordering.
func (r *Registry) Register(impl Provider, desc Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; !exists {
		r.order = append(r.order, desc.Name)
	}
	r.entries[desc.Name] = registryEntry{desc: desc, impl: impl}
}

// Get returns the provider and descriptor for a name.
func (r *Registry) Get(name string) (Provider, Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.impl, e.desc, ok
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].desc)
	}
	return out
}

// Names returns registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
