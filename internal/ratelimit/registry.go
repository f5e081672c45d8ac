package ratelimit

import (
	"fmt"
	"sort"
	"sync"
)

// Settings describes one limiter in a Registry.
type Settings struct {
	RequestsPerSecond float64
	Burst             float64
}

// Registry holds one limiter per provider name. It is built at composition
// time and passed to the components that need it.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry builds limiters for every entry in settings.
func NewRegistry(settings map[string]Settings, opts ...Option) (*Registry, error) {
	r := &Registry{limiters: make(map[string]*Limiter, len(settings))}
	for name, s := range settings {
		lim, err := New(s.RequestsPerSecond, s.Burst, append([]Option{WithName(name)}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("limiter %q: %w", name, err)
		}
		r.limiters[name] = lim
	}
	return r, nil
}

// Get returns the limiter registered under name.
func (r *Registry) Get(name string) (*Limiter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	lim, ok := r.limiters[name]
	return lim, ok
}

// Set registers or replaces the limiter for name.
func (r *Registry) Set(name string, lim *Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiters == nil {
		r.limiters = make(map[string]*Limiter)
	}
	r.limiters[name] = lim
}

// Names lists registered limiter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
