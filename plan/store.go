package plan

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPlanNotFound is returned when no plan is registered for a slug.
var ErrPlanNotFound = errors.New("plan: not found")

// Registry holds the active plan set, keyed by slug. Plans are loaded
// at startup from configuration and are read-mostly afterwards.
type Registry struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plans: make(map[string]Plan)}
}

// Put registers or replaces a plan. Slugs must be unique.
func (r *Registry) Put(p Plan) error {
	if p.Slug == "" {
		return fmt.Errorf("plan: %q has no slug", p.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.Slug] = p
	return nil
}

// Get resolves a plan by slug.
func (r *Registry) Get(slug string) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[slug]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrPlanNotFound, slug)
	}
	return p, nil
}

// Active lists plans with StatusActive.
func (r *Registry) Active() []Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plan, 0, len(r.plans))
	for _, p := range r.plans {
		if p.Status == StatusActive {
			out = append(out, p)
		}
	}
	return out
}
