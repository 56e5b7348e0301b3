package capability

import (
	"fmt"
	"sync"
)

type entry struct {
	capability Capability
	seq        int
}

// Registry manages capabilities by ID. Reads run concurrently; registration
// and status changes are serialized. Thread-safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	version uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a capability. Returns ErrConfiguration if the ID is empty,
// already registered, or the priority/status is invalid. A zero Status
// registers the capability as active; a zero Priority as medium.
func (r *Registry) Register(c Capability) error {
	if c.ID == "" {
		return fmt.Errorf("%w: capability id is empty", ErrConfiguration)
	}
	if c.Priority == 0 {
		c.Priority = PriorityMedium
	}
	if !c.Priority.IsValid() {
		return fmt.Errorf("%w: capability %s has invalid priority %d", ErrConfiguration, c.ID, c.Priority)
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: capability %s has invalid status %q", ErrConfiguration, c.ID, c.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[c.ID]; exists {
		return fmt.Errorf("%w: duplicate capability id %s", ErrConfiguration, c.ID)
	}

	r.entries[c.ID] = &entry{capability: c.Clone(), seq: len(r.order)}
	r.order = append(r.order, c.ID)
	r.version++
	return nil
}

// Get returns a copy of the capability registered under id.
func (r *Registry) Get(id string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[id]
	if !exists {
		return Capability{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.capability.Clone(), nil
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns copies of all capabilities matching pred, in registration order.
// A nil predicate matches everything.
func (r *Registry) List(pred Predicate) []Capability {
	if pred == nil {
		pred = All()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.order))
	for _, id := range r.order {
		c := r.entries[id].capability
		if pred(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// ListByCategory returns capabilities in the given category.
func (r *Registry) ListByCategory(category string) []Capability {
	return r.List(ByCategory(category))
}

// ListByType returns capabilities of the given type.
func (r *Registry) ListByType(typ string) []Capability {
	return r.List(ByType(typ))
}

// ListByPriority returns capabilities with the given priority.
func (r *Registry) ListByPriority(p Priority) []Capability {
	return r.List(ByPriority(p))
}

// SetStatus changes one capability's status and returns the previous status.
func (r *Registry) SetStatus(id string, status Status) (Status, error) {
	if !status.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrConfiguration, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := e.capability.Status
	if prev != status {
		e.capability.Status = status
		r.version++
	}
	return prev, nil
}

// BulkSetStatus sets status on every capability matching pred and returns
// the number of capabilities whose status actually changed. Matches that
// already hold status are not counted. A nil pred matches every capability.
func (r *Registry) BulkSetStatus(pred Predicate, status Status) (int, error) {
	if !status.IsValid() {
		return 0, fmt.Errorf("%w: invalid status %q", ErrConfiguration, status)
	}
	if pred == nil {
		pred = All()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, id := range r.order {
		e := r.entries[id]
		if !pred(e.capability) || e.capability.Status == status {
			continue
		}
		e.capability.Status = status
		changed++
	}
	if changed > 0 {
		r.version++
	}
	return changed, nil
}

// Claim checks that the capability can receive a dispatch right now. An
// inactive capability is activated in the same critical section when
// activate is true; otherwise ErrInactive is returned. Capabilities in the
// error status are never claimable.
func (r *Registry) Claim(id string, activate bool) (Capability, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return Capability{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	switch e.capability.Status {
	case StatusActive:
		return e.capability.Clone(), false, nil
	case StatusInactive:
		if !activate {
			return e.capability.Clone(), false, fmt.Errorf("%w: %s", ErrInactive, id)
		}
		e.capability.Status = StatusActive
		r.version++
		return e.capability.Clone(), true, nil
	default:
		return e.capability.Clone(), false, fmt.Errorf("%w: %s is in %s state", ErrInactive, id, e.capability.Status)
	}
}
