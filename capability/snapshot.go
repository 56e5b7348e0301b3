package capability

// View is the routing-relevant slice of a capability at snapshot time.
type View struct {
	Priority Priority
	Status   Status
	Seq      int
}

// Snapshot is an immutable point-in-time view of every capability's priority
// and status. The Router takes one snapshot per match so a single utterance is
// ranked against a consistent registry state.
type Snapshot struct {
	Version uint64
	views   map[string]View
}

// Lookup returns the view recorded for id.
func (s Snapshot) Lookup(id string) (View, bool) {
	v, ok := s.views[id]
	return v, ok
}

// Len returns the number of capabilities captured.
func (s Snapshot) Len() int {
	return len(s.views)
}

// Snapshot captures the current priority and status of every capability.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make(map[string]View, len(r.entries))
	for id, e := range r.entries {
		views[id] = View{
			Priority: e.capability.Priority,
			Status:   e.capability.Status,
			Seq:      e.seq,
		}
	}
	return Snapshot{Version: r.version, views: views}
}
