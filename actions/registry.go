// Package actions holds capability action handlers. Handlers are keyed by
// capability ID and action; the action "*" matches any action of its
// capability. A *Registry satisfies dispatch.Invoker so a Dispatcher can run
// registered handlers. The package-level functions use Default.
package actions

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Any registers a handler for every action of a capability.
const Any = "*"

// Handler performs one capability action.
type Handler func(ctx context.Context, call Call) error

// Call identifies the action being performed.
type Call struct {
	CapabilityID string
	Action       string
}

type key struct {
	capabilityID string
	action       string
}

// Registry holds action handlers. It is safe for concurrent use, and
// *Registry satisfies dispatch.Invoker.
type Registry struct {
	entries map[key]Handler
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[key]Handler)}
}

// Default is the registry behind the package-level functions.
var Default = NewRegistry()

// Register adds a handler for capabilityID and action.
// Returns ErrAlreadyExists if that pair is already registered.
func (r *Registry) Register(capabilityID, action string, handler Handler) error {
	if capabilityID == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{capabilityID: capabilityID, action: action}
	if _, exists := r.entries[k]; exists {
		return fmt.Errorf("%w: %s %s", ErrAlreadyExists, capabilityID, action)
	}

	r.entries[k] = handler
	return nil
}

// Replace swaps the handler of an existing registration.
// Returns ErrNotFound if the pair is not registered.
func (r *Registry) Replace(capabilityID, action string, handler Handler) error {
	if capabilityID == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{capabilityID: capabilityID, action: action}
	if _, exists := r.entries[k]; !exists {
		return fmt.Errorf("%w: %s %s", ErrNotFound, capabilityID, action)
	}

	r.entries[k] = handler
	return nil
}

// Get returns the handler for an action, falling back to the capability's
// Any handler.
func (r *Registry) Get(capabilityID, action string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.entries[key{capabilityID: capabilityID, action: action}]; ok {
		return h, true
	}
	h, ok := r.entries[key{capabilityID: capabilityID, action: Any}]
	return h, ok
}

// List returns every registered call, sorted by capability then action.
func (r *Registry) List() []Call {
	r.mu.RLock()
	defer r.mu.RUnlock()

	calls := make([]Call, 0, len(r.entries))
	for k := range r.entries {
		calls = append(calls, Call{CapabilityID: k.capabilityID, Action: k.action})
	}
	slices.SortFunc(calls, func(a, b Call) int {
		return cmp.Or(
			strings.Compare(a.CapabilityID, b.CapabilityID),
			strings.Compare(a.Action, b.Action),
		)
	})
	return calls
}

// Invoke runs the handler registered for capabilityID and action.
// Handler errors are wrapped with the call for context.
func (r *Registry) Invoke(ctx context.Context, capabilityID, action string) error {
	h, ok := r.Get(capabilityID, action)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, capabilityID, action)
	}

	if err := h(ctx, Call{CapabilityID: capabilityID, Action: action}); err != nil {
		return fmt.Errorf("action %s on %s failed: %w", action, capabilityID, err)
	}
	return nil
}

// Register adds a handler to Default.
func Register(capabilityID, action string, handler Handler) error {
	return Default.Register(capabilityID, action, handler)
}

// Replace swaps a handler in Default.
func Replace(capabilityID, action string, handler Handler) error {
	return Default.Replace(capabilityID, action, handler)
}

// Get looks up a handler in Default.
func Get(capabilityID, action string) (Handler, bool) {
	return Default.Get(capabilityID, action)
}

// List returns the calls registered in Default.
func List() []Call {
	return Default.List()
}

// Invoke runs a handler from Default.
func Invoke(ctx context.Context, capabilityID, action string) error {
	return Default.Invoke(ctx, capabilityID, action)
}
