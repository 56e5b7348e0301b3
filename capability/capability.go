// Package capability holds the metadata for every addressable unit of
// functionality a voice session can route commands to. Capabilities are owned
// by a Registry and only change through Registry operations.
package capability

import (
	"fmt"
	"slices"
	"strings"
)

// Priority ranks capabilities when more than one command rule matches an
// utterance. Higher values win.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// String returns the lower-case priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// IsValid reports whether p is one of the defined priorities.
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// ParsePriority converts "high", "medium" or "low" (case-insensitive) into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "medium", "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("%w: unknown priority %q", ErrConfiguration, s)
	}
}

// Status is the activation state of a capability.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusError:
		return true
	}
	return false
}

// Capability describes an addressable unit of functionality.
type Capability struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Category     string   `json:"category" yaml:"category"`
	Type         string   `json:"type" yaml:"type"`
	Priority     Priority `json:"priority" yaml:"-"`
	Status       Status   `json:"status" yaml:"status"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// DisplayName returns Name, falling back to ID when Name is empty.
func (c Capability) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Clone returns a copy that shares no slices with c.
func (c Capability) Clone() Capability {
	c.Capabilities = slices.Clone(c.Capabilities)
	return c
}

// Predicate selects capabilities for list and bulk operations.
type Predicate func(Capability) bool

// All matches every capability.
func All() Predicate {
	return func(Capability) bool { return true }
}

// ByCategory matches capabilities in the given category.
func ByCategory(category string) Predicate {
	return func(c Capability) bool { return c.Category == category }
}

// ByType matches capabilities of the given type.
func ByType(typ string) Predicate {
	return func(c Capability) bool { return c.Type == typ }
}

// ByPriority matches capabilities with the given priority.
func ByPriority(p Priority) Predicate {
	return func(c Capability) bool { return c.Priority == p }
}

// ByStatus matches capabilities with the given status.
func ByStatus(s Status) Predicate {
	return func(c Capability) bool { return c.Status == s }
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(c Capability) bool {
		for _, p := range preds {
			if !p(c) {
				return false
			}
		}
		return true
	}
}
