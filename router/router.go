// Package router matches free-text utterances against registered command
// rules and resolves ambiguity with a deterministic total order:
// capability priority (descending), matched keywords (descending), then
// registration order (ascending).
package router

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/voice/capability"
)

// Rule binds an utterance matcher to a capability action. Rules are
// immutable once registered.
type Rule struct {
	ID           string
	Matcher      Matcher
	CapabilityID string
	Action       string
	Keywords     []string
}

// Match is a rule that matched an utterance, with the data used to rank it.
type Match struct {
	Rule       Rule
	Score      float64
	Keywords   int
	Priority   capability.Priority
	Normalized string

	seq int
}

type registeredRule struct {
	rule     Rule
	keywords []string
	seq      int
}

// Router evaluates utterances against registered rules. Thread-safe for
// concurrent matching and registration.
type Router struct {
	registry *capability.Registry

	mu    sync.RWMutex
	rules []registeredRule
	ids   map[string]struct{}
}

// New creates a Router that resolves rule priorities through registry.
func New(registry *capability.Registry) *Router {
	return &Router{
		registry: registry,
		ids:      make(map[string]struct{}),
	}
}

// Register adds a rule. The rule's capability must already be registered.
// Returns ErrInvalidRule for an empty ID or action, a nil matcher, or a
// duplicate ID; capability.ErrNotFound for an unknown capability.
func (r *Router) Register(rule Rule) error {
	switch {
	case rule.ID == "":
		return fmt.Errorf("%w: rule id is empty", ErrInvalidRule)
	case rule.Matcher == nil:
		return fmt.Errorf("%w: rule %s has no matcher", ErrInvalidRule, rule.ID)
	case rule.Action == "":
		return fmt.Errorf("%w: rule %s has no action", ErrInvalidRule, rule.ID)
	}

	if _, err := r.registry.Get(rule.CapabilityID); err != nil {
		return fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[rule.ID]; exists {
		return fmt.Errorf("%w: duplicate rule id %s", ErrInvalidRule, rule.ID)
	}

	rule.Keywords = slices.Clone(rule.Keywords)
	r.rules = append(r.rules, registeredRule{
		rule:     rule,
		keywords: normalizeAll(rule.Keywords),
		seq:      len(r.rules),
	})
	r.ids[rule.ID] = struct{}{}
	return nil
}

// Len returns the number of registered rules.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Rules returns the registered rules in registration order.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, len(r.rules))
	for i, rr := range r.rules {
		out[i] = rr.rule
	}
	return out
}

// Match returns the best-ranked rule for utterance, or ErrNoIntentMatch.
func (r *Router) Match(utterance string) (Match, error) {
	candidates := r.Candidates(utterance)
	if len(candidates) == 0 {
		return Match{}, ErrNoIntentMatch
	}
	return candidates[0], nil
}

// Candidates returns every matching rule in rank order. Rules whose
// capability is in the error status at snapshot time are excluded.
func (r *Router) Candidates(utterance string) []Match {
	normalized := Normalize(utterance)
	if normalized == "" {
		return nil
	}

	snap := r.registry.Snapshot()

	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	var matches []Match
	for _, rr := range rules {
		view, ok := snap.Lookup(rr.rule.CapabilityID)
		if !ok || view.Status == capability.StatusError {
			continue
		}

		score := rr.rule.Matcher.Match(normalized)
		if score <= 0 {
			continue
		}

		matches = append(matches, Match{
			Rule:       rr.rule,
			Score:      score,
			Keywords:   countKeywords(normalized, rr.keywords),
			Priority:   view.Priority,
			Normalized: normalized,
			seq:        rr.seq,
		})
	}

	slices.SortFunc(matches, compareMatches)
	return matches
}

func compareMatches(a, b Match) int {
	if a.Priority != b.Priority {
		return int(b.Priority) - int(a.Priority)
	}
	if a.Keywords != b.Keywords {
		return b.Keywords - a.Keywords
	}
	return a.seq - b.seq
}
