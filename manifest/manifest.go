// Package manifest loads capabilities and command rules from YAML.
//
//	capabilities:
//	  - id: smarty-core
//	    name: Smarty Core
//	    category: development
//	    priority: high
//	rules:
//	  - id: smart-code
//	    capability: smarty-core
//	    action: generate
//	    match:
//	      regex: 'generate\s+smart\s+code'
//
// A rule's match block holds exactly one of regex, phrase, all, or any.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/router"
)

// Manifest is a set of capabilities and the rules that route to them.
type Manifest struct {
	Capabilities []Capability `yaml:"capabilities"`
	Rules        []Rule       `yaml:"rules"`
}

// Capability is the manifest form of capability.Capability, with the
// priority spelled out by name.
type Capability struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name,omitempty"`
	Category     string   `yaml:"category,omitempty"`
	Type         string   `yaml:"type,omitempty"`
	Priority     string   `yaml:"priority,omitempty"`
	Status       string   `yaml:"status,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// Rule is the manifest form of router.Rule.
type Rule struct {
	ID         string   `yaml:"id"`
	Capability string   `yaml:"capability"`
	Action     string   `yaml:"action"`
	Keywords   []string `yaml:"keywords,omitempty"`
	Match      Match    `yaml:"match"`
}

// Match selects the rule's matcher.
type Match struct {
	Regex  string   `yaml:"regex,omitempty"`
	Phrase string   `yaml:"phrase,omitempty"`
	All    []string `yaml:"all,omitempty"`
	Any    []string `yaml:"any,omitempty"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes a manifest and validates every entry without registering
// anything.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", capability.ErrConfiguration, err)
	}

	for _, c := range m.Capabilities {
		if _, err := c.capability(); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Rules {
		if _, err := r.rule(); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// Apply registers the capabilities in reg and then the rules in rt. It stops
// at the first failure; entries registered before it stay registered.
func (m *Manifest) Apply(reg *capability.Registry, rt *router.Router) error {
	for _, c := range m.Capabilities {
		capab, err := c.capability()
		if err != nil {
			return err
		}
		if err := reg.Register(capab); err != nil {
			return err
		}
	}

	for _, r := range m.Rules {
		rule, err := r.rule()
		if err != nil {
			return err
		}
		if err := rt.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

func (c Capability) capability() (capability.Capability, error) {
	priority, err := capability.ParsePriority(c.Priority)
	if err != nil {
		return capability.Capability{}, fmt.Errorf("capability %s: %w", c.ID, err)
	}
	return capability.Capability{
		ID:           c.ID,
		Name:         c.Name,
		Category:     c.Category,
		Type:         c.Type,
		Priority:     priority,
		Status:       capability.Status(c.Status),
		Capabilities: c.Capabilities,
	}, nil
}

var errMatcher = errors.New("rule needs exactly one of regex, phrase, all, any")

func (r Rule) rule() (router.Rule, error) {
	matcher, err := r.Match.matcher()
	if err != nil {
		return router.Rule{}, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return router.Rule{
		ID:           r.ID,
		Matcher:      matcher,
		CapabilityID: r.Capability,
		Action:       r.Action,
		Keywords:     r.Keywords,
	}, nil
}

func (m Match) matcher() (router.Matcher, error) {
	set := 0
	for _, present := range []bool{m.Regex != "", m.Phrase != "", len(m.All) > 0, len(m.Any) > 0} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: %w", router.ErrInvalidRule, errMatcher)
	}

	switch {
	case m.Regex != "":
		return router.Regex(m.Regex)
	case m.Phrase != "":
		return router.Phrase(m.Phrase), nil
	case len(m.All) > 0:
		return router.AllKeywords(m.All...), nil
	default:
		return router.AnyKeyword(m.Any...), nil
	}
}
