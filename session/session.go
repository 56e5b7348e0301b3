// Package session stores conversation turn history, speech preferences, and
// relationship metrics per conversation session.
//
// History is append-only with non-decreasing timestamps. Relationship values
// live in [0,1] and only grow until ResetRelationship is called.
package session

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/voice/dispatch"
)

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// IsValid reports whether s is a known sender.
func (s Sender) IsValid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Kind distinguishes assistant replies from clarification prompts and notices.
type Kind string

const (
	KindUtterance     Kind = "utterance"
	KindReply         Kind = "reply"
	KindClarification Kind = "clarification"
	KindNotice        Kind = "notice"
)

// Turn is one recorded message. Turns are immutable once appended.
type Turn struct {
	ID         string           `json:"id"`
	Sender     Sender           `json:"sender"`
	Kind       Kind             `json:"kind"`
	Content    string           `json:"content"`
	Timestamp  time.Time        `json:"timestamp"`
	Confidence *float64         `json:"confidence,omitempty"`
	Intent     string           `json:"intent,omitempty"`
	Dispatch   *dispatch.Result `json:"dispatch,omitempty"`
}

func (t Turn) clone() Turn {
	if t.Confidence != nil {
		c := *t.Confidence
		t.Confidence = &c
	}
	if t.Dispatch != nil {
		d := *t.Dispatch
		t.Dispatch = &d
	}
	return t
}

// Preferences configures speech for a session.
type Preferences struct {
	Language string  `json:"language" yaml:"language"`
	Voice    string  `json:"voice,omitempty" yaml:"voice,omitempty"`
	Rate     float64 `json:"rate" yaml:"rate"`
	Pitch    float64 `json:"pitch" yaml:"pitch"`
}

// DefaultPreferences returns en-US at normal rate and pitch.
func DefaultPreferences() Preferences {
	return Preferences{Language: "en-US", Rate: 1.0, Pitch: 1.0}
}

// Normalize fills zero fields from defaults and clamps rate to [0.1,10] and
// pitch to [0,2].
func (p Preferences) Normalize() Preferences {
	def := DefaultPreferences()
	if p.Language == "" {
		p.Language = def.Language
	}
	if p.Rate == 0 {
		p.Rate = def.Rate
	}
	if p.Pitch == 0 {
		p.Pitch = def.Pitch
	}
	p.Rate = clamp(p.Rate, 0.1, 10)
	p.Pitch = clamp(p.Pitch, 0, 2)
	return p
}

// Relationship holds the cumulative rapport metrics for a session.
type Relationship struct {
	Trust             float64 `json:"trust"`
	Familiarity       float64 `json:"familiarity"`
	Rapport           float64 `json:"rapport"`
	SharedExperiences int     `json:"sharedExperiences"`
}

// Growth is the increment applied after a completed conversation cycle.
// Negative deltas are ignored.
type Growth struct {
	Trust       float64 `yaml:"trust"`
	Familiarity float64 `yaml:"familiarity"`
	Rapport     float64 `yaml:"rapport"`
	Experiences int     `yaml:"experiences"`
}

// Apply returns r advanced by g, clamped to [0,1].
func (r Relationship) Apply(g Growth) Relationship {
	r.Trust = clamp(r.Trust+max(g.Trust, 0), 0, 1)
	r.Familiarity = clamp(r.Familiarity+max(g.Familiarity, 0), 0, 1)
	r.Rapport = clamp(r.Rapport+max(g.Rapport, 0), 0, 1)
	r.SharedExperiences += max(g.Experiences, 0)
	return r
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Create registers a new session and returns its ID.
	Create(ctx context.Context, prefs Preferences) (string, error)
	// Append records turns in order. Missing IDs and zero timestamps are
	// filled in, and timestamps are raised to keep history non-decreasing.
	// The stored turns are returned.
	Append(ctx context.Context, id string, turns ...Turn) ([]Turn, error)
	// History returns a copy of every turn in append order.
	History(ctx context.Context, id string) ([]Turn, error)
	Preferences(ctx context.Context, id string) (Preferences, error)
	SetPreferences(ctx context.Context, id string, prefs Preferences) error
	Relationship(ctx context.Context, id string) (Relationship, error)
	// AdvanceRelationship applies g and returns the new values.
	AdvanceRelationship(ctx context.Context, id string, g Growth) (Relationship, error)
	ResetRelationship(ctx context.Context, id string) error
	Export(ctx context.Context, id string) (Export, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
