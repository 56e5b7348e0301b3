package orchestrator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/voice/capability"
	"github.com/tailored-agentic-units/voice/dispatch"
	"github.com/tailored-agentic-units/voice/session"
)

const (
	defaultThreshold      = 0.5
	defaultListenTimeout  = 10 * time.Second
	defaultProcessTimeout = 8 * time.Second
)

// Config holds initialization parameters for the orchestrator and the
// subsystems it creates.
type Config struct {
	Session  session.Config  `yaml:"session"`
	Dispatch dispatch.Config `yaml:"dispatch"`

	// ConfidenceThreshold is the minimum recognition confidence that is
	// acted on. Lower-confidence results produce a clarification turn.
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty"`

	// MissingConfidence is used for results that carry no confidence.
	// Nil means 0, so unscored input is always clarified.
	MissingConfidence *float64 `yaml:"missing_confidence,omitempty"`

	ListenTimeout  time.Duration `yaml:"listen_timeout,omitempty"`
	ProcessTimeout time.Duration `yaml:"process_timeout,omitempty"`

	// Growth is applied to the relationship after every completed cycle.
	Growth session.Growth `yaml:"growth"`

	// Observers are names resolved through observability.GetObserver.
	Observers []string `yaml:"observers,omitempty"`

	// Manifest is an optional capability and rule manifest path.
	Manifest string `yaml:"manifest,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Session:             session.DefaultConfig(),
		Dispatch:            dispatch.DefaultConfig(),
		ConfidenceThreshold: defaultThreshold,
		ListenTimeout:       defaultListenTimeout,
		ProcessTimeout:      defaultProcessTimeout,
		Growth: session.Growth{
			Trust:       0.02,
			Familiarity: 0.05,
			Rapport:     0.03,
			Experiences: 1,
		},
		Observers: []string{"slog"},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Dispatch.Merge(&source.Dispatch)

	if source.ConfidenceThreshold > 0 {
		c.ConfidenceThreshold = source.ConfidenceThreshold
	}
	if source.MissingConfidence != nil {
		v := *source.MissingConfidence
		c.MissingConfidence = &v
	}
	if source.ListenTimeout > 0 {
		c.ListenTimeout = source.ListenTimeout
	}
	if source.ProcessTimeout > 0 {
		c.ProcessTimeout = source.ProcessTimeout
	}
	if source.Growth != (session.Growth{}) {
		c.Growth = source.Growth
	}
	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
	if source.Manifest != "" {
		c.Manifest = source.Manifest
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold %v outside [0,1]", capability.ErrConfiguration, c.ConfidenceThreshold)
	}
	if m := c.MissingConfidence; m != nil && (*m < 0 || *m > 1) {
		return fmt.Errorf("%w: missing_confidence %v outside [0,1]", capability.ErrConfiguration, *m)
	}
	if c.ListenTimeout < 0 || c.ProcessTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", capability.ErrConfiguration)
	}
	return nil
}

// confidence resolves an optional recognition confidence.
func (c *Config) confidence(conf *float64) float64 {
	if conf != nil {
		return *conf
	}
	if c.MissingConfidence != nil {
		return *c.MissingConfidence
	}
	return 0
}

// LoadConfig reads a YAML config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
