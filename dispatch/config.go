package dispatch

import "time"

// Config holds dispatcher parameters.
type Config struct {
	// ActivationVerbs let an utterance activate an inactive capability.
	ActivationVerbs []string `yaml:"activation_verbs,omitempty"`

	// AutoActivate enables the activation policy. Nil means true.
	AutoActivate *bool `yaml:"auto_activate,omitempty"`

	// ActionTimeout bounds a single Invoke call. Zero disables the bound.
	ActionTimeout time.Duration `yaml:"action_timeout,omitempty"`
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		ActivationVerbs: []string{"activate", "enable", "turn on", "start"},
		ActionTimeout:   10 * time.Second,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.ActivationVerbs) > 0 {
		c.ActivationVerbs = source.ActivationVerbs
	}
	if source.AutoActivate != nil {
		v := *source.AutoActivate
		c.AutoActivate = &v
	}
	if source.ActionTimeout > 0 {
		c.ActionTimeout = source.ActionTimeout
	}
}

func (c *Config) autoActivate() bool {
	return c.AutoActivate == nil || *c.AutoActivate
}
