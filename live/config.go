package live

import "time"

// Config holds WebSocket transport settings.
type Config struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout,omitempty"`
	WriteTimeout     time.Duration `yaml:"write_timeout,omitempty"`
	PingInterval     time.Duration `yaml:"ping_interval,omitempty"`

	// IdleTimeout closes connections that send nothing, pongs included.
	// Zero disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty"`

	MaxMessageBytes int64 `yaml:"max_message_bytes,omitempty"`
	OutboundBuffer  int   `yaml:"outbound_buffer,omitempty"`

	// AllowedOrigins restricts the Origin header. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     20 * time.Second,
		IdleTimeout:      60 * time.Second,
		MaxMessageBytes:  64 << 10,
		OutboundBuffer:   256,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.HandshakeTimeout > 0 {
		c.HandshakeTimeout = source.HandshakeTimeout
	}
	if source.WriteTimeout > 0 {
		c.WriteTimeout = source.WriteTimeout
	}
	if source.PingInterval > 0 {
		c.PingInterval = source.PingInterval
	}
	if source.IdleTimeout > 0 {
		c.IdleTimeout = source.IdleTimeout
	}
	if source.MaxMessageBytes > 0 {
		c.MaxMessageBytes = source.MaxMessageBytes
	}
	if source.OutboundBuffer > 0 {
		c.OutboundBuffer = source.OutboundBuffer
	}
	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = source.AllowedOrigins
	}
}
