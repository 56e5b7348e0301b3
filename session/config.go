package session

import (
	"fmt"
	"log/slog"

	"github.com/tailored-agentic-units/voice/capability"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects and configures the session store.
type Config struct {
	Backend    string `yaml:"backend,omitempty"`     // "memory" (default) or "sqlite"
	Path       string `yaml:"path,omitempty"`        // SQLite database file
	ArchiveDir string `yaml:"archive_dir,omitempty"` // empty disables archiving
}

// DefaultConfig returns an in-memory store with archiving disabled.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.ArchiveDir != "" {
		c.ArchiveDir = source.ArchiveDir
	}
}

// New creates a Store from configuration.
func New(cfg *Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite backend requires a path", capability.ErrConfiguration)
		}
		return NewSQLStore(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("%w: unknown session backend %q", capability.ErrConfiguration, cfg.Backend)
	}
}

// NewArchive returns the configured Archive, or nil when archiving is disabled.
func (c *Config) NewArchive() *Archive {
	if c.ArchiveDir == "" {
		return nil
	}
	return NewArchive(c.ArchiveDir)
}
