package engine

import (
	"fmt"
	"time"

	"github.com/nodalsync/engine/internal/events"
	"github.com/nodalsync/engine/internal/validation"
)

// Config holds the engine's constructor inputs (§6) plus the tunables
// named throughout §4.3 and §4.5. Zero-value tunables are replaced with
// their spec defaults by New.
type Config struct {
	DatabaseURL string
	ServerURL   string
	Email       string
	APIKey      string
	APISecret   string

	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	EventQueueCap     int
	// TombstoneCycles is the number of full reconnect cycles a local
	// tombstone must survive before it is purged. Defaults to 1.
	TombstoneCycles int
}

func (c Config) withDefaults() Config {
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 45 * time.Second
	}
	if c.EventQueueCap <= 0 {
		c.EventQueueCap = events.DefaultQueueCap
	}
	if c.TombstoneCycles <= 0 {
		c.TombstoneCycles = 1
	}
	return c
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url cannot be empty")
	}
	if err := validation.ValidateServerURL(c.ServerURL); err != nil {
		return err
	}
	if err := validation.ValidateEmail(c.Email); err != nil {
		return err
	}
	if err := validation.ValidateAPIKey(c.APIKey); err != nil {
		return err
	}
	if err := validation.ValidateAPISecret(c.APISecret); err != nil {
		return err
	}
	return nil
}
