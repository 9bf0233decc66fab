package config

import (
	"fmt"
	"time"
)

// ORMConfig tunes the transaction layer and the background-task
// pipeline. The whole block is optional; DefaultORMConfig covers the
// common deployment.
type ORMConfig struct {
	// DefaultUser is the acting user id transactions fall back to when
	// a route configures none. 0 is the runtime's root user.
	DefaultUser int `koanf:"default_user"`

	// MaxRetries bounds how many times a read-only transaction is
	// reopened after a transient conflict before the conflict
	// surfaces to the client. 0 disables retrying. Note that when the
	// orm block is only partially configured, an unset max_retries
	// reads as 0.
	MaxRetries int `koanf:"max_retries"`

	// CompatVersion is the runtime compatibility version this
	// deployment tracks, e.g. "6.0". Versions before 5.1 need the
	// explicit cache Clean/Resets pair around every transaction.
	CompatVersion string `koanf:"compat_version"`

	// Queue is the asynq queue task submissions are enqueued on.
	Queue string `koanf:"queue"`

	// SweepInterval is how often the worker re-submits committed tasks
	// that never ran; SweepAge is how old a task must be to qualify.
	// The age must comfortably exceed normal broker latency or the
	// sweeper double-submits tasks that were about to run anyway
	// (harmless, the claim check catches it, but noisy).
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepAge      time.Duration `koanf:"sweep_age"`
}

// DefaultORMConfig is the configuration used when no orm block is
// provided at all.
func DefaultORMConfig() *ORMConfig {
	return &ORMConfig{
		DefaultUser:   0,
		MaxRetries:    5,
		CompatVersion: "6.0",
		Queue:         "default",
		SweepInterval: time.Minute,
		SweepAge:      5 * time.Minute,
	}
}

// ApplyDefaults fills the string and duration fields a partially
// configured block left empty. Integer fields are left alone so an
// explicit 0 stays 0.
func (c *ORMConfig) ApplyDefaults() {
	if c.CompatVersion == "" {
		c.CompatVersion = "6.0"
	}
	if c.Queue == "" {
		c.Queue = "default"
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.SweepAge == 0 {
		c.SweepAge = 5 * time.Minute
	}
}

// Validate applies the rules struct tags can't express.
func (c *ORMConfig) Validate() error {
	if c.DefaultUser < 0 {
		return fmt.Errorf("orm default_user must be non-negative")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("orm max_retries must be non-negative")
	}

	if c.SweepInterval < time.Second {
		return fmt.Errorf("orm sweep_interval must be at least 1s")
	}

	if c.SweepAge < c.SweepInterval {
		return fmt.Errorf("orm sweep_age must not be shorter than sweep_interval")
	}

	return nil
}
