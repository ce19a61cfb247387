package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the report worker.
type Config struct {
	// PollInterval bounds the wait between claims when the queue is empty.
	// A submission wakes the worker early.
	// Default: 5 seconds
	PollInterval time.Duration

	// ReconnectDelay is the initial backoff between job store connection
	// attempts. It doubles on every failed attempt up to MaxReconnectDelay.
	// Default: 2 seconds
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the connection backoff.
	// Default: 1 minute
	MaxReconnectDelay time.Duration

	// ReconnectAttempts is how many connection attempts make up one round
	// before the failure is logged and the round starts over. Zero retries
	// until the worker stops.
	// Default: 5
	ReconnectAttempts int

	// ShutdownTimeout is how long Stop waits for a running job to finish.
	// Default: 2 minutes
	ShutdownTimeout time.Duration

	// StaleJobThreshold defines how old a 'processing' job must be before it
	// is considered abandoned. Stale jobs are requeued whenever the worker
	// connects to the job store.
	// Default: 30 minutes
	StaleJobThreshold time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		ReconnectDelay:    2 * time.Second,
		MaxReconnectDelay: time.Minute,
		ReconnectAttempts: 5,
		ShutdownTimeout:   2 * time.Minute,
		StaleJobThreshold: 30 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %v", c.ReconnectDelay)
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		return fmt.Errorf("max reconnect delay %v is shorter than reconnect delay %v", c.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts cannot be negative, got %d", c.ReconnectAttempts)
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.StaleJobThreshold < time.Minute {
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	return nil
}
