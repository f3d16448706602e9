// Package testsupport holds shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"slipstream/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Store.Path = filepath.Join(base, "jobs.db")
	cfg.Notify.BaseURL = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxAttempts overrides the queue retry budget on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(c *config.Config) {
		c.Queue.MaxAttempts = attempts
	}
}

// WithStaleThreshold overrides the recovery stale threshold in minutes.
func WithStaleThreshold(minutes int) ConfigOption {
	return func(c *config.Config) {
		c.Recovery.StaleThresholdMinutes = minutes
	}
}
