package testsupport

import (
	"testing"

	"slipstream/internal/config"
	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
)

// MustOpenStore opens a job record store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
