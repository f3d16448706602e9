package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"slipstream/internal/config"
	"slipstream/internal/logging"
)

const keyPrefix = "job:"

// Store is the job record front door. Every operation runs against the
// primary backend and transparently degrades to the in-process fallback when
// the primary fails; degradation is logged and never returned to callers.
type Store struct {
	primary  backend
	fallback backend
	logger   *slog.Logger
	ttl      time.Duration
	degraded atomic.Bool
	now      func() time.Time

	// updateMu serializes read-mutate-write cycles so the condition check
	// in UpdateIf is atomic with the save. Without it a stage's terminal
	// write and a concurrent cancel can both observe the record as active
	// and both apply.
	updateMu sync.Mutex
}

// Open connects the SQLite primary backend. Primary unavailability is not
// fatal; the store starts degraded with the fallback only.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "jobstore")

	store := &Store{
		fallback: newMemoryBackend(),
		logger:   logger,
		ttl:      time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour,
		now:      time.Now,
	}

	primary, err := openSQLite(cfg.Store.Path)
	if err != nil {
		logger.Warn("primary job store unavailable, using in-process fallback",
			logging.String("path", cfg.Store.Path),
			logging.Error(err),
		)
		store.degraded.Store(true)
		return store, nil
	}
	store.primary = primary
	return store, nil
}

// newStore wires explicit backends, used by tests to compare behaviors.
func newStore(primary backend, logger *slog.Logger, ttl time.Duration) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		primary:  primary,
		fallback: newMemoryBackend(),
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Degraded reports whether the store is currently serving from the fallback.
func (s *Store) Degraded() bool { return s.degraded.Load() }

// Close releases the primary backend.
func (s *Store) Close() error {
	if s.primary == nil {
		return nil
	}
	return s.primary.close()
}

// Save persists the whole record under its key, refreshing the retention
// window. Last writer wins; there is no partial-field atomicity.
func (s *Store) Save(ctx context.Context, record *JobRecord) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("job record requires an id")
	}
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}

	key := keyPrefix + record.JobID
	expiresAt := now.Add(s.ttl)
	s.run(ctx, "save", func(b backend) error {
		return b.save(ctx, key, payload, expiresAt)
	})
	return nil
}

// Get returns the record for jobID, or nil when absent or expired.
func (s *Store) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	var (
		payload []byte
		found   bool
	)
	s.run(ctx, "get", func(b backend) error {
		var err error
		payload, found, err = b.get(ctx, keyPrefix+jobID, s.now().UTC())
		return err
	})
	if !found {
		return nil, nil
	}

	record := new(JobRecord)
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("unmarshal job record %s: %w", jobID, err)
	}
	return record, nil
}

// Update loads the record, applies mutate, and saves the result. It is not an
// upsert: a missing record logs a warning and returns nil.
func (s *Store) Update(ctx context.Context, jobID string, mutate func(*JobRecord)) (*JobRecord, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	record, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.logger.Warn("job not found for update", logging.String(logging.FieldJobID, jobID))
		return nil, nil
	}
	mutate(record)
	if err := s.Save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateIf applies mutate only when cond holds for the stored record. The
// check and the save run under one lock, so of two racing conditional writes
// exactly one applies and late stage completions cannot overwrite a terminal
// status. When cond fails the record is returned untouched and unsaved.
func (s *Store) UpdateIf(ctx context.Context, jobID string, cond func(*JobRecord) bool, mutate func(*JobRecord)) (*JobRecord, bool, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	record, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		s.logger.Warn("job not found for update", logging.String(logging.FieldJobID, jobID))
		return nil, false, nil
	}
	if !cond(record) {
		return record, false, nil
	}
	mutate(record)
	if err := s.Save(ctx, record); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Delete removes the record for jobID.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	s.run(ctx, "delete", func(b backend) error {
		return b.remove(ctx, keyPrefix+jobID)
	})
	return nil
}

// PurgeExpired removes expired records from both backends and returns the
// total purged. The fallback map needs the active scan; SQLite rows are
// additionally filtered on read, so this only reclaims space there.
func (s *Store) PurgeExpired(ctx context.Context) int {
	now := s.now().UTC()
	total := 0
	if s.primary != nil {
		if purged, err := s.primary.purgeExpired(ctx, now); err == nil {
			total += purged
		}
	}
	if purged, err := s.fallback.purgeExpired(ctx, now); err == nil {
		total += purged
	}
	return total
}

// StartMaintenance runs the expiry sweep on the given interval until ctx is
// cancelled.
func (s *Store) StartMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if purged := s.PurgeExpired(ctx); purged > 0 {
					s.logger.Debug("purged expired job records", logging.Int("count", purged))
				}
			}
		}
	}()
}

// run executes fn against the primary, degrading to the fallback on failure.
func (s *Store) run(ctx context.Context, op string, fn func(backend) error) {
	if s.primary != nil {
		err := fn(s.primary)
		if err == nil {
			if s.degraded.CompareAndSwap(true, false) {
				s.logger.Info("primary job store recovered")
			}
			return
		}
		if s.degraded.CompareAndSwap(false, true) {
			s.logger.Warn("primary job store unreachable, degrading to in-process fallback",
				logging.String("op", op),
				logging.Error(err),
			)
		} else {
			s.logger.Debug("primary job store still unreachable",
				logging.String("op", op),
				logging.Error(err),
			)
		}
	}
	if err := fn(s.fallback); err != nil {
		// The fallback only fails on context cancellation in practice.
		s.logger.Warn("fallback job store operation failed",
			logging.String("op", op),
			logging.Error(err),
		)
	}
}
