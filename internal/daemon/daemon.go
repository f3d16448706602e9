package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"slipstream/internal/config"
	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
	"slipstream/internal/objectstore"
	"slipstream/internal/pipeline"
	"slipstream/internal/recovery"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobstore.Store
	orch       *pipeline.Orchestrator
	reconciler *recovery.Reconciler
	storage    objectstore.Backend

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	store *jobstore.Store,
	orch *pipeline.Orchestrator,
	reconciler *recovery.Reconciler,
	storage objectstore.Backend,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || reconciler == nil || storage == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, reconciler, and storage")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		orch:       orch,
		reconciler: reconciler,
		storage:    storage,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("prepare lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another slipstream instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.storage.EnsureBucket(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		return fmt.Errorf("prepare storage: %w", err)
	}

	sweep := time.Duration(d.cfg.Store.SweepIntervalSeconds) * time.Second
	d.store.StartMaintenance(d.ctx, sweep)
	d.orch.Start(d.ctx)
	d.reconciler.Start(d.ctx)

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels background work, waits for in-flight attempts, and releases
// the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.cancel()
	d.orch.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
	d.running.Store(false)
	d.ctx = nil
	d.logger.Info("daemon stopped")
}

// Close releases resources after Stop.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether Start has succeeded and Stop has not yet run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
