package daemon

import (
	"context"
	"testing"

	"slipstream/internal/config"
	"slipstream/internal/logging"
	"slipstream/internal/notify"
	"slipstream/internal/pipeline"
	"slipstream/internal/recovery"
	"slipstream/internal/testsupport"
	"slipstream/internal/transcode"
	"slipstream/internal/workqueue"
)

type stubStorage struct{}

func (stubStorage) EnsureBucket(ctx context.Context) error { return nil }
func (stubStorage) Put(ctx context.Context, localPath, objectName, contentType string) error {
	return nil
}
func (stubStorage) RemovePrefix(ctx context.Context, prefix string) error { return nil }
func (stubStorage) PublicURL(objectName string) string                    { return "http://cdn.test/" + objectName }

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()

	logger := logging.NewNop()
	store := testsupport.MustOpenStore(t, cfg)
	queue := workqueue.New(logger)
	orch := pipeline.New(cfg, store, queue,
		transcode.NewCLI(cfg.Transcode), stubStorage{}, notify.NewHTTP(cfg.Notify, logger), logger)
	reconciler := recovery.New(cfg, orch, logger)

	d, err := New(cfg, store, orch, reconciler, stubStorage{}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}
	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first := newTestDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	defer first.Stop()

	second := newTestDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must fail to acquire the lock")
	}
}

func TestRestartAfterStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}
