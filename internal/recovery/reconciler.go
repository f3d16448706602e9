package recovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"slipstream/internal/config"
	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
)

// Pipeline is the slice of the orchestrator the reconciler needs: the same
// admission entry point a fresh upload uses, plus a status lookup for the
// active-job check.
type Pipeline interface {
	Admit(ctx context.Context, jobID, localPath string, metadata map[string]string) (*jobstore.JobRecord, error)
	GetStatus(ctx context.Context, jobID string) (*jobstore.JobRecord, error)
}

// sidecar mirrors the resumable-upload metadata file written next to each
// landing-area data file.
type sidecar struct {
	Offset   int64             `json:"offset"`
	Size     int64             `json:"size"`
	Metadata map[string]string `json:"metadata"`
}

// Reconciler scans the upload landing area for stale transfers.
type Reconciler struct {
	uploadDir string
	threshold time.Duration
	interval  time.Duration
	pipeline  Pipeline
	logger    *slog.Logger

	scanning atomic.Bool
	now      func() time.Time
}

// New constructs a reconciler from recovery configuration.
func New(cfg *config.Config, pipeline Pipeline, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		uploadDir: cfg.Paths.UploadDir,
		threshold: time.Duration(cfg.Recovery.StaleThresholdMinutes) * time.Minute,
		interval:  time.Duration(cfg.Recovery.SweepIntervalMinutes) * time.Minute,
		pipeline:  pipeline,
		logger:    logging.NewComponentLogger(logger, "recovery"),
		now:       time.Now,
	}
}

// Start sweeps once immediately, then on a jittered interval until ctx ends.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.ScanAndRecover(ctx)

		ticker := jitterbug.New(r.interval, &jitterbug.Norm{Stdev: r.interval / 20})
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ScanAndRecover(ctx)
			}
		}
	}()
}

// ScanAndRecover walks the landing area once and re-admits every stale file.
// It returns the number of jobs admitted. Overlapping calls are rejected by
// the single-flight guard and return 0.
func (r *Reconciler) ScanAndRecover(ctx context.Context) int {
	if !r.scanning.CompareAndSwap(false, true) {
		r.logger.Debug("sweep already in progress, skipping")
		return 0
	}
	defer r.scanning.Store(false)

	if err := os.MkdirAll(r.uploadDir, 0o755); err != nil {
		r.logger.Error("ensure landing area", logging.String("dir", r.uploadDir), logging.Error(err))
		return 0
	}
	entries, err := os.ReadDir(r.uploadDir)
	if err != nil {
		r.logger.Error("list landing area", logging.String("dir", r.uploadDir), logging.Error(err))
		return 0
	}

	recovered := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if r.checkFile(ctx, entry.Name()) {
			recovered++
		}
	}
	if recovered > 0 {
		r.logger.Info("sweep finished", logging.Int("recovered", recovered))
	}
	return recovered
}

// checkFile inspects one data file and re-admits it when stale. Errors are
// logged and swallowed so one bad file never aborts the sweep.
func (r *Reconciler) checkFile(ctx context.Context, filename string) bool {
	filePath := filepath.Join(r.uploadDir, filename)
	logger := r.logger.With(logging.String("file", filename))

	info, err := os.Stat(filePath)
	if err != nil {
		logger.Warn("stat landing file", logging.Error(err))
		return false
	}
	if r.now().Sub(info.ModTime()) <= r.threshold {
		return false
	}

	metadata, dbID := r.readSidecar(filePath, info.Size(), logger)

	jobID := dbID
	if jobID == "" {
		jobID = filename
	}

	record, err := r.pipeline.GetStatus(ctx, jobID)
	if err != nil {
		logger.Warn("status lookup failed", logging.Error(err))
		return false
	}
	if record != nil && record.Status.Active() {
		logger.Debug("job already active, skipping", logging.String(logging.FieldJobID, jobID))
		return false
	}

	logger.Info("recovering stale upload",
		logging.String(logging.FieldJobID, jobID),
		logging.Int64("size", info.Size()),
	)
	if _, err := r.pipeline.Admit(ctx, jobID, filePath, metadata); err != nil {
		logger.Warn("recovery admission failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return false
	}
	return true
}

// readSidecar loads the metadata file next to a data file, repairing a
// zero offset when the data file clearly has content.
func (r *Reconciler) readSidecar(filePath string, size int64, logger *slog.Logger) (map[string]string, string) {
	metaPath := filePath + ".json"
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("read sidecar", logging.Error(err))
		}
		return nil, ""
	}

	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		logger.Warn("corrupt sidecar, falling back to filename identity", logging.Error(err))
		return nil, ""
	}

	if meta.Offset == 0 && size > 0 {
		// Rewrite through a generic map so fields the upload layer stores
		// beyond offset/size/metadata survive the repair.
		var full map[string]any
		if err := json.Unmarshal(raw, &full); err == nil {
			full["offset"] = size
			if repaired, err := json.Marshal(full); err == nil {
				if err := os.WriteFile(metaPath, repaired, 0o644); err != nil {
					logger.Warn("rewrite sidecar", logging.Error(err))
				} else {
					logger.Info("repaired zero offset in sidecar", logging.Int64("offset", size))
				}
			}
		}
		meta.Offset = size
	}

	return meta.Metadata, meta.Metadata["dbId"]
}
