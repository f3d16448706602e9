package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"slipstream/internal/fileutil"
	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
	"slipstream/internal/objectstore"
	"slipstream/internal/services"
	"slipstream/internal/workqueue"
)

func recordActive(r *jobstore.JobRecord) bool { return r.Status.Active() }

func (o *Orchestrator) handleTranscode(ctx context.Context, job workqueue.Job) error {
	jobID := job.Payload.JobID
	logger := logging.WithContext(services.WithStage(ctx, "transcode"), o.logger)

	record, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		return services.Coded(services.CodeJobNotFound,
			services.Wrap(services.ErrNotFound, "pipeline", "transcode", "job record missing", nil))
	}
	if record.Status.Terminal() {
		logger.Debug("skipping attempt for terminal job")
		return nil
	}

	if !fileutil.FileExists(job.Payload.Path) {
		return services.Coded(services.CodeMissingFile,
			services.Wrap(services.ErrValidation, "transcode", "input", "source file vanished: "+job.Payload.Path, nil))
	}

	if _, _, err := o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
		r.BeginStage(jobstore.StatusProcessing)
	}); err != nil {
		return err
	}

	// Each attempt starts from a clean scratch directory.
	outputDir := o.workDir(jobID)
	if err := os.RemoveAll(outputDir); err != nil {
		return services.Wrap(services.ErrStorage, "transcode", "prepare", outputDir, err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "transcode", "prepare", outputDir, err)
	}

	info, err := o.transcoder.Probe(ctx, job.Payload.Path)
	if err != nil {
		return err
	}

	last := -1
	if _, err := o.transcoder.Transcode(ctx, job.Payload.Path, outputDir, func(percent float64) {
		step := int(percent)
		if step <= last {
			return
		}
		last = step
		_, _, _ = o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
			r.SetProgress(step)
		})
	}); err != nil {
		return err
	}

	_, applied, err := o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
		r.BeginStage(jobstore.StatusUploading)
	})
	if err != nil {
		return err
	}
	if !applied {
		// Cancelled while the encoder ran. Drop the rendition quietly.
		logger.Info("job no longer active after transcode, discarding output")
		o.cleanupLocal(jobID, job.Payload.Path)
		return nil
	}

	stash := map[string]string{
		metaInputPath:  job.Payload.Path,
		metaDuration:   strconv.FormatFloat(info.Duration.Seconds(), 'f', -1, 64),
		metaResolution: info.Resolution(),
	}
	o.queue.Enqueue(QueueUpload, workqueue.Payload{
		JobID:    jobID,
		Path:     outputDir,
		Metadata: stash,
	}, workqueue.Options{Attempts: o.cfg.Queue.MaxAttempts})

	logger.Info("transcode finished",
		logging.String("output_dir", outputDir),
		logging.String("resolution", info.Resolution()),
	)
	return nil
}

func (o *Orchestrator) handleUpload(ctx context.Context, job workqueue.Job) error {
	jobID := job.Payload.JobID
	outputDir := job.Payload.Path
	logger := logging.WithContext(services.WithStage(ctx, "upload"), o.logger)

	record, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		return services.Coded(services.CodeJobNotFound,
			services.Wrap(services.ErrNotFound, "pipeline", "upload", "job record missing", nil))
	}
	if record.Status.Terminal() {
		logger.Debug("skipping attempt for terminal job")
		return nil
	}

	// Retried attempts restart the stage-relative progress.
	if _, _, err := o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
		r.BeginStage(jobstore.StatusUploading)
	}); err != nil {
		return err
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return services.Coded(services.CodeUploadError,
			services.Wrap(services.ErrStorage, "upload", "enumerate", outputDir, err))
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return services.Coded(services.CodeUploadError,
			services.Wrap(services.ErrStorage, "upload", "enumerate", "no files to upload", nil))
	}

	// Fan out uploads. Any failure fails the whole stage; files already
	// pushed stay published and a retry re-uploads the full set.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Queue.UploadFanout)
	uploaded := make(chan struct{}, len(files))
	go func() {
		done := 0
		for range uploaded {
			done++
			percent := done * 100 / len(files)
			_, _, _ = o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
				r.SetProgress(percent)
			})
		}
	}()
	for _, name := range files {
		g.Go(func() error {
			object := jobID + "/" + name
			local := filepath.Join(outputDir, name)
			if err := o.storage.Put(gctx, local, object, objectstore.ContentTypeFor(name)); err != nil {
				return err
			}
			uploaded <- struct{}{}
			return nil
		})
	}
	err = g.Wait()
	close(uploaded)
	if err != nil {
		return err
	}

	url := o.storage.PublicURL(jobID + "/index.m3u8")
	o.cleanupLocal(jobID, job.Payload.Metadata[metaInputPath])

	result := jobstore.Result{URL: url, Format: "hls"}
	if seconds, parseErr := strconv.ParseFloat(job.Payload.Metadata[metaDuration], 64); parseErr == nil {
		result.Duration = seconds
	}
	result.Resolution = job.Payload.Metadata[metaResolution]

	o.completeJob(ctx, jobID, result)
	logger.Info("upload finished",
		logging.Int("files", len(files)),
		logging.String("url", url),
	)
	return nil
}

// handleExhausted runs when a queue job burns its last attempt. It lands the
// job record in failed, cleans local artifacts, and notifies once.
func (o *Orchestrator) handleExhausted(job workqueue.Job, cause error) {
	jobID := job.Payload.JobID
	inputPath := job.Payload.Path
	if job.Queue == QueueUpload {
		inputPath = job.Payload.Metadata[metaInputPath]
	}
	o.cleanupLocal(jobID, inputPath)
	o.failJob(o.baseCtx, jobID, cause)
}

// completeJob applies the terminal completed write and fires the single
// notification. The active re-check keeps a late completion from
// resurrecting a cancelled job. The write runs detached from cancellation so
// a shutdown mid-stage still lands the terminal status in the durable store.
func (o *Orchestrator) completeJob(ctx context.Context, jobID string, result jobstore.Result) {
	ctx = context.WithoutCancel(ctx)
	record, applied, err := o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
		now := time.Now().UTC()
		r.Status = jobstore.StatusCompleted
		r.Progress = 100
		r.Result = &result
		r.Error = nil
		r.CompletedAt = &now
	})
	if err != nil || record == nil || !applied {
		return
	}

	extra := map[string]any{"format": result.Format}
	if result.Duration > 0 {
		extra["duration"] = result.Duration
	}
	if result.Resolution != "" {
		extra["resolution"] = result.Resolution
	}
	o.notifier.Notify(ctx, jobID, string(jobstore.StatusCompleted), result.URL, extra)
}

func (o *Orchestrator) failJob(ctx context.Context, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	details := services.ErrorDetails(cause)
	record, applied, err := o.store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
		now := time.Now().UTC()
		r.Status = jobstore.StatusFailed
		r.Result = nil
		r.Error = &jobstore.JobError{Code: details.Code, Message: details.Message}
		r.FailedAt = &now
	})
	if err != nil || record == nil || !applied {
		return
	}

	o.notifier.Notify(ctx, jobID, string(jobstore.StatusFailed), "", map[string]any{
		"error": map[string]any{"code": details.Code, "message": details.Message},
	})
}
