package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"slipstream/internal/config"
	"slipstream/internal/fileutil"
	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
	"slipstream/internal/notify"
	"slipstream/internal/objectstore"
	"slipstream/internal/services"
	"slipstream/internal/transcode"
	"slipstream/internal/workqueue"
)

// Named queues owned by the orchestrator.
const (
	QueueTranscode = "transcode"
	QueueUpload    = "upload"
)

// Payload metadata keys used to hand state between stages.
const (
	metaInputPath  = "inputPath"
	metaDuration   = "duration"
	metaResolution = "resolution"
)

// Orchestrator drives the job state machine. All job record writes funnel
// through it.
type Orchestrator struct {
	cfg        *config.Config
	store      *jobstore.Store
	queue      *workqueue.Queue
	transcoder transcode.Client
	storage    objectstore.Backend
	notifier   notify.Client
	logger     *slog.Logger

	baseCtx context.Context
}

// New wires the orchestrator into the queue: stage handlers for the
// transcode and upload queues plus the failure observer that lands exhausted
// jobs in the failed status.
func New(
	cfg *config.Config,
	store *jobstore.Store,
	queue *workqueue.Queue,
	transcoder transcode.Client,
	storage objectstore.Backend,
	notifier notify.Client,
	logger *slog.Logger,
) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		queue:      queue,
		transcoder: transcoder,
		storage:    storage,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		baseCtx:    context.Background(),
	}

	queue.Configure(QueueTranscode, cfg.Queue.TranscodeConcurrency)
	queue.Configure(QueueUpload, cfg.Queue.UploadConcurrency)
	queue.RegisterHandler(QueueTranscode, o.handleTranscode)
	queue.RegisterHandler(QueueUpload, o.handleUpload)
	queue.OnJobFailed(o.handleExhausted)

	return o
}

// Start begins dispatching queued work under ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	o.baseCtx = ctx
	o.queue.Start(ctx)
}

// Wait blocks until in-flight stage attempts finish.
func (o *Orchestrator) Wait() {
	o.queue.Wait()
}

// Admit validates an uploaded file and creates its job record in pending,
// then enqueues the first transcode attempt. Re-admitting a job that is
// already active is a no-op, which makes crash recovery safe to repeat.
func (o *Orchestrator) Admit(ctx context.Context, jobID, localPath string, metadata map[string]string) (*jobstore.JobRecord, error) {
	logger := logging.WithContext(services.WithJobID(ctx, jobID), o.logger)

	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() {
		return nil, services.Coded(services.CodeMissingFile,
			services.Wrap(services.ErrValidation, "pipeline", "admit", fmt.Sprintf("file not found: %s", localPath), err))
	}

	fileType := detectFileType(localPath, metadata)
	if !o.typeAllowed(fileType) {
		return nil, services.Coded(services.CodeInvalidFileType,
			services.Wrap(services.ErrValidation, "pipeline", "admit", fmt.Sprintf("file type %s is not allowed", fileType), nil))
	}

	existing, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status.Active() {
		if o.queue.HasActiveAttempt(jobID) {
			logger.Debug("job already in flight, admission is a no-op")
			return existing, nil
		}
		// Active record with no attempt means a previous process died
		// mid-job. Restart it from the top.
		logger.Info("re-admitting orphaned active job")
		o.enqueueTranscode(jobID, localPath, metadata)
		return existing, nil
	}

	record := &jobstore.JobRecord{
		JobID:        jobID,
		Status:       jobstore.StatusPending,
		FileType:     fileType,
		OriginalName: originalName(localPath, metadata),
		FileSize:     info.Size(),
		Metadata:     metadata,
	}
	if err := o.store.Save(ctx, record); err != nil {
		return nil, err
	}

	o.enqueueTranscode(jobID, localPath, metadata)
	logger.Info("job admitted",
		logging.String("file_type", fileType),
		logging.Int64("file_size", info.Size()),
	)
	return record, nil
}

func (o *Orchestrator) enqueueTranscode(jobID, localPath string, metadata map[string]string) {
	o.queue.Enqueue(QueueTranscode, workqueue.Payload{
		JobID:    jobID,
		Path:     localPath,
		Metadata: metadata,
	}, workqueue.Options{Attempts: o.cfg.Queue.MaxAttempts})
}

func (o *Orchestrator) typeAllowed(fileType string) bool {
	for _, allowed := range o.cfg.Transcode.AllowedTypes {
		if strings.EqualFold(allowed, fileType) {
			return true
		}
	}
	return false
}

// detectFileType prefers a caller-supplied MIME hint and falls back to the
// file extension.
func detectFileType(localPath string, metadata map[string]string) string {
	for _, key := range []string{"filetype", "fileType", "mimeType", "contentType"} {
		if value, ok := metadata[key]; ok && value != "" {
			return value
		}
	}
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

func originalName(localPath string, metadata map[string]string) string {
	for _, key := range []string{"filename", "originalName", "name"} {
		if value, ok := metadata[key]; ok && value != "" {
			return value
		}
	}
	return filepath.Base(localPath)
}

// workDir is the per-job scratch directory holding the HLS rendition.
func (o *Orchestrator) workDir(jobID string) string {
	return filepath.Join(o.cfg.Paths.WorkDir, jobID)
}

func (o *Orchestrator) cleanupLocal(jobID, inputPath string) {
	paths := []string{o.workDir(jobID)}
	if inputPath != "" {
		// The resumable-upload layer keeps a metadata sidecar next to
		// each data file; drop both.
		paths = append(paths, inputPath, inputPath+".json")
	}
	fileutil.RemoveQuietly(o.logger, paths...)
}
