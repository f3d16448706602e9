package pipeline

import (
	"context"
	"time"

	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
	"slipstream/internal/services"
	"slipstream/internal/workqueue"
)

// GetStatus returns the job record for jobID, or nil when unknown.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*jobstore.JobRecord, error) {
	return o.store.Get(ctx, jobID)
}

// ListJobs returns a filtered, sorted, paginated view of job records.
func (o *Orchestrator) ListJobs(ctx context.Context, opts jobstore.ListOptions) (*jobstore.Page, error) {
	return o.store.FindAll(ctx, opts)
}

// Stats returns per-status record counts.
func (o *Orchestrator) Stats(ctx context.Context) (jobstore.Counts, error) {
	return o.store.Stats(ctx)
}

// QueueMetrics reports attempt counts for both stage queues.
func (o *Orchestrator) QueueMetrics() map[string]workqueue.Metrics {
	return map[string]workqueue.Metrics{
		QueueTranscode: o.queue.Metrics(QueueTranscode),
		QueueUpload:    o.queue.Metrics(QueueUpload),
	}
}

// CancelRecord applies the cancel transition directly against the store. It
// is shared by the orchestrator and by tooling that runs without a live
// queue.
func CancelRecord(ctx context.Context, store *jobstore.Store, jobID string) (*jobstore.JobRecord, error) {
	record, err := store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Coded(services.CodeJobNotFound,
			services.Wrap(services.ErrNotFound, "pipeline", "cancel", "job "+jobID, nil))
	}
	if record.Status.Terminal() {
		return nil, services.Coded(services.CodeJobAlreadyCompleted,
			services.Wrap(services.ErrValidation, "pipeline", "cancel", "job already "+string(record.Status), nil))
	}

	record, applied, err := store.UpdateIf(ctx, jobID, recordActive, func(r *jobstore.JobRecord) {
		now := time.Now().UTC()
		r.Status = jobstore.StatusCancelled
		r.CancelledAt = &now
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, services.Coded(services.CodeJobAlreadyCompleted,
			services.Wrap(services.ErrValidation, "pipeline", "cancel", "job reached a terminal status first", nil))
	}
	return record, nil
}

// CancelJob moves a non-terminal job to cancelled and drops its pending
// queue attempts. An in-flight attempt runs to completion but its terminal
// write is discarded by the active re-check.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) (*jobstore.JobRecord, error) {
	record, err := CancelRecord(ctx, o.store, jobID)
	if err != nil {
		return nil, err
	}

	removed := o.queue.CancelPending(jobID)
	o.logger.Info("job cancelled",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("attempts_removed", removed),
	)
	return record, nil
}
