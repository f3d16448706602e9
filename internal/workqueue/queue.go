package workqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"slipstream/internal/logging"
	"slipstream/internal/services"
)

// Status represents the lifecycle of a queue job (an execution attempt
// wrapper, distinct from the domain job record).
type Status string

const (
	JobPending    Status = "pending"
	JobProcessing Status = "processing"
	JobCompleted  Status = "completed"
	JobFailed     Status = "failed"
)

// Payload carries the domain job identifier and stage input into a handler.
type Payload struct {
	JobID    string
	Path     string
	Metadata map[string]string
}

// Job is one queued execution attempt.
type Job struct {
	ID          string
	Queue       string
	Payload     Payload
	Status      Status
	Priority    int
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// Handler processes one attempt. A non-nil error reverts the job to pending
// while attempts remain, then marks it failed.
type Handler func(ctx context.Context, job Job) error

// Options tunes a single enqueue.
type Options struct {
	// Attempts caps retries for this job; 1 when unset.
	Attempts int
	// Priority orders dispatch, highest first. Equal priorities stay FIFO.
	Priority int
}

// Metrics summarizes one named queue.
type Metrics struct {
	Pending   int
	Active    int
	Completed int
	Failed    int
	Total     int
}

type queueState struct {
	limit  int
	active int
	jobs   []*Job
}

// Queue owns all named queues behind a single mutex. Handlers run on
// goroutines; the per-queue active count enforces the concurrency ceiling.
type Queue struct {
	mu       sync.Mutex
	logger   *slog.Logger
	baseCtx  context.Context
	queues   map[string]*queueState
	handlers map[string]Handler
	byID     map[string]*Job

	completedFns []func(Job)
	failedFns    []func(Job, error)

	wg sync.WaitGroup
}

// New constructs an empty queue container. Attempts dispatched before Start
// run under context.Background.
func New(logger *slog.Logger) *Queue {
	return &Queue{
		logger:   logging.NewComponentLogger(logger, "workqueue"),
		baseCtx:  context.Background(),
		queues:   make(map[string]*queueState),
		handlers: make(map[string]Handler),
		byID:     make(map[string]*Job),
	}
}

// Start installs the context handlers run under and kicks every queue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.baseCtx = ctx
	names := make([]string, 0, len(q.queues))
	for name := range q.queues {
		names = append(names, name)
	}
	q.mu.Unlock()

	for _, name := range names {
		q.dispatch(name)
	}
}

// Wait blocks until all in-flight attempts have returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Configure sets the concurrency ceiling for a named queue, creating it if
// needed.
func (q *Queue) Configure(name string, limit int) {
	if limit < 1 {
		limit = 1
	}
	q.mu.Lock()
	state := q.ensureQueue(name)
	state.limit = limit
	q.mu.Unlock()
	q.dispatch(name)
}

// RegisterHandler installs the processor for a named queue and starts
// draining any jobs enqueued before registration.
func (q *Queue) RegisterHandler(name string, handler Handler) {
	q.mu.Lock()
	q.ensureQueue(name)
	q.handlers[name] = handler
	q.mu.Unlock()

	q.logger.Debug("handler registered", logging.String(logging.FieldQueue, name))
	q.dispatch(name)
}

// OnJobCompleted registers an observer invoked after an attempt succeeds.
func (q *Queue) OnJobCompleted(fn func(Job)) {
	q.mu.Lock()
	q.completedFns = append(q.completedFns, fn)
	q.mu.Unlock()
}

// OnJobFailed registers an observer invoked after a job exhausts its
// attempts.
func (q *Queue) OnJobFailed(fn func(Job, error)) {
	q.mu.Lock()
	q.failedFns = append(q.failedFns, fn)
	q.mu.Unlock()
}

// Enqueue adds an execution attempt to a named queue and triggers dispatch.
func (q *Queue) Enqueue(name string, payload Payload, opts Options) Job {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	job := &Job{
		ID:          name + "-" + uuid.NewString(),
		Queue:       name,
		Payload:     payload,
		Status:      JobPending,
		Priority:    opts.Priority,
		MaxAttempts: attempts,
		CreatedAt:   time.Now().UTC(),
	}

	q.mu.Lock()
	state := q.ensureQueue(name)
	state.jobs = append(state.jobs, job)
	q.byID[job.ID] = job
	snapshot := *job
	q.mu.Unlock()

	q.logger.Debug("job enqueued",
		logging.String(logging.FieldQueue, name),
		logging.String(logging.FieldQueueJobID, job.ID),
		logging.String(logging.FieldJobID, payload.JobID),
	)
	q.dispatch(name)
	return snapshot
}

// GetJob returns a snapshot of the queue job with the given id.
func (q *Queue) GetJob(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Remove deletes a queue job that is not currently processing.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byID[id]
	if !ok || job.Status == JobProcessing {
		return false
	}
	state := q.queues[job.Queue]
	for i, candidate := range state.jobs {
		if candidate.ID == id {
			state.jobs = append(state.jobs[:i], state.jobs[i+1:]...)
			break
		}
	}
	delete(q.byID, id)
	return true
}

// Metrics reports counts for a named queue.
func (q *Queue) Metrics(name string) Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.queues[name]
	if !ok {
		return Metrics{}
	}
	metrics := Metrics{Active: state.active, Total: len(state.jobs)}
	for _, job := range state.jobs {
		switch job.Status {
		case JobPending:
			metrics.Pending++
		case JobCompleted:
			metrics.Completed++
		case JobFailed:
			metrics.Failed++
		}
	}
	return metrics
}

// HasActiveAttempt reports whether any queue holds a pending or processing
// attempt for the given domain job identifier.
func (q *Queue) HasActiveAttempt(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, state := range q.queues {
		for _, job := range state.jobs {
			if job.Payload.JobID != jobID {
				continue
			}
			if job.Status == JobPending || job.Status == JobProcessing {
				return true
			}
		}
	}
	return false
}

// CancelPending removes every pending attempt carrying the given domain job
// identifier. Processing attempts are left to finish.
func (q *Queue) CancelPending(jobID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for _, state := range q.queues {
		kept := state.jobs[:0]
		for _, job := range state.jobs {
			if job.Status == JobPending && job.Payload.JobID == jobID {
				delete(q.byID, job.ID)
				removed++
				continue
			}
			kept = append(kept, job)
		}
		state.jobs = kept
	}
	return removed
}

func (q *Queue) ensureQueue(name string) *queueState {
	state, ok := q.queues[name]
	if !ok {
		state = &queueState{limit: 1}
		q.queues[name] = state
	}
	return state
}

// dispatch launches pending jobs FIFO until the queue's ceiling is reached.
func (q *Queue) dispatch(name string) {
	for {
		q.mu.Lock()
		state := q.queues[name]
		handler := q.handlers[name]
		if state == nil || handler == nil || state.active >= state.limit {
			q.mu.Unlock()
			return
		}

		var next *Job
		for _, job := range state.jobs {
			if job.Status != JobPending {
				continue
			}
			if next == nil || job.Priority > next.Priority {
				next = job
			}
		}
		if next == nil {
			q.mu.Unlock()
			return
		}

		next.Status = JobProcessing
		next.Attempts++
		state.active++
		snapshot := *next
		ctx := q.baseCtx
		q.mu.Unlock()

		q.wg.Add(1)
		go q.run(ctx, name, handler, snapshot)
	}
}

func (q *Queue) run(ctx context.Context, name string, handler Handler, snapshot Job) {
	defer q.wg.Done()

	ctx = services.WithQueue(ctx, name)
	ctx = services.WithJobID(ctx, snapshot.Payload.JobID)
	logger := logging.WithContext(ctx, q.logger)

	err := handler(ctx, snapshot)

	var (
		completed []func(Job)
		failed    []func(Job, error)
		result    Job
	)

	q.mu.Lock()
	state := q.queues[name]
	state.active--
	job := q.byID[snapshot.ID]
	if job != nil {
		switch {
		case err == nil:
			job.Status = JobCompleted
			now := time.Now().UTC()
			job.CompletedAt = &now
			completed = append(completed, q.completedFns...)
		case job.Attempts < job.MaxAttempts:
			job.Status = JobPending
			job.LastError = err.Error()
		default:
			job.Status = JobFailed
			job.LastError = err.Error()
			now := time.Now().UTC()
			job.FailedAt = &now
			failed = append(failed, q.failedFns...)
		}
		result = *job
	}
	q.mu.Unlock()

	switch {
	case err == nil:
		logger.Debug("attempt completed", logging.String(logging.FieldQueueJobID, snapshot.ID))
	case result.Status == JobPending:
		logger.Info("attempt failed, retrying",
			logging.String(logging.FieldQueueJobID, snapshot.ID),
			logging.Int("attempt", result.Attempts),
			logging.Int("max_attempts", result.MaxAttempts),
			logging.Error(err),
		)
	default:
		logger.Warn("attempts exhausted",
			logging.String(logging.FieldQueueJobID, snapshot.ID),
			logging.Int("attempts", result.Attempts),
			logging.Error(err),
		)
	}

	for _, fn := range completed {
		fn(result)
	}
	for _, fn := range failed {
		fn(result, err)
	}

	q.dispatch(name)
}
