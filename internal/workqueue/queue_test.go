package workqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slipstream/internal/logging"
)

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestEnqueueBeforeHandlerStaysPending(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	job := q.Enqueue("transcode", Payload{JobID: "job-1"}, Options{})
	if job.Status != JobPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}

	processed := make(chan string, 1)
	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error {
		processed <- job.Payload.JobID
		return nil
	})

	select {
	case id := <-processed:
		if id != "job-1" {
			t.Fatalf("unexpected job id %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never dispatched after registration")
	}

	waitFor(t, "completion", func() bool {
		got, ok := q.GetJob(job.ID)
		return ok && got.Status == JobCompleted
	})
}

func TestDispatchIsFIFO(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)
	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error {
		mu.Lock()
		order = append(order, job.Payload.JobID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	q.Enqueue("transcode", Payload{JobID: "a"}, Options{})
	q.Enqueue("transcode", Payload{JobID: "b"}, Options{})
	q.Enqueue("transcode", Payload{JobID: "c"}, Options{})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for attempts")
		}
	}
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, order[i], id, order)
		}
	}
}

func TestHigherPriorityDispatchesFirst(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	done := make(chan struct{}, 3)
	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error {
		if job.Payload.JobID == "first" {
			<-release
		}
		mu.Lock()
		order = append(order, job.Payload.JobID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	q.Enqueue("transcode", Payload{JobID: "first"}, Options{})
	waitFor(t, "first job active", func() bool { return q.Metrics("transcode").Active == 1 })
	q.Enqueue("transcode", Payload{JobID: "low"}, Options{})
	q.Enqueue("transcode", Payload{JobID: "high"}, Options{Priority: 10})
	close(release)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for attempts")
		}
	}
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "high", "low"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, order[i], id, order)
		}
	}
}

func TestConcurrencyCeilingHolds(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("upload", 2)

	started := make(chan string, 3)
	release := make(chan struct{})
	q.RegisterHandler("upload", func(ctx context.Context, job Job) error {
		started <- job.Payload.JobID
		<-release
		return nil
	})

	q.Enqueue("upload", Payload{JobID: "a"}, Options{})
	q.Enqueue("upload", Payload{JobID: "b"}, Options{})
	third := q.Enqueue("upload", Payload{JobID: "c"}, Options{})

	<-started
	<-started

	waitFor(t, "two active attempts", func() bool {
		return q.Metrics("upload").Active == 2
	})

	select {
	case id := <-started:
		t.Fatalf("third job %s started past the ceiling", id)
	case <-time.After(100 * time.Millisecond):
	}
	if got, _ := q.GetJob(third.ID); got.Status != JobPending {
		t.Fatalf("third job should be pending, got %s", got.Status)
	}

	release <- struct{}{}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("third job never started after a slot freed")
	}
	if metrics := q.Metrics("upload"); metrics.Active > 2 {
		t.Fatalf("active %d exceeds ceiling", metrics.Active)
	}

	close(release)
	q.Wait()
}

func TestRetryThenSuccess(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	var completedJob Job
	completed := make(chan struct{}, 1)
	q.OnJobCompleted(func(job Job) {
		completedJob = job
		completed <- struct{}{}
	})

	var calls int
	var mu sync.Mutex
	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return errors.New("transient")
		}
		return nil
	})

	q.Enqueue("transcode", Payload{JobID: "job-1"}, Options{Attempts: 2})

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("job never completed")
	}
	q.Wait()

	if completedJob.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", completedJob.Attempts)
	}
	if completedJob.Status != JobCompleted {
		t.Fatalf("status = %s, want completed", completedJob.Status)
	}
	if completedJob.CompletedAt == nil {
		t.Fatal("completed job missing CompletedAt")
	}
}

func TestAttemptsExhaustedInvokesFailureObservers(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	var failedJob Job
	var failedErr error
	failed := make(chan struct{}, 1)
	q.OnJobFailed(func(job Job, err error) {
		failedJob = job
		failedErr = err
		failed <- struct{}{}
	})

	var calls int
	var mu sync.Mutex
	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("codec unavailable")
	})

	q.Enqueue("transcode", Payload{JobID: "job-1"}, Options{Attempts: 2})

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("failure observer never fired")
	}
	q.Wait()

	mu.Lock()
	total := calls
	mu.Unlock()
	if total != 2 {
		t.Fatalf("handler ran %d times, want exactly 2", total)
	}
	if failedJob.Status != JobFailed {
		t.Fatalf("status = %s, want failed", failedJob.Status)
	}
	if failedJob.FailedAt == nil {
		t.Fatal("failed job missing FailedAt")
	}
	if failedErr == nil || failedErr.Error() != "codec unavailable" {
		t.Fatalf("unexpected observer error: %v", failedErr)
	}
	if failedJob.LastError != "codec unavailable" {
		t.Fatalf("LastError = %q", failedJob.LastError)
	}
}

func TestRemove(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("upload", 1)

	pending := q.Enqueue("upload", Payload{JobID: "a"}, Options{})
	if !q.Remove(pending.ID) {
		t.Fatal("expected pending job to be removable")
	}
	if _, ok := q.GetJob(pending.ID); ok {
		t.Fatal("removed job still visible")
	}

	started := make(chan struct{})
	release := make(chan struct{})
	q.RegisterHandler("upload", func(ctx context.Context, job Job) error {
		close(started)
		<-release
		return nil
	})
	active := q.Enqueue("upload", Payload{JobID: "b"}, Options{})
	<-started

	if q.Remove(active.ID) {
		t.Fatal("processing job must not be removable")
	}

	close(release)
	q.Wait()
}

func TestMetrics(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error {
		if job.Payload.JobID == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	done := make(chan struct{}, 1)
	q.OnJobCompleted(func(Job) { done <- struct{}{} })
	failed := make(chan struct{}, 1)
	q.OnJobFailed(func(Job, error) { failed <- struct{}{} })

	q.Enqueue("transcode", Payload{JobID: "good"}, Options{})
	q.Enqueue("transcode", Payload{JobID: "bad"}, Options{})

	<-done
	<-failed
	q.Wait()

	metrics := q.Metrics("transcode")
	if metrics.Completed != 1 || metrics.Failed != 1 || metrics.Total != 2 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if metrics.Pending != 0 || metrics.Active != 0 {
		t.Fatalf("expected drained queue, got %+v", metrics)
	}
}

func TestHasActiveAttempt(t *testing.T) {
	q := New(logging.NewNop())
	q.Configure("transcode", 1)

	if q.HasActiveAttempt("job-1") {
		t.Fatal("no attempts enqueued yet")
	}

	q.Enqueue("transcode", Payload{JobID: "job-1"}, Options{})
	if !q.HasActiveAttempt("job-1") {
		t.Fatal("pending attempt should count as active")
	}

	done := make(chan struct{}, 1)
	q.OnJobCompleted(func(Job) { done <- struct{}{} })
	q.RegisterHandler("transcode", func(ctx context.Context, job Job) error { return nil })

	<-done
	q.Wait()
	if q.HasActiveAttempt("job-1") {
		t.Fatal("completed attempt should not count as active")
	}
}
