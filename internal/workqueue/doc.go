// Package workqueue provides named, concurrency-limited queues of execution
// attempts with retry bookkeeping.
//
// Each named queue has an independent concurrency ceiling. Scheduling is FIFO
// over pending jobs; dispatch triggers on enqueue, on handler registration,
// and after every attempt completes, so queues drain themselves without an
// external poller. A failed attempt reverts to pending and is re-dispatched
// FIFO while attempts remain; exhausting attempts marks the job failed and
// invokes the registered failure observers. What a failure means for the
// domain job is the orchestrator's call, not the queue's.
package workqueue
