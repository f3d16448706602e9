// Package pipeline orchestrates the life of a media job from admission to a
// terminal status.
//
// A job moves pending -> processing -> uploading -> completed, with failed
// reachable from the two working stages and cancelled from any non-terminal
// status. Stage execution runs on the work queue; the orchestrator owns every
// job record mutation and checks that a record is still active before
// applying a stage's terminal write, so a late completion can never overwrite
// a cancellation.
package pipeline
