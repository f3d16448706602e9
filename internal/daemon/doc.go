// Package daemon ties the job store, work queue, pipeline, and recovery
// reconciler into a single-instance background service guarded by a file
// lock.
package daemon
