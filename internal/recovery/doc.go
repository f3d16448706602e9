// Package recovery re-admits stale uploads left behind in the landing area.
//
// A file is stale when it has not been modified for longer than the
// configured threshold and no active job exists for its derived identifier.
// Sweeps run once at startup and then on a jittered interval, with a
// single-flight guard so a slow sweep is never overlapped by the next tick.
package recovery
