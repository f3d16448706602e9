// Package jobstore persists job records and exposes listing and stats
// helpers over them.
//
// Records are whole-document JSON values stored under a textual key with a
// fixed retention window. The primary backend is SQLite; when it is
// unreachable every operation transparently degrades to an in-process map
// with the same expiry semantics. Degradation is logged, never surfaced to
// callers. Filtering, sorting, and pagination are applied in Go after
// loading so both backends behave identically.
//
// The store holds no business logic. Concurrent writers to the same job are
// not serialized here; the orchestrator funnels all mutations for a job
// through a single in-flight queue attempt.
package jobstore
