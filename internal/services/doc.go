// Package services defines the error taxonomy and context helpers shared by
// pipeline components.
//
// Stage and collaborator failures are tagged with sentinel markers
// (validation, external tool, storage, transient) and an error code so the
// orchestrator can persist a structured {code, message} pair on the job
// record without parsing error strings. Context helpers carry job, stage,
// and queue identifiers for structured logging.
package services
