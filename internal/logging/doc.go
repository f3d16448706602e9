// Package logging builds the process-wide slog logger and provides the
// standardized attribute helpers used across components.
//
// Two handler formats are supported: a console handler for interactive use
// (colorized when stdout is a terminal) and a JSON handler for machine
// consumption. Field name constants keep job, stage, and queue identifiers
// consistent across log lines so they can be filtered downstream.
package logging
