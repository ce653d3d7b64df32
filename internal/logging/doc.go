// Package logging builds the slog loggers used across chartsmith.
//
// Two handler formats are supported: a compact console handler for
// interactive terminals and a JSON handler for files and non-TTY output.
// Helper constructors attach standardized attribute keys (component, job_id,
// stage, worker) so records remain greppable across subsystems.
package logging
