// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and worker identity
//     for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent job error codes.
//   - A CommandRunner abstraction that makes external tool execution
//     testable.
package services
