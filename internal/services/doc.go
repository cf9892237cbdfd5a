// Package services defines shared utilities consumed by the pipeline stages
// and the upstream integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, batch indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell
//     absorbed identifier-level failures from fatal run failures.
//   - Exit code mapping for the CLI.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
