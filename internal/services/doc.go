// Package services defines shared utilities consumed by the pipeline workers
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp worker names and batch identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     retryable or terminal.
//
// Use these helpers when wiring new collaborators so error handling and
// observability stay uniform across the pipeline.
package services
