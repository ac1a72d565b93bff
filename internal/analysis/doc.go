// Package analysis implements the analyze worker's unit of work.
//
// Converted transcripts accumulate in the ledger until a batch is due: either
// the batch interval has elapsed since the previous batch (or since start-up
// when none exists) or the pending count reaches the maximum batch size. A
// due batch is scored by the LLM in a single JSON completion, recorded in the
// ledger, and, when its overall severity reaches the configured threshold,
// pushed as an alert.
package analysis
