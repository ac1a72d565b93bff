// Package ledger persists downloaded calls and analysis batches in SQLite.
//
// Ingest consults it to skip calls it has already fetched, the converter
// records transcripts, and the analyzer claims pending transcripts and stores
// each batch outcome. The CLI reads it for operator listings. Worker loop
// state is never stored here; the supervisor runs correctly against an empty
// ledger.
package ledger
