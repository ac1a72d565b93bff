// Package ingest polls the radio call feed and stages new recordings.
//
// A Monitor fetches the configured calls URL on a fixed interval for the
// duration of one poll window. Calls already present in the ledger are
// skipped. New recordings are downloaded atomically into the staging inbound
// directory under a download rate limit and recorded as downloaded. The
// window can be cut short with AbortActive, which is how the supervisor
// unblocks the ingest worker during shutdown.
package ingest
