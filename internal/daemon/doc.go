// Package daemon supervises the EchoWatch pipeline.
//
// A Daemon runs four independent workers (ingest, convert, analyze, and
// report), each a workflow.Loop with its own retry policy, and enforces
// single-instance execution with a flock-based lock. Shutdown is cooperative:
// SIGINT, SIGTERM, or cancellation of the Run context trip a shared stop
// signal. Stop then aborts blocking collaborator calls, joins every worker
// within a bounded timeout, and logs a final statistics report.
//
// Keep orchestration here. The units of work live in the ingest, audio, and
// analysis packages behind the collaborator interfaces below.
package daemon
