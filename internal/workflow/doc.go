// Package workflow holds the building blocks every supervised worker shares.
//
// StopSignal is the single cooperative shutdown primitive: workers never sleep
// on a bare timer, they wait on the signal so a shutdown request cuts every
// pause short. Loop runs one unit of work repeatedly under a RetryPolicy,
// isolating failures so a bad iteration only delays its own worker. Stats
// collects the cross-worker counters and Reporter renders them, together with
// live backlog figures, into the periodic and final status reports.
//
// The daemon package composes these pieces into the running pipeline; keep
// domain knowledge (feeds, audio, analysis) out of this package.
package workflow
