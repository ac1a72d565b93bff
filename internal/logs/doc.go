// Package logs reads echowatch run logs for the CLI.
//
// Stream prints the last N lines of a log and, in follow mode, keeps polling
// for new output. The current-run pointer (echowatch.log) is re-resolved on
// every poll so a follower moves to the next run's file after a restart.
package logs
