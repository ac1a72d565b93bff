// Command echowatch runs the radio call monitoring pipeline and inspects its
// ledger.
//
// "echowatch run" supervises the ingest, convert, analyze, and report
// workers until interrupted. The remaining subcommands read configuration
// and the ledger directly and never talk to a running instance.
package main
