// Package preflight provides readiness checks for the external tools,
// services, and filesystem paths echowatch depends on.
//
// "echowatch check" runs RunAll and renders the results as a table. The run
// command logs CheckSystemDeps as a dependency snapshot before the workers
// start. Checks for optional features report "Disabled" rather than failing.
package preflight
