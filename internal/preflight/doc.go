// Package preflight provides readiness checks for the filesystem paths and
// external services sortbin depends on.
//
// The daemon runs RunAll at startup and logs each failure as a warning; a
// failed check degrades a session rather than blocking startup. The CLI
// "sortbin status" command renders the same results as a table.
package preflight
