// Package logging assembles structured slog loggers and formatting helpers used
// across sortbin services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes helpers so session, device, and ledger code tag their lines with
// the same component and event_type keys. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
package logging
