// Package ledger persists per-user disposal scores and history in SQLite.
//
// The Store is the durable User Ledger: it creates users on first identity
// resolution, commits scored outcomes together with their reminder lists, and
// keeps an append-only disposal history for the CLI and API. The database uses
// WAL mode and retries briefly on SQLITE_BUSY so the daemon and CLI can read it
// concurrently.
package ledger
