// Package daemon coordinates the long-running sortbin process and its HTTP
// surface.
//
// It wires configuration, the user ledger, the session machine, and the
// device channel into a single lifecycle with flock-based locking to prevent
// multiple instances. The API server exposes the camera routes (/image,
// /distance, /test) and the bearer-guarded management routes under /api.
//
// Keep orchestration here: disposal semantics live in the session package
// while the daemon focuses on startup, shutdown, and request plumbing.
package daemon
