// Package notifications pushes disposal outcomes and service failures to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// session code can notify unconditionally. Delivery is best-effort; callers
// log failures and carry on.
package notifications
