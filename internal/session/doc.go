// Package session owns the single live disposal session.
//
// A Machine serializes every event (start, identity, image, proximity) behind
// one mutex. Slow collaborators such as the identity resolver, the
// transcriber and the detection/classification pipeline run with the lock
// released and a bounded timeout; their results are committed only if no
// newer Start happened meanwhile. Device messages are queued while the lock
// is held so their order matches the order of transitions.
//
// Rejected events return *Error and leave the session untouched.
package session
