// Package device delivers text lines to the bin's controller over WebSocket.
//
// Channel owns the only connection. Send appends to an unbounded FIFO queue and
// never blocks on network I/O; a single worker drains the queue, dialing lazily
// when disconnected and pausing briefly between writes. A failed write drops the
// connection so the next message redials. In at-most-once mode the failed
// message is dropped; in at-least-once mode it is retried up to MaxAttempts.
// Close queues a sentinel so already-queued messages are still delivered.
package device
