// Package notifier delivers small, high-signal messages to the bot owners:
// broadcast cycle reports, recipient drops, and explicit alerts raised by
// other components.
//
// # Pipeline
//
// Notify enqueues into a bounded queue consumed by a worker pool; sends are
// rate limited and retried with jittered exponential backoff. When the queue
// is full the oldest pending notification is evicted so fresh alerts win.
//
// # Dedup
//
// Each notification carries a content-derived key. Within the configured
// window, repeats of the same key are suppressed, optionally across restarts
// when a storage backend is attached.
//
// # Event intake
//
// Besides explicit Notify calls, the service subscribes to the event bus and
// turns completed-cycle reports into owner summaries. Clean cycles stay
// quiet.
package notifier
