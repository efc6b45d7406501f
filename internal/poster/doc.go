// Package poster is the broadcast engine: a cron-driven service that
// delivers the stored payload to every recipient on a fixed cadence,
// with rate-limit backoff, per-recipient failure isolation, and at most
// one cycle in flight.
package poster
