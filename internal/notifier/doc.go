// Package notifier delivers outgoing notifications asynchronously.
//
// A notification carries a priority, a target chat and send options. The
// service queues it, rate limits delivery, retries failed sends with
// backoff and suppresses identical notifications inside a dedup window.
// Delivery goes through a transport.Adapter. Suppression windows can be
// persisted so they survive a restart.
package notifier
