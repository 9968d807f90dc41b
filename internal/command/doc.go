// Package command wraps platform dispatch with the reliability policy:
// per-attempt timeouts, classified retries with exponential backoff, and
// batch execution.
//
// # Retry Policy
//
// Each execution makes up to Retries+1 attempts, every attempt bounded
// by its own timeout. Whether a failure is retried is decided by the
// fault taxonomy, never by string matching: transient codes (network,
// timeout, device_offline, rate_limit) retry, everything else surfaces
// immediately. Backoff doubles from BackoffBase per retry, capped at
// 16x, with symmetric jitter to spread synchronized callers apart. A
// rate-limit fault carrying a server retry-after hint overrides the
// computed delay.
//
// Context cancellation wins over everything: an abandoned caller stops
// the retry loop at the next suspension point.
//
// # Correlation
//
// Every execution gets a correlation id, stamped into the result and
// into the final fault's context. One user action maps to one id across
// all attempts, log lines, and the audit trail.
//
// # Batches
//
// ExecuteBatch settles one result per request in input order. Parallel
// batches run through a bounded in-flight window; sequential batches may
// carry a dispatch budget bounding how long new commands keep starting.
// Batch-level policy never hides per-command outcomes.
//
// # Observability
//
// The executor keeps counters and a rolling latency window (mean, p95,
// p99) and offers an optional Recorder hook that receives every settled
// result, which the telemetry writer uses for time-series export.
package command
