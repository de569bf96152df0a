// Package observability provides Prometheus metrics for the distribution
// engine.
//
// All metric handles are nil-safe: components accept an optional *Metrics
// and may record unconditionally, so tests and embedded callers can leave
// metrics unset.
package observability
