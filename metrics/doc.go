// Package metrics keeps per-service error counters and response-time averages
// derived from the outcome of every executed operation.
//
// A Collector implements resilience.Recorder, so it is plugged straight into a
// resilience.Retrier:
//
//	collector := metrics.NewCollector()
//	retrier := resilience.NewRetrier(resilience.RetrierConfig{Recorder: collector})
//
// Records are created lazily on first write. Reads always return copies.
package metrics
