// Package resilience provides the failure-handling primitives used around
// calls to downstream AI services.
//
// # Classification
//
// Every error is mapped to a Category by Classify. Errors that already carry a
// category (any *Error, or anything implementing Categorized) are trusted;
// everything else is matched against an ordered table of message and code
// patterns. The category drives both retry eligibility and breaker accounting:
// only NETWORK, SERVICE_UNAVAILABLE and TIMEOUT count as breaker failures.
//
// # Patterns
//
//   - Retry: Retrier runs an Operation under a RetryPolicy with fixed, linear
//     or exponential backoff, capped by MaxDelay.
//
//   - Circuit Breaker: Registry keeps one breaker per service, opening after
//     FailureThreshold failure-class errors and admitting a single trial call
//     once ResetTimeout has elapsed.
//
//   - Rate Limiter: token bucket per service instance.
//
//   - Bulkhead: bounded concurrency per service instance. Its Active count is
//     the load signal used by load-based routing.
//
//   - Timeout: bounds each attempt.
//
// # Usage
//
// Patterns compose through an Executor:
//
//	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{})
//	retrier := resilience.NewRetrier(resilience.RetrierConfig{Recorder: collector})
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBreakers(breakers),
//	    resilience.WithRetrier(retrier),
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 8})),
//	    resilience.WithTimeout(30*time.Second),
//	)
//
//	call := resilience.CallContext{Service: "imagen-primary", Operation: "generate"}
//	out, err := exec.Execute(ctx, call, resilience.DefaultRetryPolicy(), func(ctx context.Context) (any, error) {
//	    return client.Generate(ctx, req)
//	})
package resilience
