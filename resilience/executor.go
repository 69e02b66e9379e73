package resilience

import (
	"context"
	"time"
)

// Executor composes multiple resilience patterns around calls to one service.
type Executor struct {
	breakers    *Registry
	retrier     *Retrier
	rateLimiter *RateLimiter
	bulkhead    *Bulkhead
	timeout     *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithBreakers gates calls through the breaker registered for the call's service.
func WithBreakers(r *Registry) ExecutorOption {
	return func(e *Executor) {
		e.breakers = r
	}
}

// WithRetrier adds retry logic to the executor.
func WithRetrier(r *Retrier) ExecutorOption {
	return func(e *Executor) {
		e.retrier = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = NewTimeout(d)
		}
	}
}

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead {
	return e.bulkhead
}

// Execute runs the operation through all configured resilience patterns.
//
// The execution order is:
// 1. Circuit Breaker (if configured) - admission once, outcome recorded once
// 2. Retry (if configured) - retries the inner chain under policy
// 3. Rate Limiter (if configured) - limits request rate per attempt
// 4. Bulkhead (if configured) - limits concurrency per attempt
// 5. Timeout (if configured) - limits each attempt
func (e *Executor) Execute(ctx context.Context, call CallContext, policy RetryPolicy, op Operation) (any, error) {
	// Build the execution chain from inside out
	execute := op

	// Wrap with timeout (innermost)
	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) (any, error) {
			return e.timeout.Execute(ctx, inner)
		}
	}

	// Wrap with bulkhead
	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) (any, error) {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	// Wrap with rate limiter
	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) (any, error) {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	// Wrap with retry
	if e.retrier != nil {
		inner := execute
		execute = func(ctx context.Context) (any, error) {
			return e.retrier.Execute(ctx, call, policy, inner)
		}
	}

	// Wrap with circuit breaker (outermost)
	if e.breakers != nil {
		inner := execute
		execute = func(ctx context.Context) (any, error) {
			return e.breakers.Execute(ctx, call.Service, inner)
		}
	}

	return execute(ctx)
}
