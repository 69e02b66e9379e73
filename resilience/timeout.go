package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds the duration of a single attempt.
// An expired deadline surfaces as a TIMEOUT error wrapping ErrTimeout.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a timeout wrapper. A non-positive d falls back to 30 seconds.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = 30 * time.Second
	}
	return &Timeout{d: d}
}

// Duration returns the configured timeout.
func (t *Timeout) Duration() time.Duration {
	return t.d
}

// Execute runs op with a deadline.
//
// op keeps running in its goroutine after the deadline; its result is dropped.
// A panic in op is returned as an UNKNOWN error wrapping ErrPanicked.
func (t *Timeout) Execute(ctx context.Context, op Operation) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: NewError(CategoryUnknown, fmt.Sprintf("operation panicked: %v", r), ErrPanicked)}
			}
		}()
		result, err := op(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewError(CategoryTimeout, "operation timed out after "+t.d.String(), ErrTimeout)
		}
		return nil, ctx.Err()
	}
}
