package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential doubles the delay each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffFixed uses the same delay for all retries.
	BackoffFixed
)

// String returns the string representation of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffExponential:
		return "exponential"
	case BackoffLinear:
		return "linear"
	case BackoffFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseBackoffStrategy parses "fixed", "linear" or "exponential".
func ParseBackoffStrategy(s string) (BackoffStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exponential", "":
		return BackoffExponential, nil
	case "linear":
		return BackoffLinear, nil
	case "fixed", "constant":
		return BackoffFixed, nil
	default:
		return BackoffExponential, fmt.Errorf("%w: unknown backoff strategy %q", ErrInvalidPolicy, s)
	}
}

// RetryPolicy configures how an operation is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the base delay.
	InitialDelay time.Duration

	// MaxDelay caps every computed delay, jitter included.
	MaxDelay time.Duration

	// Backoff is the backoff strategy.
	Backoff BackoffStrategy

	// RetryableErrors lists the categories that may be retried.
	RetryableErrors []Category

	// Jitter adds up to 10% random delay.
	Jitter bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Backoff:      BackoffExponential,
		RetryableErrors: []Category{
			CategoryNetwork,
			CategoryTimeout,
			CategoryRateLimit,
			CategoryServiceUnavailable,
		},
		Jitter: true,
	}
}

// Validate checks the policy invariants.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0, got %d", ErrInvalidPolicy, p.MaxRetries)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("%w: initial delay must be >= 0, got %v", ErrInvalidPolicy, p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("%w: max delay %v is below initial delay %v", ErrInvalidPolicy, p.MaxDelay, p.InitialDelay)
	}
	return nil
}

// IsRetryable reports whether c is in RetryableErrors.
func (p RetryPolicy) IsRetryable(c Category) bool {
	for _, rc := range p.RetryableErrors {
		if rc == c {
			return true
		}
	}
	return false
}

// Retryable reports whether err may be retried under p.
// Breaker rejections never are.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil || IsCircuitOpen(err) {
		return false
	}
	return p.IsRetryable(Classify(err))
}

// Delay returns the delay before retry n (0-based), without jitter.
//
// fixed: InitialDelay; exponential: InitialDelay*2^n; linear: InitialDelay*(n+1).
// The result never exceeds MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}

	var delay float64
	base := float64(p.InitialDelay)

	switch p.Backoff {
	case BackoffFixed:
		delay = base
	case BackoffLinear:
		delay = base * float64(n+1)
	default:
		delay = base * math.Pow(2, float64(n))
	}

	if delay > float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// jittered applies jitter on top of Delay.
func (p RetryPolicy) jittered(n int) time.Duration {
	d := p.Delay(n)
	if p.Jitter && d > 0 {
		span := int64(d) / 10
		if span > 0 {
			// #nosec G404 -- jitter is non-cryptographic timing variance.
			d += time.Duration(rand.Int64N(span + 1))
		}
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

// CallContext describes one logical call for bookkeeping and telemetry.
type CallContext struct {
	Service   string
	Operation string
	RequestID string
	Timestamp time.Time
}

// Operation is a unit of work that may be retried.
type Operation func(ctx context.Context) (any, error)

// Recorder receives the final outcome of every executed operation.
type Recorder interface {
	RecordSuccess(service string, responseTime time.Duration)
	RecordError(service string, err error, responseTime time.Duration)
}

// AttemptRecord is the transient bookkeeping for an operation being retried.
type AttemptRecord struct {
	OperationID string
	Service     string
	Attempt     int
	StartTime   time.Time
	LastError   error
}

// RetrierConfig configures a Retrier.
type RetrierConfig struct {
	// Recorder receives success and failure outcomes. Optional.
	Recorder Recorder

	// OnRetry is called before each retry attempt.
	OnRetry func(call CallContext, attempt int, err error, delay time.Duration)

	// OnFailure is called once when an operation finally fails.
	OnFailure func(call CallContext, err error, attempts int)

	// Sleep waits for d or until ctx is done.
	// Default: a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retrier runs operations under a RetryPolicy.
type Retrier struct {
	config RetrierConfig

	mu       sync.Mutex
	inflight map[string]*AttemptRecord
}

// NewRetrier creates a new Retrier.
func NewRetrier(config RetrierConfig) *Retrier {
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	return &Retrier{
		config:   config,
		inflight: make(map[string]*AttemptRecord),
	}
}

// Execute runs op up to policy.MaxRetries+1 times.
//
// Before every retry the previous failure is classified; a category outside
// policy.RetryableErrors ends the loop at once without waiting.
func (r *Retrier) Execute(ctx context.Context, call CallContext, policy RetryPolicy, op Operation) (any, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	id := call.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	start := time.Now()
	r.track(id, call.Service, start)
	defer r.untrack(id)

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if !policy.Retryable(lastErr) {
				break
			}

			delay := policy.jittered(attempt - 1)
			if r.config.OnRetry != nil {
				r.config.OnRetry(call, attempt, lastErr, delay)
			}
			if err := r.config.Sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		r.update(id, attempt, nil)

		result, err := op(ctx)
		if err == nil {
			if r.config.Recorder != nil {
				r.config.Recorder.RecordSuccess(call.Service, time.Since(start))
			}
			return result, nil
		}

		lastErr = err
		r.update(id, attempt, err)
	}

	if r.config.Recorder != nil {
		r.config.Recorder.RecordError(call.Service, lastErr, time.Since(start))
	}
	if r.config.OnFailure != nil {
		r.config.OnFailure(call, lastErr, attempts)
	}
	return nil, lastErr
}

// Attempts returns a snapshot of operations that are currently executing.
func (r *Retrier) Attempts() []AttemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AttemptRecord, 0, len(r.inflight))
	for _, rec := range r.inflight {
		out = append(out, *rec)
	}
	return out
}

func (r *Retrier) track(id, service string, start time.Time) {
	r.mu.Lock()
	r.inflight[id] = &AttemptRecord{OperationID: id, Service: service, StartTime: start}
	r.mu.Unlock()
}

func (r *Retrier) update(id string, attempt int, err error) {
	r.mu.Lock()
	if rec, ok := r.inflight[id]; ok {
		rec.Attempt = attempt
		if err != nil {
			rec.LastError = err
		}
	}
	r.mu.Unlock()
}

func (r *Retrier) untrack(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

