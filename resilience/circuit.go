package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ParseState parses "closed", "open" or "half-open".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed":
		return StateClosed, nil
	case "open":
		return StateOpen, nil
	case "half-open", "half_open", "halfopen":
		return StateHalfOpen, nil
	default:
		return StateClosed, fmt.Errorf("resilience: unknown circuit state %q", s)
	}
}

// CircuitBreakerConfig configures every breaker in a Registry.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failure-class errors before opening.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open.
	// Default: 60 seconds
	ResetTimeout time.Duration

	// MonitorInterval is how often Run scans for breakers due to half-open.
	// Default: 1 second
	MonitorInterval time.Duration

	// HalfOpenMaxRequests is the number of trial calls admitted while half-open.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called after a breaker changes state, outside any lock.
	OnStateChange func(service string, from, to State)

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// BreakerState is a point-in-time copy of one breaker.
type BreakerState struct {
	Service         string
	State           State
	FailureCount    int
	SuccessCount    int
	LastStateChange time.Time
	LastFailureTime *time.Time
	NextAttemptTime *time.Time
}

type breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastStateChange time.Time
	lastFailure     time.Time
	nextAttempt     time.Time
	halfOpenCount   int
}

type transition struct {
	service  string
	from, to State
}

// Registry holds one circuit breaker per service.
type Registry struct {
	config CircuitBreakerConfig

	mu       sync.RWMutex
	breakers map[string]*breaker
}

// NewRegistry creates a breaker registry.
func NewRegistry(config CircuitBreakerConfig) *Registry {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Registry{
		config:   config,
		breakers: make(map[string]*breaker),
	}
}

// Config returns the registry configuration.
func (r *Registry) Config() CircuitBreakerConfig {
	return r.config
}

func (r *Registry) get(service string) *breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[service]; ok {
		return b
	}
	b = &breaker{
		state:           StateClosed,
		lastStateChange: r.config.Now(),
	}
	r.breakers[service] = b
	return b
}

// Register creates closed breakers for services that have none yet.
func (r *Registry) Register(services ...string) {
	for _, service := range services {
		r.get(service)
	}
}

// Allow admits or rejects a call for service.
//
// An open breaker whose reset timeout elapsed moves to half-open first.
// In half-open only HalfOpenMaxRequests trial calls are admitted at a time;
// an admitted call must be followed by RecordOutcome.
func (r *Registry) Allow(service string) error {
	b := r.get(service)

	b.mu.Lock()
	var changes []transition
	if b.state == StateOpen && !r.config.Now().Before(b.nextAttempt) {
		changes = append(changes, r.setState(service, b, StateHalfOpen))
	}

	var err error
	switch b.state {
	case StateOpen:
		err = CircuitOpenError(service)
	case StateHalfOpen:
		if b.halfOpenCount >= r.config.HalfOpenMaxRequests {
			err = CircuitOpenError(service).WithDetails(map[string]any{
				"service": service,
				"state":   StateHalfOpen.String(),
			})
		} else {
			b.halfOpenCount++
		}
	}
	b.mu.Unlock()

	r.notify(changes)
	return err
}

// IsOpen reports whether calls to service are currently rejected outright.
func (r *Registry) IsOpen(service string) bool {
	b := r.get(service)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen && r.config.Now().Before(b.nextAttempt)
}

// RecordOutcome feeds the result of an admitted call back into the breaker.
// A nil err is a success. Only failure-class categories count as failures.
// Rejections raised before the downstream was reached (rate limit, bulkhead,
// invalid policy) are no outcome: a half-open trial slot is released and the
// state is left alone.
func (r *Registry) RecordOutcome(service string, err error) {
	if isRejection(err) {
		r.release(service)
		return
	}
	b := r.get(service)
	failure := err != nil && IsFailureClass(Classify(err))
	now := r.config.Now()

	b.mu.Lock()
	var changes []transition

	switch b.state {
	case StateClosed:
		if failure {
			b.failures++
			b.lastFailure = now
			if b.failures >= r.config.FailureThreshold {
				changes = append(changes, r.setState(service, b, StateOpen))
			}
		} else if err == nil {
			b.successes++
			b.failures = 0
		}

	case StateHalfOpen:
		if b.halfOpenCount > 0 {
			b.halfOpenCount--
		}
		if failure {
			b.failures++
			b.lastFailure = now
			changes = append(changes, r.setState(service, b, StateOpen))
		} else {
			changes = append(changes, r.setState(service, b, StateClosed))
		}

	case StateOpen:
		// Outcome of a call admitted before the breaker opened.
		if failure {
			b.failures++
			b.lastFailure = now
		}
	}
	b.mu.Unlock()

	r.notify(changes)
}

// release returns a half-open trial slot without recording an outcome.
func (r *Registry) release(service string) {
	b := r.get(service)
	b.mu.Lock()
	if b.state == StateHalfOpen && b.halfOpenCount > 0 {
		b.halfOpenCount--
	}
	b.mu.Unlock()
}

func isRejection(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrBulkheadFull) ||
		errors.Is(err, ErrInvalidPolicy)
}

// Execute runs op through the breaker for service.
// If op panics the trial slot is released and the panic continues.
func (r *Registry) Execute(ctx context.Context, service string, op Operation) (any, error) {
	if err := r.Allow(service); err != nil {
		return nil, err
	}

	returned := false
	defer func() {
		if !returned {
			r.release(service)
		}
	}()

	result, err := op(ctx)
	returned = true
	r.RecordOutcome(service, err)
	return result, err
}

// ForceState overrides the state of a breaker.
func (r *Registry) ForceState(service string, state State) {
	b := r.get(service)

	b.mu.Lock()
	var changes []transition
	if b.state != state {
		changes = append(changes, r.setState(service, b, state))
	} else if state == StateOpen {
		b.nextAttempt = r.config.Now().Add(r.config.ResetTimeout)
	}
	b.mu.Unlock()

	r.notify(changes)
}

// Reset closes every breaker.
func (r *Registry) Reset() {
	for _, service := range r.services() {
		r.ForceState(service, StateClosed)
	}
}

// Snapshot returns a copy of every breaker, keyed by service.
func (r *Registry) Snapshot() map[string]BreakerState {
	out := make(map[string]BreakerState)
	for _, service := range r.services() {
		out[service] = r.State(service)
	}
	return out
}

// State returns a copy of the breaker for service.
func (r *Registry) State(service string) BreakerState {
	b := r.get(service)
	b.mu.Lock()
	defer b.mu.Unlock()

	st := BreakerState{
		Service:         service,
		State:           b.state,
		FailureCount:    b.failures,
		SuccessCount:    b.successes,
		LastStateChange: b.lastStateChange,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		st.LastFailureTime = &t
	}
	if b.state == StateOpen {
		t := b.nextAttempt
		st.NextAttemptTime = &t
	}
	return st
}

// Run moves open breakers whose reset timeout elapsed to half-open,
// scanning every MonitorInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep performs one monitor pass.
func (r *Registry) Sweep() {
	now := r.config.Now()
	for _, service := range r.services() {
		b := r.get(service)

		b.mu.Lock()
		var changes []transition
		if b.state == StateOpen && !now.Before(b.nextAttempt) {
			changes = append(changes, r.setState(service, b, StateHalfOpen))
		}
		b.mu.Unlock()

		r.notify(changes)
	}
}

func (r *Registry) services() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// setState must be called with b.mu held.
func (r *Registry) setState(service string, b *breaker, to State) transition {
	from := b.state
	now := r.config.Now()

	b.state = to
	b.lastStateChange = now

	switch to {
	case StateOpen:
		b.nextAttempt = now.Add(r.config.ResetTimeout)
	case StateHalfOpen:
		b.nextAttempt = time.Time{}
		b.halfOpenCount = 0
	case StateClosed:
		b.nextAttempt = time.Time{}
		b.failures = 0
		b.successes = 0
	}

	return transition{service: service, from: from, to: to}
}

func (r *Registry) notify(changes []transition) {
	if r.config.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		r.config.OnStateChange(c.service, c.from, c.to)
	}
}
