package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ServiceHealth is the probe-derived health record of one service.
type ServiceHealth struct {
	Service             string        `json:"service"`
	Status              Status        `json:"status"`
	ResponseTime        time.Duration `json:"responseTime"`
	ErrorRate           float64       `json:"errorRate"`
	LastCheck           time.Time     `json:"lastCheck"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Message             string        `json:"message,omitempty"`
}

// RegistryConfig configures the health registry.
type RegistryConfig struct {
	// Interval is how often Run probes every service.
	// Default: 30 seconds
	Interval time.Duration

	// Timeout bounds each probe.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxParallel caps concurrently running probes.
	// Default: 0 (no limit)
	MaxParallel int

	// OnChange is called after a service changes status, outside any lock.
	OnChange func(service string, from, to Status, current ServiceHealth)

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

type entry struct {
	checker Checker

	mu     sync.Mutex
	health ServiceHealth
}

// Registry keeps one ServiceHealth record per registered service and updates
// it from periodic probes. Records start healthy and change only by probing.
type Registry struct {
	config RegistryConfig

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates a health registry.
func NewRegistry(config RegistryConfig) *Registry {
	// Apply defaults
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Registry{
		config:  config,
		entries: make(map[string]*entry),
	}
}

// Config returns the registry configuration.
func (r *Registry) Config() RegistryConfig {
	return r.config
}

// Register adds a service with its probe. A nil checker keeps the service
// permanently at its initial healthy state. Registering an existing service
// replaces its probe and keeps its record.
func (r *Registry) Register(service string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[service]; exists {
		e.mu.Lock()
		e.checker = checker
		e.mu.Unlock()
		return
	}
	r.entries[service] = &entry{
		checker: checker,
		health: ServiceHealth{
			Service:   service,
			Status:    StatusHealthy,
			LastCheck: r.config.Now(),
		},
	}
	r.order = append(r.order, service)
}

// Unregister removes a service.
func (r *Registry) Unregister(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, service)
	for i, n := range r.order {
		if n == service {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Services returns the registered services in registration order.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Status returns a copy of the record for service.
func (r *Registry) Status(service string) (ServiceHealth, bool) {
	r.mu.RLock()
	e, ok := r.entries[service]
	r.mu.RUnlock()
	if !ok {
		return ServiceHealth{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health, true
}

// IsUnhealthy reports whether service is registered and unhealthy.
func (r *Registry) IsUnhealthy(service string) bool {
	h, ok := r.Status(service)
	return ok && h.Status == StatusUnhealthy
}

// Snapshot returns a copy of every record, keyed by service.
func (r *Registry) Snapshot() map[string]ServiceHealth {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.entries))
	for name, e := range r.entries {
		entries[name] = e
	}
	r.mu.RUnlock()

	out := make(map[string]ServiceHealth, len(entries))
	for name, e := range entries {
		e.mu.Lock()
		out[name] = e.health
		e.mu.Unlock()
	}
	return out
}

// Overall returns unhealthy if any service is unhealthy, degraded if any is
// degraded, and healthy otherwise (including when nothing is registered).
func (r *Registry) Overall() Status {
	return OverallStatus(r.Snapshot())
}

// OverallStatus folds a set of records into a single status.
func OverallStatus(records map[string]ServiceHealth) Status {
	hasDegraded := false
	for _, h := range records {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Probe runs the probe for one service and applies its result.
func (r *Registry) Probe(ctx context.Context, service string) (ServiceHealth, error) {
	r.mu.RLock()
	e, ok := r.entries[service]
	r.mu.RUnlock()
	if !ok {
		return ServiceHealth{}, ErrServiceNotFound
	}
	return r.probe(ctx, service, e), nil
}

// ProbeAll probes every registered service in parallel and returns the
// updated records.
func (r *Registry) ProbeAll(ctx context.Context) map[string]ServiceHealth {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.entries))
	for name, e := range r.entries {
		entries[name] = e
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[string]ServiceHealth, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	if r.config.MaxParallel > 0 {
		g.SetLimit(r.config.MaxParallel)
	}
	for name, e := range entries {
		g.Go(func() error {
			h := r.probe(gctx, name, e)
			mu.Lock()
			results[name] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Run probes every service each Interval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ProbeAll(ctx)
		}
	}
}

func (r *Registry) probe(ctx context.Context, service string, e *entry) ServiceHealth {
	e.mu.Lock()
	checker := e.checker
	if checker == nil {
		h := e.health
		e.mu.Unlock()
		return h
	}
	e.mu.Unlock()

	result := r.runCheck(ctx, checker)
	failed := result.Status == StatusUnhealthy || result.Error != nil

	e.mu.Lock()
	from := e.health.Status
	h := &e.health
	h.LastCheck = r.config.Now()
	h.ResponseTime = result.Duration
	h.Message = result.Message

	sample := 0.0
	if failed {
		sample = 1
		h.ConsecutiveFailures++
		h.Status = StatusUnhealthy
		if h.Message == "" && result.Error != nil {
			h.Message = result.Error.Error()
		}
	} else {
		h.ConsecutiveFailures = 0
		h.Status = StatusHealthy
		if result.Status == StatusDegraded {
			h.Status = StatusDegraded
		}
	}
	h.ErrorRate = (h.ErrorRate + sample) / 2
	current := *h
	e.mu.Unlock()

	if from != current.Status && r.config.OnChange != nil {
		r.config.OnChange(service, from, current.Status, current)
	}
	return current
}

func (r *Registry) runCheck(ctx context.Context, checker Checker) Result {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- Result{
					Status:    StatusUnhealthy,
					Message:   fmt.Sprintf("check panicked: %v", p),
					Error:     ErrCheckPanicked,
					Duration:  time.Since(start),
					Timestamp: start,
				}
			}
		}()

		result := checker.Check(ctx)
		result.Duration = time.Since(start)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
