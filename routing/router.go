package routing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/flowops/cache"
	"github.com/jonwraymond/flowops/events"
	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
)

// Config configures a Router.
type Config struct {
	// Instances are registered in order. Order matters to round robin and
	// breaks ties for the other strategies.
	Instances []Instance

	// Strategy names the built-in selection strategy.
	// Default: round_robin
	Strategy string

	// DefaultTimeout bounds each attempt for instances without a Timeout.
	// Default: 30 seconds
	DefaultTimeout time.Duration

	// RetryPolicy applies to calls without an Options.RetryPolicy.
	// Default: resilience.DefaultRetryPolicy()
	RetryPolicy *resilience.RetryPolicy

	// Region is reported for instances that have none.
	Region string

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// HealthSource reports the probed health of an instance.
// *health.Registry satisfies it.
type HealthSource interface {
	Status(service string) (health.ServiceHealth, bool)
}

// Option configures a Router.
type Option func(*Router)

// WithBreakers gates every instance through its breaker in r.
func WithBreakers(r *resilience.Registry) Option {
	return func(rt *Router) { rt.breakers = r }
}

// WithRetrier sets the retrier shared by every instance.
// Default: a retrier that records to the WithRecorder recorder.
func WithRetrier(r *resilience.Retrier) Option {
	return func(rt *Router) { rt.retrier = r }
}

// WithHealth rejects instances that h reports unhealthy and feeds the
// adaptive strategy.
func WithHealth(h HealthSource) Option {
	return func(rt *Router) { rt.health = h }
}

// WithRecorder records calls rejected before the downstream call was made.
func WithRecorder(rec resilience.Recorder) Option {
	return func(rt *Router) { rt.recorder = rec }
}

// WithCache enables response caching for cacheable requests.
func WithCache(m *cache.Middleware) Option {
	return func(rt *Router) { rt.cache = m }
}

// WithObserver instruments every downstream attempt.
func WithObserver(m *observe.Middleware) Option {
	return func(rt *Router) { rt.obs = m }
}

// WithPublisher receives operation:error events.
func WithPublisher(p events.Publisher) Option {
	return func(rt *Router) { rt.publisher = p }
}

// WithStrategy overrides Config.Strategy with a custom strategy.
func WithStrategy(s Strategy) Option {
	return func(rt *Router) { rt.strategy = s }
}

type route struct {
	inst     Instance
	exec     *resilience.Executor
	inflight atomic.Int64
}

// Router routes requests to service instances.
type Router struct {
	config  Config
	invoker Invoker

	strategy  Strategy
	breakers  *resilience.Registry
	retrier   *resilience.Retrier
	health    HealthSource
	recorder  resilience.Recorder
	cache     *cache.Middleware
	obs       *observe.Middleware
	publisher events.Publisher

	mu      sync.RWMutex
	routes  []*route
	byID    map[string]*route
	weights map[string]float64
}

// New creates a Router and registers config.Instances.
func New(config Config, invoker Invoker, opts ...Option) (*Router, error) {
	if invoker == nil {
		return nil, ErrNilInvoker
	}

	// Apply defaults
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.RetryPolicy == nil {
		p := resilience.DefaultRetryPolicy()
		config.RetryPolicy = &p
	}
	if err := config.RetryPolicy.Validate(); err != nil {
		return nil, err
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	r := &Router{
		config:  config,
		invoker: invoker,
		byID:    make(map[string]*route),
		weights: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.strategy == nil {
		s, err := NewStrategy(config.Strategy)
		if err != nil {
			return nil, err
		}
		r.strategy = s
	}
	if r.retrier == nil {
		r.retrier = resilience.NewRetrier(resilience.RetrierConfig{Recorder: r.recorder})
	}
	if r.obs == nil {
		r.obs = observe.NoopMiddleware()
	}

	for _, inst := range config.Instances {
		if err := r.Add(inst); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers an instance. IDs must be unique.
func (r *Router) Add(inst Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[inst.ID]; exists {
		return fmt.Errorf("%w: duplicate id %q", ErrInvalidInstance, inst.ID)
	}
	rt := &route{inst: inst, exec: r.executorFor(inst)}
	r.routes = append(r.routes, rt)
	r.byID[inst.ID] = rt
	r.weights[inst.ID] = 1.0

	if r.breakers != nil {
		r.breakers.Register(inst.ID)
	}
	return nil
}

func (r *Router) executorFor(inst Instance) *resilience.Executor {
	timeout := inst.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}

	opts := []resilience.ExecutorOption{
		resilience.WithRetrier(r.retrier),
		resilience.WithTimeout(timeout),
	}
	if r.breakers != nil {
		opts = append(opts, resilience.WithBreakers(r.breakers))
	}
	if inst.RateLimit > 0 {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:        inst.RateLimit,
			Burst:       int(math.Ceil(inst.RateLimit)),
			WaitOnLimit: true,
		})))
	}
	if inst.MaxConcurrent > 0 {
		opts = append(opts, resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: inst.MaxConcurrent,
		})))
	}
	return resilience.NewExecutor(opts...)
}

// Strategy returns the name of the selection strategy.
func (r *Router) Strategy() string {
	return r.strategy.Name()
}

// Instances returns the registered instances in order.
func (r *Router) Instances() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instance, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.inst
	}
	return out
}

// Weights returns a copy of the health weight of every instance.
func (r *Router) Weights() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.weights))
	for id, w := range r.weights {
		out[id] = w
	}
	return out
}

// Load returns the number of in-flight calls to an instance.
func (r *Router) Load(id string) int {
	r.mu.RLock()
	rt, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return int(rt.inflight.Load())
}

// Available reports whether serviceType has an enabled instance that is
// neither unhealthy nor behind an open breaker.
func (r *Router) Available(serviceType string) bool {
	candidates, _ := r.candidates(serviceType)
	for _, c := range candidates {
		if c.Health == health.StatusUnhealthy {
			continue
		}
		if r.breakers != nil && r.breakers.IsOpen(c.Instance.ID) {
			continue
		}
		return true
	}
	return false
}

// OnHealthChanged adjusts the weight of an instance after a health change.
// Unhealthy scales it by 0.8 down to 0.1; healthy scales it by 1.2 up to 1.0.
func (r *Router) OnHealthChanged(service string, _, to health.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.weights[service]
	if !ok {
		return
	}
	switch to {
	case health.StatusUnhealthy:
		r.weights[service] = math.Max(0.1, w*0.8)
	case health.StatusHealthy:
		r.weights[service] = math.Min(1.0, w*1.2)
	}
}

// RouteRequest selects an instance of serviceType and calls it.
func (r *Router) RouteRequest(ctx context.Context, serviceType string, req Request, opts Options) (Response, error) {
	start := r.config.Now()
	resp := Response{RequestID: opts.RequestID}
	if resp.RequestID == "" {
		resp.RequestID = uuid.NewString()
	}

	candidates, routes := r.candidates(serviceType)
	if len(candidates) == 0 {
		err := resilience.NewError(resilience.CategoryServiceUnavailable,
			fmt.Sprintf("no services available for type %q", serviceType), ErrNoServices)
		r.reject(serviceType, serviceType, "", req, resp.RequestID, err)
		return resp, err
	}

	picked := r.strategy.Select(serviceType, candidates)
	inst := picked.Instance
	rt := routes[inst.ID]
	resp.Instance = inst.ID
	resp.Region = inst.Region
	if resp.Region == "" {
		resp.Region = r.config.Region
	}

	if picked.Health == health.StatusUnhealthy {
		err := resilience.NewError(resilience.CategoryServiceUnavailable,
			fmt.Sprintf("instance %q is unhealthy", inst.ID), ErrInstanceUnhealthy).
			WithDetails(map[string]any{"instance": inst.ID})
		r.reject(inst.ID, serviceType, inst.ID, req, resp.RequestID, err)
		return resp, err
	}

	policy := *r.config.RetryPolicy
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}

	call := resilience.CallContext{
		Service:   inst.ID,
		Operation: req.Operation,
		RequestID: resp.RequestID,
		Timestamp: start,
	}
	meta := observe.CallMeta{
		Service:   serviceType,
		Instance:  inst.ID,
		Operation: req.Operation,
		RequestID: resp.RequestID,
	}
	attempt := r.obs.Wrap(func(ctx context.Context, _ observe.CallMeta, _ any) (any, error) {
		return r.invoker.Invoke(ctx, inst, req)
	})
	load := func(ctx context.Context) (any, error) {
		rt.inflight.Add(1)
		defer rt.inflight.Add(-1)
		return rt.exec.Execute(ctx, call, policy, func(ctx context.Context) (any, error) {
			return attempt(ctx, meta, req.Payload)
		})
	}

	var (
		data any
		err  error
	)
	if opts.Cacheable && inst.CacheTTL > 0 && r.cache != nil {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = inst.CacheTTL
		}
		data, resp.Cached, err = r.cache.Execute(ctx, serviceType, req.Operation, req.Payload, ttl, load)
	} else {
		data, err = load(ctx)
	}
	resp.Duration = r.config.Now().Sub(start)

	if err != nil {
		// Breaker rejections never reach the retrier, so they are recorded here.
		if resilience.IsCircuitOpen(err) && r.recorder != nil {
			r.recorder.RecordError(inst.ID, err, 0)
		}
		r.publishError(serviceType, inst.ID, req, resp.RequestID, err)
		return resp, err
	}

	resp.Data = data
	return resp, nil
}

// candidates returns the enabled instances of serviceType in order, with
// their routing signals.
func (r *Router) candidates(serviceType string) ([]Candidate, map[string]*route) {
	r.mu.RLock()
	var out []Candidate
	routes := make(map[string]*route)
	for _, rt := range r.routes {
		if !rt.inst.Enabled || rt.inst.Type != serviceType {
			continue
		}
		out = append(out, Candidate{
			Instance: rt.inst,
			Load:     int(rt.inflight.Load()),
			Weight:   r.weights[rt.inst.ID],
			Health:   health.StatusHealthy,
		})
		routes[rt.inst.ID] = rt
	}
	r.mu.RUnlock()

	if r.health != nil {
		for i := range out {
			if h, ok := r.health.Status(out[i].Instance.ID); ok {
				out[i].Health = h.Status
			}
		}
	}
	return out, routes
}

// reject records and reports a call refused before any downstream attempt.
func (r *Router) reject(key, serviceType, instance string, req Request, requestID string, err error) {
	if r.recorder != nil {
		r.recorder.RecordError(key, err, 0)
	}
	r.publishError(serviceType, instance, req, requestID, err)
}

func (r *Router) publishError(serviceType, instance string, req Request, requestID string, err error) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(events.Event{
		Type:      events.OperationError,
		Timestamp: r.config.Now(),
		Subject:   serviceType,
		Data: map[string]any{
			"instance":  instance,
			"operation": req.Operation,
			"requestId": requestID,
			"code":      resilience.CodeOf(err),
			"category":  string(resilience.Classify(err)),
			"message":   err.Error(),
		},
	})
}
