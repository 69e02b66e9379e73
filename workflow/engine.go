package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/flowops/events"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
	"github.com/jonwraymond/flowops/routing"
)

// Router routes one step call.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
type Router interface {
	RouteRequest(ctx context.Context, serviceType string, req routing.Request, opts routing.Options) (routing.Response, error)
}

// Config configures an Engine.
type Config struct {
	// Definitions are registered at construction.
	Definitions []Definition

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// Sleep waits between step retries. Default: a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithAvailability sets the source for service_available conditions.
// Without one those conditions pass.
func WithAvailability(a Availability) Option {
	return func(e *Engine) { e.avail = a }
}

// WithGauges sets the source for quota, cost and quality conditions.
// Without one those conditions pass.
func WithGauges(g Gauges) Option {
	return func(e *Engine) { e.gauges = g }
}

// WithPublisher sets where workflow events are published.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithObserver sets the tracing and metrics middleware.
func WithObserver(m *observe.Middleware) Option {
	return func(e *Engine) {
		if m != nil {
			e.obs = m
		}
	}
}

// Engine executes workflow definitions through a Router.
type Engine struct {
	router    Router
	avail     Availability
	gauges    Gauges
	publisher events.Publisher
	obs       *observe.Middleware
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	defs  map[string]Definition
	execs map[string]*Execution
}

// NewEngine creates an Engine and registers config.Definitions.
func NewEngine(router Router, config Config, opts ...Option) (*Engine, error) {
	if router == nil {
		return nil, ErrNilRouter
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}

	e := &Engine{
		router: router,
		obs:    observe.NoopMiddleware(),
		now:    config.Now,
		sleep:  config.Sleep,
		defs:   make(map[string]Definition),
		execs:  make(map[string]*Execution),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, d := range config.Definitions {
		if err := e.Register(d); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register adds or replaces a definition.
func (e *Engine) Register(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[d.Name] = d
	return nil
}

// Definitions returns the registered definitions sorted by name.
func (e *Engine) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Definition, 0, len(e.defs))
	for _, d := range e.defs {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Execute runs the named workflow to completion and returns the final record.
//
// An unknown name or an unmet condition returns an error before any record is
// created. A failed step returns the record together with a
// STEP_EXECUTION_FAILED error; a cancelled run returns the record together
// with ErrCancelled.
func (e *Engine) Execute(ctx context.Context, name string, params, execCtx map[string]any) (*Execution, error) {
	e.mu.RLock()
	def, ok := e.defs[name]
	e.mu.RUnlock()
	if !ok {
		return nil, notFound("workflow", name)
	}

	for _, c := range def.Conditions {
		if !e.conditionMet(ctx, def.Name, c, params) {
			return nil, conditionNotMet(def.Name, c)
		}
	}

	rec := e.start(def, params, execCtx)

	ctx, span := e.obs.Tracer().StartSpan(ctx, observe.CallMeta{Workflow: def.Name, RequestID: rec.ID})
	err := e.run(ctx, def, rec)
	e.obs.Tracer().EndSpan(span, err)

	e.mu.RLock()
	snap := rec.clone()
	e.mu.RUnlock()

	e.obs.Metrics().RecordWorkflow(ctx, def.Name, string(snap.Status), snap.Duration())
	return snap, err
}

// Cancel stops a running execution. Steps in flight are marked cancelled and
// their results are discarded when they return.
func (e *Engine) Cancel(id string) (*Execution, error) {
	e.mu.Lock()
	rec, ok := e.execs[id]
	if !ok {
		e.mu.Unlock()
		return nil, notFound("execution", id)
	}
	if rec.Status != StatusRunning {
		status := rec.Status
		e.mu.Unlock()
		return nil, notCancelable(id, status)
	}

	now := e.now()
	rec.Status = StatusCancelled
	rec.EndTime = timePtr(now)
	for i := range rec.Steps {
		if rec.Steps[i].Status == StepRunning {
			rec.Steps[i].Status = StepCancelled
			rec.Steps[i].EndTime = timePtr(now)
		}
	}
	snap := rec.clone()
	e.mu.Unlock()

	e.publish(events.WorkflowCancelled, snap, nil)
	return snap, nil
}

// Get returns a copy of the execution with the given ID.
func (e *Engine) Get(id string) (*Execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.execs[id]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// List returns copies of all executions, oldest first.
func (e *Engine) List() []*Execution {
	e.mu.RLock()
	out := make([]*Execution, 0, len(e.execs))
	for _, rec := range e.execs {
		out = append(out, rec.clone())
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Execution) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Evict removes a finished execution.
func (e *Engine) Evict(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.execs[id]
	if !ok {
		return notFound("execution", id)
	}
	if rec.Status == StatusRunning {
		return fmt.Errorf("%w: %s", ErrExecutionRunning, id)
	}
	delete(e.execs, id)
	return nil
}

func (e *Engine) conditionMet(ctx context.Context, workflow string, c Condition, params map[string]any) bool {
	switch c.Type {
	case ServiceAvailable:
		return e.avail == nil || e.avail.Available(c.Service)
	case QuotaAvailable:
		if e.gauges == nil {
			return true
		}
		v, err := e.gauges.QuotaRemaining(ctx, c.Service)
		return err == nil && v > c.Threshold
	case CostThreshold:
		if e.gauges == nil {
			return true
		}
		v, err := e.gauges.EstimatedCost(ctx, workflow, params)
		return err == nil && v <= c.Threshold
	case QualityThreshold:
		if e.gauges == nil {
			return true
		}
		v, err := e.gauges.QualityScore(ctx, c.Service)
		return err == nil && v >= c.Threshold
	default:
		return false
	}
}

func (e *Engine) start(def Definition, params, execCtx map[string]any) *Execution {
	rec := &Execution{
		ID:           uuid.NewString(),
		WorkflowName: def.Name,
		Status:       StatusRunning,
		Steps:        make([]StepRuntime, len(def.Steps)),
		StartTime:    e.now(),
		Params:       make(map[string]any, len(params)),
		Context:      make(map[string]any, len(execCtx)+len(def.Steps)),
	}
	for i, s := range def.Steps {
		rec.Steps[i] = StepRuntime{StepID: s.ID, Service: s.Service, Status: StepPending}
	}
	for k, v := range params {
		rec.Params[k] = v
	}
	for k, v := range execCtx {
		rec.Context[k] = v
	}

	e.mu.Lock()
	e.execs[rec.ID] = rec
	e.mu.Unlock()
	return rec
}

func (e *Engine) run(ctx context.Context, def Definition, rec *Execution) error {
	for i, step := range def.Steps {
		if err := e.runStep(ctx, def, rec, i, step); err != nil {
			return err
		}
	}

	e.mu.Lock()
	if rec.Status != StatusRunning {
		e.mu.Unlock()
		return cancelled(rec.ID)
	}
	rec.Status = StatusCompleted
	rec.EndTime = timePtr(e.now())
	rec.Output = make(map[string]any, len(rec.Steps))
	for _, s := range rec.Steps {
		rec.Output[s.StepID] = s.Result
	}
	snap := rec.clone()
	e.mu.Unlock()

	e.publish(events.WorkflowCompleted, snap, nil)
	return nil
}

// runStep routes one step, retrying while its policy allows. The step is
// pending between tries.
func (e *Engine) runStep(ctx context.Context, def Definition, rec *Execution, i int, step StepDefinition) error {
	for {
		payload, ok := e.beginStep(rec, i, step)
		if !ok {
			return cancelled(rec.ID)
		}

		meta := observe.CallMeta{
			Service:   step.Service,
			Operation: step.Operation,
			RequestID: rec.ID,
			Workflow:  def.Name,
			Step:      step.ID,
		}
		sctx, span := e.obs.Tracer().StartSpan(ctx, meta)
		resp, err := e.router.RouteRequest(sctx, step.Service,
			routing.Request{Operation: step.Operation, Payload: payload},
			routing.Options{RequestID: rec.ID + "/" + step.ID})
		e.obs.Tracer().EndSpan(span, err)

		if err == nil {
			return e.completeStep(rec, i, resp.Data)
		}

		delay, retry, ferr := e.retryOrFail(rec, i, step, err)
		if !retry {
			return ferr
		}
		if serr := e.sleep(ctx, delay); serr != nil {
			_, _, ferr = e.retryOrFail(rec, i, StepDefinition{ID: step.ID}, serr)
			return ferr
		}
	}
}

func (e *Engine) beginStep(rec *Execution, i int, step StepDefinition) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec.Status != StatusRunning {
		return nil, false
	}
	s := &rec.Steps[i]
	s.Status = StepRunning
	if s.StartTime == nil {
		s.StartTime = timePtr(e.now())
	}
	return buildPayload(step, scope{params: rec.Params, steps: rec.Context}), true
}

func (e *Engine) completeStep(rec *Execution, i int, data any) error {
	e.mu.Lock()
	if rec.Status != StatusRunning {
		e.mu.Unlock()
		return cancelled(rec.ID)
	}
	s := &rec.Steps[i]
	s.Status = StepCompleted
	s.EndTime = timePtr(e.now())
	s.Result = data
	s.Error = ""
	rec.Context[s.StepID] = data
	snap := rec.clone()
	e.mu.Unlock()

	e.publish(events.WorkflowStepCompleted, snap, map[string]any{"step": snap.Steps[i].StepID})
	return nil
}

// retryOrFail records a failed try. It returns the delay and true when the
// step policy allows another try, otherwise it fails the execution.
func (e *Engine) retryOrFail(rec *Execution, i int, step StepDefinition, cause error) (time.Duration, bool, error) {
	e.mu.Lock()
	if rec.Status != StatusRunning {
		e.mu.Unlock()
		return 0, false, cancelled(rec.ID)
	}

	s := &rec.Steps[i]
	s.Error = cause.Error()
	if p := step.RetryPolicy; p != nil && s.RetryCount < p.MaxRetries {
		delay := p.Delay(s.RetryCount)
		s.RetryCount++
		s.Status = StepPending
		e.mu.Unlock()
		return delay, true, nil
	}

	now := e.now()
	s.Status = StepFailed
	s.EndTime = timePtr(now)
	rec.Status = StatusFailed
	rec.EndTime = timePtr(now)
	rec.Error = cause.Error()
	snap := rec.clone()
	e.mu.Unlock()

	stepID := snap.Steps[i].StepID
	e.publish(events.WorkflowFailed, snap, map[string]any{
		"step":  stepID,
		"code":  resilience.CodeOf(cause),
		"error": cause.Error(),
	})
	return 0, false, stepFailed(snap.ID, stepID, cause)
}

func (e *Engine) publish(t events.Type, snap *Execution, extra map[string]any) {
	if e.publisher == nil {
		return
	}
	data := map[string]any{
		"workflow":    snap.WorkflowName,
		"executionId": snap.ID,
		"status":      string(snap.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	e.publisher.Publish(events.Event{
		Type:      t,
		Timestamp: e.now(),
		Subject:   snap.ID,
		Data:      data,
	})
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
