package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/flowops/events"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
	"github.com/jonwraymond/flowops/routing"
)

type routedCall struct {
	service string
	req     routing.Request
	opts    routing.Options
}

// fakeRouter records calls and answers through fn, or echoes the operation.
type fakeRouter struct {
	mu    sync.Mutex
	calls []routedCall
	fn    func(service string, n int) (any, error)
}

func (r *fakeRouter) RouteRequest(_ context.Context, service string, req routing.Request, opts routing.Options) (routing.Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, routedCall{service: service, req: req, opts: opts})
	n := len(r.calls)
	r.mu.Unlock()

	if r.fn != nil {
		data, err := r.fn(service, n)
		return routing.Response{Data: data}, err
	}
	return routing.Response{Data: service + ":" + req.Operation}, nil
}

func (r *fakeRouter) routed() []routedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routedCall(nil), r.calls...)
}

type eventLog struct {
	mu    sync.Mutex
	types []events.Type
}

func (l *eventLog) handle(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
}

func (l *eventLog) seen() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Type(nil), l.types...)
}

func recordEvents() (*events.Bus, *eventLog) {
	bus := events.NewBus()
	log := &eventLog{}
	bus.Subscribe(log.handle)
	return bus, log
}

func noSleep(context.Context, time.Duration) error { return nil }

func captionWorkflow() Definition {
	return Definition{
		Name: "illustrate",
		Steps: []StepDefinition{
			{ID: "caption", Service: "text", Operation: "caption"},
			{
				ID:        "image",
				Service:   "image",
				Operation: "generate",
				Parameters: map[string]any{
					"prompt": "${steps.caption}",
					"style":  "${params.style}",
				},
			},
		},
	}
}

func newEngine(t *testing.T, r Router, defs []Definition, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(r, Config{Definitions: defs, Sleep: noSleep}, opts...)
	if err != nil {
		t.Fatalf("NewEngine error = %v", err)
	}
	return e
}

func sameTypes(a, b []events.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExecute_Completes(t *testing.T) {
	r := &fakeRouter{}
	bus, log := recordEvents()
	e := newEngine(t, r, []Definition{captionWorkflow()}, WithPublisher(bus))

	exec, err := e.Execute(context.Background(), "illustrate", map[string]any{"style": "ink"}, map[string]any{"user": "u1"})
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if exec.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", exec.Status, StatusCompleted)
	}
	if exec.EndTime == nil {
		t.Error("EndTime = nil, want set")
	}
	for _, s := range exec.Steps {
		if s.Status != StepCompleted {
			t.Errorf("step %s Status = %q, want completed", s.StepID, s.Status)
		}
	}
	if got := exec.Output["caption"]; got != "text:caption" {
		t.Errorf("Output[caption] = %v, want text:caption", got)
	}
	if got := exec.Context["image"]; got != "image:generate" {
		t.Errorf("Context[image] = %v, want image:generate", got)
	}
	if got := exec.Context["user"]; got != "u1" {
		t.Errorf("Context[user] = %v, want u1", got)
	}

	calls := r.routed()
	if len(calls) != 2 {
		t.Fatalf("routed %d calls, want 2", len(calls))
	}
	payload := calls[1].req.Payload.(map[string]any)
	if payload["prompt"] != "text:caption" || payload["style"] != "ink" {
		t.Errorf("image payload = %v, want resolved prompt and style", payload)
	}
	if calls[1].opts.RequestID != exec.ID+"/image" {
		t.Errorf("RequestID = %q, want %q", calls[1].opts.RequestID, exec.ID+"/image")
	}

	want := []events.Type{events.WorkflowStepCompleted, events.WorkflowStepCompleted, events.WorkflowCompleted}
	if got := log.seen(); !sameTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	e := newEngine(t, &fakeRouter{}, nil)

	_, err := e.Execute(context.Background(), "missing", nil, nil)
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("Execute error = %v, want ErrWorkflowNotFound", err)
	}
	if code := resilience.CodeOf(err); code != resilience.CodeWorkflowNotFound {
		t.Errorf("CodeOf = %q, want %q", code, resilience.CodeWorkflowNotFound)
	}
}

type availability map[string]bool

func (a availability) Available(service string) bool { return a[service] }

type stubGauges struct {
	quota, cost, quality float64
	err                  error
}

func (g stubGauges) QuotaRemaining(context.Context, string) (float64, error) { return g.quota, g.err }

func (g stubGauges) EstimatedCost(context.Context, string, map[string]any) (float64, error) {
	return g.cost, g.err
}

func (g stubGauges) QualityScore(context.Context, string) (float64, error) { return g.quality, g.err }

func TestExecute_Conditions(t *testing.T) {
	healthy := stubGauges{quota: 10, cost: 1, quality: 0.9}

	tests := []struct {
		name      string
		condition Condition
		avail     availability
		gauges    Gauges
		wantMet   bool
	}{
		{"service available", Condition{Type: ServiceAvailable, Service: "text"}, availability{"text": true}, nil, true},
		{"service unavailable", Condition{Type: ServiceAvailable, Service: "text"}, availability{}, nil, false},
		{"quota left", Condition{Type: QuotaAvailable, Service: "text"}, nil, healthy, true},
		{"quota exhausted", Condition{Type: QuotaAvailable, Service: "text"}, nil, stubGauges{}, false},
		{"cost under", Condition{Type: CostThreshold, Threshold: 2}, nil, healthy, true},
		{"cost over", Condition{Type: CostThreshold, Threshold: 0.5}, nil, healthy, false},
		{"quality met", Condition{Type: QualityThreshold, Service: "image", Threshold: 0.8}, nil, healthy, true},
		{"quality low", Condition{Type: QualityThreshold, Service: "image", Threshold: 0.95}, nil, healthy, false},
		{"gauge error", Condition{Type: QuotaAvailable, Service: "text"}, nil, stubGauges{quota: 10, err: errors.New("down")}, false},
		{"no gauges", Condition{Type: CostThreshold, Threshold: 0}, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := captionWorkflow()
			def.Conditions = []Condition{tt.condition}

			var opts []Option
			if tt.avail != nil {
				opts = append(opts, WithAvailability(tt.avail))
			}
			if tt.gauges != nil {
				opts = append(opts, WithGauges(tt.gauges))
			}
			r := &fakeRouter{}
			e := newEngine(t, r, []Definition{def}, opts...)

			exec, err := e.Execute(context.Background(), def.Name, nil, nil)
			if tt.wantMet {
				if err != nil || exec.Status != StatusCompleted {
					t.Fatalf("Execute = %v, %v; want completed", exec, err)
				}
				return
			}

			if !errors.Is(err, ErrConditionNotMet) {
				t.Fatalf("Execute error = %v, want ErrConditionNotMet", err)
			}
			if code := resilience.CodeOf(err); code != resilience.CodeWorkflowConditionNotMet {
				t.Errorf("CodeOf = %q, want %q", code, resilience.CodeWorkflowConditionNotMet)
			}
			if exec != nil {
				t.Errorf("Execute returned %v, want nil execution", exec)
			}
			if n := len(e.List()); n != 0 {
				t.Errorf("List() has %d executions, want 0", n)
			}
			if n := len(r.routed()); n != 0 {
				t.Errorf("routed %d calls, want 0", n)
			}
		})
	}
}

func TestExecute_StepFailureStopsWorkflow(t *testing.T) {
	def := captionWorkflow()
	def.Steps = append(def.Steps, StepDefinition{ID: "publish", Service: "storage"})

	r := &fakeRouter{fn: func(service string, _ int) (any, error) {
		if service == "image" {
			return nil, resilience.NewError(resilience.CategoryValidation, "prompt rejected", nil)
		}
		return "ok", nil
	}}
	bus, log := recordEvents()
	e := newEngine(t, r, []Definition{def}, WithPublisher(bus))

	exec, err := e.Execute(context.Background(), def.Name, nil, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Execute error = %v, want ErrStepFailed", err)
	}
	if code := resilience.CodeOf(err); code != resilience.CodeStepExecutionFailed {
		t.Errorf("CodeOf = %q, want %q", code, resilience.CodeStepExecutionFailed)
	}
	if got := resilience.Classify(err); got != resilience.CategoryValidation {
		t.Errorf("Classify = %q, want VALIDATION", got)
	}

	if exec.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", exec.Status)
	}
	wantSteps := []StepStatus{StepCompleted, StepFailed, StepPending}
	for i, want := range wantSteps {
		if got := exec.Steps[i].Status; got != want {
			t.Errorf("step %d Status = %q, want %q", i, got, want)
		}
	}
	if exec.Steps[1].Error == "" {
		t.Error("failed step has no Error")
	}
	if len(r.routed()) != 2 {
		t.Errorf("routed %d calls, want 2", len(r.routed()))
	}

	want := []events.Type{events.WorkflowStepCompleted, events.WorkflowFailed}
	if got := log.seen(); !sameTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestExecute_StepRetries(t *testing.T) {
	policy := resilience.RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Backoff:      resilience.BackoffExponential,
	}

	var mu sync.Mutex
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
		return nil
	}

	r := &fakeRouter{fn: func(_ string, n int) (any, error) {
		if n < 3 {
			return nil, errors.New("connection reset")
		}
		return "done", nil
	}}
	def := Definition{
		Name:  "flaky",
		Steps: []StepDefinition{{ID: "only", Service: "text", RetryPolicy: &policy}},
	}
	e, err := NewEngine(r, Config{Definitions: []Definition{def}, Sleep: sleep})
	if err != nil {
		t.Fatal(err)
	}

	exec, err := e.Execute(context.Background(), "flaky", nil, nil)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if got := exec.Steps[0].RetryCount; got != 2 {
		t.Errorf("RetryCount = %d, want 2", got)
	}
	if got := len(r.routed()); got != 3 {
		t.Errorf("routed %d calls, want 3", got)
	}
	if exec.Steps[0].Error != "" {
		t.Errorf("Error = %q, want cleared after success", exec.Steps[0].Error)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(slept) != len(want) || slept[0] != want[0] || slept[1] != want[1] {
		t.Errorf("slept = %v, want %v", slept, want)
	}
}

func TestExecute_StepRetriesExhausted(t *testing.T) {
	policy := resilience.RetryPolicy{MaxRetries: 1, Backoff: resilience.BackoffFixed}
	r := &fakeRouter{fn: func(string, int) (any, error) { return nil, errors.New("503 service unavailable") }}
	def := Definition{
		Name:  "doomed",
		Steps: []StepDefinition{{ID: "only", Service: "text", RetryPolicy: &policy}},
	}
	e := newEngine(t, r, []Definition{def})

	exec, err := e.Execute(context.Background(), "doomed", nil, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Execute error = %v, want ErrStepFailed", err)
	}
	if got := len(r.routed()); got != 2 {
		t.Errorf("routed %d calls, want 2", got)
	}
	if exec.Steps[0].RetryCount != 1 || exec.Steps[0].Status != StepFailed {
		t.Errorf("step = %+v, want failed after 1 retry", exec.Steps[0])
	}
}

func TestCancel_DiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := &fakeRouter{fn: func(string, int) (any, error) {
		close(started)
		<-release
		return "late", nil
	}}
	bus, log := recordEvents()
	e := newEngine(t, r, []Definition{captionWorkflow()}, WithPublisher(bus))

	type outcome struct {
		exec *Execution
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		exec, err := e.Execute(context.Background(), "illustrate", nil, nil)
		done <- outcome{exec, err}
	}()

	<-started
	running := e.List()
	if len(running) != 1 || running[0].Status != StatusRunning {
		t.Fatalf("List() = %v, want one running execution", running)
	}

	snap, err := e.Cancel(running[0].ID)
	if err != nil {
		t.Fatalf("Cancel error = %v", err)
	}
	if snap.Status != StatusCancelled || snap.Steps[0].Status != StepCancelled {
		t.Errorf("Cancel snapshot = %q/%q, want cancelled/cancelled", snap.Status, snap.Steps[0].Status)
	}

	close(release)
	out := <-done

	if !errors.Is(out.err, ErrCancelled) {
		t.Errorf("Execute error = %v, want ErrCancelled", out.err)
	}
	if got := resilience.CodeOf(out.err); got != CodeWorkflowCancelled {
		t.Errorf("CodeOf = %q, want %q", got, CodeWorkflowCancelled)
	}
	exec := out.exec
	if exec.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", exec.Status)
	}
	if exec.Steps[0].Status != StepCancelled || exec.Steps[0].Result != nil {
		t.Errorf("step 0 = %+v, want cancelled without result", exec.Steps[0])
	}
	if exec.Steps[1].Status != StepPending {
		t.Errorf("step 1 Status = %q, want pending", exec.Steps[1].Status)
	}
	if _, ok := exec.Context["caption"]; ok {
		t.Error("Context holds the discarded result")
	}
	if got := len(r.routed()); got != 1 {
		t.Errorf("routed %d calls, want 1", got)
	}

	want := []events.Type{events.WorkflowCancelled}
	if got := log.seen(); !sameTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestCancel_NotRunning(t *testing.T) {
	e := newEngine(t, &fakeRouter{}, []Definition{captionWorkflow()})

	exec, err := e.Execute(context.Background(), "illustrate", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Cancel(exec.ID)
	if !errors.Is(err, ErrNotCancelable) {
		t.Errorf("Cancel(completed) error = %v, want ErrNotCancelable", err)
	}
	if code := resilience.CodeOf(err); code != resilience.CodeWorkflowNotCancelable {
		t.Errorf("CodeOf = %q, want %q", code, resilience.CodeWorkflowNotCancelable)
	}

	if _, err := e.Cancel("nope"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("Cancel(unknown) error = %v, want ErrWorkflowNotFound", err)
	}
}

func TestGetEvict(t *testing.T) {
	e := newEngine(t, &fakeRouter{}, []Definition{captionWorkflow()})

	exec, err := e.Execute(context.Background(), "illustrate", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := e.Get(exec.ID)
	if !ok || got.Status != StatusCompleted {
		t.Fatalf("Get = %v, %v; want completed execution", got, ok)
	}
	got.Steps[0].Status = StepFailed
	if again, _ := e.Get(exec.ID); again.Steps[0].Status != StepCompleted {
		t.Error("Get returned a copy sharing steps with the engine")
	}

	if err := e.Evict(exec.ID); err != nil {
		t.Fatalf("Evict error = %v", err)
	}
	if _, ok := e.Get(exec.ID); ok {
		t.Error("Get after Evict found the execution")
	}
	if err := e.Evict(exec.ID); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("second Evict error = %v, want ErrWorkflowNotFound", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	bad := resilience.RetryPolicy{MaxRetries: -1}

	tests := []struct {
		name string
		def  Definition
	}{
		{"no name", Definition{Steps: []StepDefinition{{ID: "a", Service: "text"}}}},
		{"no steps", Definition{Name: "wf"}},
		{"step without id", Definition{Name: "wf", Steps: []StepDefinition{{Service: "text"}}}},
		{"duplicate ids", Definition{Name: "wf", Steps: []StepDefinition{{ID: "a", Service: "text"}, {ID: "a", Service: "image"}}}},
		{"step without service", Definition{Name: "wf", Steps: []StepDefinition{{ID: "a"}}}},
		{"bad policy", Definition{Name: "wf", Steps: []StepDefinition{{ID: "a", Service: "text", RetryPolicy: &bad}}}},
		{"unknown condition", Definition{
			Name:       "wf",
			Conditions: []Condition{{Type: "moon_phase"}},
			Steps:      []StepDefinition{{ID: "a", Service: "text"}},
		}},
		{"condition without service", Definition{
			Name:       "wf",
			Conditions: []Condition{{Type: ServiceAvailable}},
			Steps:      []StepDefinition{{ID: "a", Service: "text"}},
		}},
	}

	e := newEngine(t, &fakeRouter{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.Register(tt.def); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("Register error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
	if n := len(e.Definitions()); n != 0 {
		t.Errorf("Definitions() = %d, want 0", n)
	}
}

func TestNewEngine_NilRouter(t *testing.T) {
	if _, err := NewEngine(nil, Config{}); !errors.Is(err, ErrNilRouter) {
		t.Errorf("NewEngine(nil) error = %v, want ErrNilRouter", err)
	}
}

func TestExecute_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	obs := observe.NewMiddleware(observe.NewTracer(tp.Tracer("test")), nil, nil)

	e := newEngine(t, &fakeRouter{}, []Definition{captionWorkflow()}, WithObserver(obs))
	if _, err := e.Execute(context.Background(), "illustrate", nil, nil); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	want := []string{
		"flowops.workflow.illustrate.caption",
		"flowops.workflow.illustrate.image",
		"flowops.workflow.illustrate",
	}
	if len(names) != len(want) {
		t.Fatalf("spans = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("span %d = %q, want %q", i, names[i], want[i])
		}
	}
}
