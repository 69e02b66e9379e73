package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/flowops/resilience"
)

// CallMeta identifies one routed call or workflow step for telemetry.
type CallMeta struct {
	Service   string // Service type the call was routed for (required)
	Instance  string // Selected instance ID (empty before selection)
	Operation string // Downstream operation
	RequestID string // Request or execution ID
	Workflow  string // Workflow name when the call is a workflow step
	Step      string // Step ID when the call is a workflow step
}

// SpanName returns the deterministic span name for this call.
// Format: flowops.call.<service>[.<operation>] for routed calls and
// flowops.workflow.<workflow>[.<step>] for workflow steps.
func (m CallMeta) SpanName() string {
	if m.Workflow != "" {
		if m.Step != "" {
			return "flowops.workflow." + m.Workflow + "." + m.Step
		}
		return "flowops.workflow." + m.Workflow
	}
	if m.Operation != "" {
		return "flowops.call." + m.Service + "." + m.Operation
	}
	return "flowops.call." + m.Service
}

// Attributes returns the non-empty fields as otel attributes.
func (m CallMeta) Attributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	add("flowops.service", m.Service)
	add("flowops.instance", m.Instance)
	add("flowops.operation", m.Operation)
	add("flowops.request_id", m.RequestID)
	add("flowops.workflow", m.Workflow)
	add("flowops.step", m.Step)
	return attrs
}

// Tracer wraps OpenTelemetry tracing with call-scoped span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NoopTracer()
	}
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with the call metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := append(meta.Attributes(), attribute.Bool("flowops.error", false))

	kind := trace.SpanKindClient
	if meta.Workflow != "" {
		kind = trace.SpanKindInternal
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(kind),
	)
}

// EndSpan ends the span and records the error status and category if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("flowops.error", true),
			attribute.String("flowops.error.category", string(resilience.Classify(err))),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
