package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/flowops/resilience"
)

// Instrument names.
const (
	MetricCallTotal          = "flowops.call.total"
	MetricCallErrors         = "flowops.call.errors"
	MetricCallDuration       = "flowops.call.duration_ms"
	MetricRetryTotal         = "flowops.retry.total"
	MetricBreakerTransitions = "flowops.breaker.transitions"
	MetricWorkflowTotal      = "flowops.workflow.total"
	MetricWorkflowDuration   = "flowops.workflow.duration_ms"
)

// Metrics records orchestration metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one routed call with its duration and outcome.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordRetry records that attempt (1-based) is about to be made.
	RecordRetry(ctx context.Context, meta CallMeta, attempt int)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, service, from, to string)

	// RecordWorkflow records a finished workflow execution.
	RecordWorkflow(ctx context.Context, workflow, status string, duration time.Duration)
}

type metricsImpl struct {
	callTotal        metric.Int64Counter
	callErrors       metric.Int64Counter
	callDuration     metric.Float64Histogram
	retryTotal       metric.Int64Counter
	breakerChanges   metric.Int64Counter
	workflowTotal    metric.Int64Counter
	workflowDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.callTotal, err = meter.Int64Counter(MetricCallTotal,
		metric.WithDescription("Total number of routed calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.callErrors, err = meter.Int64Counter(MetricCallErrors,
		metric.WithDescription("Total number of failed routed calls"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.callDuration, err = meter.Float64Histogram(MetricCallDuration,
		metric.WithDescription("Routed call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.retryTotal, err = meter.Int64Counter(MetricRetryTotal,
		metric.WithDescription("Total number of retry attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if m.breakerChanges, err = meter.Int64Counter(MetricBreakerTransitions,
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}
	if m.workflowTotal, err = meter.Int64Counter(MetricWorkflowTotal,
		metric.WithDescription("Finished workflow executions by status"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, err
	}
	if m.workflowDuration, err = meter.Float64Histogram(MetricWorkflowDuration,
		metric.WithDescription("Workflow execution duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("flowops.service", meta.Service)}
	if meta.Instance != "" {
		attrs = append(attrs, attribute.String("flowops.instance", meta.Instance))
	}
	opt := metric.WithAttributes(attrs...)

	m.callTotal.Add(ctx, 1, opt)
	if err != nil {
		m.callErrors.Add(ctx, 1, metric.WithAttributes(append(attrs,
			attribute.String("flowops.error.category", string(resilience.Classify(err))))...))
	}
	m.callDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta CallMeta, attempt int) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flowops.service", meta.Service),
		attribute.Int("flowops.attempt", attempt),
	))
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, service, from, to string) {
	m.breakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flowops.service", service),
		attribute.String("flowops.breaker.from", from),
		attribute.String("flowops.breaker.to", to),
	))
}

func (m *metricsImpl) RecordWorkflow(ctx context.Context, workflow, status string, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("flowops.workflow", workflow),
		attribute.String("flowops.workflow.status", status),
	)
	m.workflowTotal.Add(ctx, 1, opt)
	m.workflowDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

type noopMetrics struct{}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordCall(context.Context, CallMeta, time.Duration, error) {}

func (noopMetrics) RecordRetry(context.Context, CallMeta, int) {}

func (noopMetrics) RecordBreakerTransition(context.Context, string, string, string) {}

func (noopMetrics) RecordWorkflow(context.Context, string, string, time.Duration) {}
