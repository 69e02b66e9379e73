package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/flowops/events"
	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
)

func breakerEvent(to resilience.State) events.Type {
	switch to {
	case resilience.StateOpen:
		return events.CircuitBreakerOpened
	case resilience.StateHalfOpen:
		return events.CircuitBreakerHalfOpen
	default:
		return events.CircuitBreakerClosed
	}
}

func (o *Orchestrator) onBreakerChange(service string, from, to resilience.State) {
	o.obs.Metrics().RecordBreakerTransition(context.Background(), service, from.String(), to.String())

	data := map[string]any{"from": from.String(), "to": to.String()}
	if to == resilience.StateOpen {
		st := o.breakers.State(service)
		data["failureCount"] = st.FailureCount
		if st.NextAttemptTime != nil {
			data["nextAttemptTime"] = *st.NextAttemptTime
		}
	}
	o.bus.Publish(events.Event{
		Type:      breakerEvent(to),
		Timestamp: o.now(),
		Subject:   service,
		Data:      data,
	})
}

func (o *Orchestrator) onHealthChange(service string, from, to health.Status, current health.ServiceHealth) {
	if o.router != nil {
		o.router.OnHealthChanged(service, from, to)
	}
	o.bus.Publish(events.Event{
		Type:      events.ServiceHealthChanged,
		Timestamp: o.now(),
		Subject:   service,
		Data: map[string]any{
			"from":                from.String(),
			"to":                  to.String(),
			"responseTime":        current.ResponseTime,
			"errorRate":           current.ErrorRate,
			"consecutiveFailures": current.ConsecutiveFailures,
		},
	})
}

func (o *Orchestrator) onRetry(call resilience.CallContext, attempt int, err error, delay time.Duration) {
	ctx := context.Background()
	meta := observe.CallMeta{Service: call.Service, Operation: call.Operation, RequestID: call.RequestID}
	o.obs.Metrics().RecordRetry(ctx, meta, attempt)
	o.logger.With(meta).Debug(ctx, "retrying",
		observe.F("attempt", attempt),
		observe.F("delay_ms", delay.Milliseconds()),
		observe.F("error", err),
	)
}

func (o *Orchestrator) onSubscriberPanic(e events.Event, recovered any) {
	o.logger.Error(context.Background(), "event subscriber panicked",
		observe.F("event", string(e.Type)),
		observe.F("subject", e.Subject),
		observe.F("panic", fmt.Sprint(recovered)),
	)
}

// logEvent is the built-in subscriber that logs every bus event.
func (o *Orchestrator) logEvent(e events.Event) {
	fields := make([]observe.Field, 0, len(e.Data)+2)
	fields = append(fields, observe.F("event", string(e.Type)), observe.F("subject", e.Subject))

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fields = append(fields, observe.F(k, e.Data[k]))
	}

	ctx := context.Background()
	switch e.Type {
	case events.WorkflowFailed:
		o.logger.Error(ctx, "workflow failed", fields...)
	case events.OperationError, events.CircuitBreakerOpened:
		o.logger.Warn(ctx, string(e.Type), fields...)
	case events.ServiceHealthChanged:
		if e.Data["to"] == health.StatusUnhealthy.String() {
			o.logger.Warn(ctx, string(e.Type), fields...)
			return
		}
		o.logger.Info(ctx, string(e.Type), fields...)
	default:
		o.logger.Info(ctx, string(e.Type), fields...)
	}
}
