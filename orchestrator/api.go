package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/jonwraymond/flowops/events"
	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/metrics"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
	"github.com/jonwraymond/flowops/result"
	"github.com/jonwraymond/flowops/routing"
	"github.com/jonwraymond/flowops/workflow"
)

// envelope runs fn and wraps its outcome. fn may refine the metadata.
// A panic in fn becomes an UNKNOWN failure carrying ErrPanic.
func (o *Orchestrator) envelope(ctx context.Context, requestID string, fn func(md *result.Metadata) (any, error)) (res result.Result) {
	start := o.now()
	md := result.Metadata{RequestID: requestID, Timestamp: start, Region: o.cfg.Region}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, "recovered panic",
				observe.F("request_id", requestID),
				observe.F("panic", fmt.Sprint(r)),
				observe.F("stack", string(debug.Stack())),
			)
			md.ProcessingTime = o.now().Sub(start)
			err := resilience.NewError(resilience.CategoryUnknown, fmt.Sprintf("panic: %v", r), ErrPanic)
			res = result.FailWith(err, md, o.policy)
		}
	}()

	data, err := fn(&md)
	md.ProcessingTime = o.now().Sub(start)
	if err != nil {
		return result.FailWith(err, md, o.policy)
	}
	return result.OK(data, md)
}

// ExecuteWithRetry runs op for call.Service behind its circuit breaker and
// the retry executor. A nil policy uses the configured default.
func (o *Orchestrator) ExecuteWithRetry(ctx context.Context, call resilience.CallContext, op resilience.Operation, policy *resilience.RetryPolicy) result.Result {
	if call.RequestID == "" {
		call.RequestID = uuid.NewString()
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = o.now()
	}
	p := o.policy
	if policy != nil {
		p = *policy
	}

	return o.envelope(ctx, call.RequestID, func(*result.Metadata) (any, error) {
		meta := observe.CallMeta{Service: call.Service, Operation: call.Operation, RequestID: call.RequestID}
		run := o.obs.Wrap(func(ctx context.Context, _ observe.CallMeta, _ any) (any, error) {
			return o.executor.Execute(ctx, call, p, op)
		})

		data, err := run(ctx, meta, nil)
		if resilience.IsCircuitOpen(err) {
			o.collector.RecordError(call.Service, err, 0)
		}
		return data, err
	})
}

// RouteRequest routes req to an instance of serviceType.
func (o *Orchestrator) RouteRequest(ctx context.Context, serviceType string, req routing.Request, opts routing.Options) result.Result {
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	return o.envelope(ctx, opts.RequestID, func(md *result.Metadata) (any, error) {
		resp, err := o.router.RouteRequest(ctx, serviceType, req, opts)
		if resp.Region != "" {
			md.Region = resp.Region
		}
		return resp.Data, err
	})
}

// ExecuteWorkflow runs the named workflow. On success Data is the final
// *workflow.Execution; failures carry the execution ID in the error details.
// The request ID is the execution ID once one exists, otherwise a fresh uuid.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, name string, params, execCtx map[string]any) result.Result {
	return o.envelope(ctx, uuid.NewString(), func(md *result.Metadata) (any, error) {
		exec, err := o.engine.Execute(ctx, name, params, execCtx)
		if exec != nil {
			md.RequestID = exec.ID
		}
		if err != nil {
			return nil, err
		}
		return exec, nil
	})
}

// CancelWorkflow cancels a running execution. Data is the cancelled record.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, executionID string) result.Result {
	return o.envelope(ctx, executionID, func(*result.Metadata) (any, error) {
		exec, err := o.engine.Cancel(executionID)
		if err != nil {
			return nil, err
		}
		return exec, nil
	})
}

// HealthStatus returns the health record of every registered instance.
func (o *Orchestrator) HealthStatus() map[string]health.ServiceHealth {
	return o.health.Snapshot()
}

// ErrorMetrics returns the metrics of the given services, or of every known
// service when none are given.
func (o *Orchestrator) ErrorMetrics(services ...string) map[string]metrics.ErrorMetrics {
	if len(services) == 0 {
		return o.collector.All()
	}
	out := make(map[string]metrics.ErrorMetrics, len(services))
	for _, s := range services {
		out[s] = o.collector.Get(s)
	}
	return out
}

// CircuitBreakerStatus returns every breaker keyed by instance.
func (o *Orchestrator) CircuitBreakerStatus() map[string]resilience.BreakerState {
	return o.breakers.Snapshot()
}

// ResetCircuitBreaker forces the breaker of service back to closed.
func (o *Orchestrator) ResetCircuitBreaker(service string) {
	o.breakers.ForceState(service, resilience.StateClosed)
}

// Executions returns every retained workflow execution, oldest first.
func (o *Orchestrator) Executions() []*workflow.Execution {
	return o.engine.List()
}

// Execution returns one workflow execution.
func (o *Orchestrator) Execution(id string) (*workflow.Execution, bool) {
	return o.engine.Get(id)
}

// EvictExecution drops a finished workflow execution.
func (o *Orchestrator) EvictExecution(id string) error {
	return o.engine.Evict(id)
}

// InFlight returns the operations currently inside the retry executor.
func (o *Orchestrator) InFlight() []resilience.AttemptRecord {
	return o.retrier.Attempts()
}

// Subscribe registers h for the given event types, or all when none are
// given. The returned function unsubscribes.
func (o *Orchestrator) Subscribe(h events.Handler, types ...events.Type) func() {
	return o.bus.Subscribe(h, types...)
}
