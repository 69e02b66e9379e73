// Package observe provides logging, tracing and metrics for routed calls and
// workflow executions.
//
// Logger is backed by zerolog and writes one JSON object per entry. Tracer and
// Metrics wrap OpenTelemetry; NewObserver wires their providers to the
// exporters selected in Config. Middleware bundles the three and wraps a
// single downstream call.
package observe
