package orchestrator

import (
	"context"
	"time"

	"github.com/jonwraymond/flowops/cache"
	"github.com/jonwraymond/flowops/config"
	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/workflow"
)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	probes   map[string]health.Checker
	logger   observe.Logger
	observer *observe.Middleware
	gauges   workflow.Gauges
	cache    cache.Cache
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	secrets  *config.SecretResolver
}

// WithProbe sets the health probe for a configured service instance.
// Instances without a probe stay healthy.
func WithProbe(instanceID string, c health.Checker) Option {
	return func(o *options) { o.probes[instanceID] = c }
}

// WithLogger overrides the logger built from the observability config.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver overrides the telemetry built from the observability config.
func WithObserver(m *observe.Middleware) Option {
	return func(o *options) { o.observer = m }
}

// WithGauges feeds quota, cost and quality workflow conditions.
func WithGauges(g workflow.Gauges) Option {
	return func(o *options) { o.gauges = g }
}

// WithCache replaces the in-memory response cache. It only takes effect
// when caching is enabled in the config.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithClock sets the clock shared by every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithSecrets resolves secretref values in the config with r before
// validation.
func WithSecrets(r *config.SecretResolver) Option {
	return func(o *options) { o.secrets = r }
}
