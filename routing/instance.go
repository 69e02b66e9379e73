package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/flowops/resilience"
)

// Instance is one configured endpoint of a service type.
type Instance struct {
	// ID uniquely identifies the instance. Breakers, health records and
	// metrics are keyed by it.
	ID string `yaml:"id" json:"id"`

	// Type is the service type requests are routed by, e.g. "image".
	Type string `yaml:"type" json:"type"`

	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`
	Region   string `yaml:"region" json:"region,omitempty"`

	// Priority orders instances for the priority strategy; lower wins.
	Priority int `yaml:"priority" json:"priority"`

	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxConcurrent caps in-flight calls. Zero means no bulkhead.
	MaxConcurrent int `yaml:"maxConcurrent" json:"maxConcurrent,omitempty"`

	// RateLimit is calls per second. Zero means unlimited.
	RateLimit float64 `yaml:"rateLimit" json:"rateLimit,omitempty"`

	// Timeout bounds each attempt. Zero uses the router default.
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`

	// CacheTTL enables response caching for cacheable requests.
	CacheTTL time.Duration `yaml:"cacheTTL" json:"cacheTTL,omitempty"`
}

// Validate checks the instance fields.
func (i Instance) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInstance)
	}
	if i.Type == "" {
		return fmt.Errorf("%w: %s: type is required", ErrInvalidInstance, i.ID)
	}
	if i.MaxConcurrent < 0 || i.RateLimit < 0 || i.Timeout < 0 || i.CacheTTL < 0 {
		return fmt.Errorf("%w: %s: limits must not be negative", ErrInvalidInstance, i.ID)
	}
	return nil
}

// Request is one downstream call.
type Request struct {
	Operation string
	Payload   any
}

// Options tunes a single RouteRequest call.
type Options struct {
	// RequestID correlates the call; generated when empty.
	RequestID string

	// RetryPolicy overrides the router default.
	RetryPolicy *resilience.RetryPolicy

	// Cacheable allows the response to be served from and stored in the cache.
	Cacheable bool

	// CacheTTL overrides the instance CacheTTL for this call.
	CacheTTL time.Duration
}

// Response is the outcome of a routed call.
type Response struct {
	RequestID string
	Instance  string
	Region    string
	Data      any
	Cached    bool
	Duration  time.Duration
}

// Invoker performs the downstream call against an instance.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: implementations should honor cancellation and deadlines.
type Invoker interface {
	Invoke(ctx context.Context, inst Instance, req Request) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, inst Instance, req Request) (any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, inst Instance, req Request) (any, error) {
	return f(ctx, inst, req)
}
