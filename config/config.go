package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/flowops/cache"
	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
	"github.com/jonwraymond/flowops/routing"
	"github.com/jonwraymond/flowops/workflow"
)

// ErrInvalidConfig is returned for a configuration that cannot be used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete orchestrator configuration.
type Config struct {
	// Region is reported in result metadata.
	Region string `yaml:"region"`

	Routing        RoutingConfig        `yaml:"routing"`
	Retry          RetryPolicyConfig    `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Health         HealthConfig         `yaml:"health"`
	Cache          CacheConfig          `yaml:"cache"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	Admin          AdminConfig          `yaml:"admin"`

	Services  []routing.Instance `yaml:"services"`
	Workflows []WorkflowConfig   `yaml:"workflows"`
}

// RoutingConfig selects the load-balancing strategy.
type RoutingConfig struct {
	// Strategy is round_robin, priority, load_based or adaptive.
	// Default: round_robin
	Strategy string `yaml:"strategy"`

	// DefaultTimeout bounds each attempt when an instance sets none.
	// Default: 30 seconds
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
}

// RetryPolicyConfig overrides fields of resilience.DefaultRetryPolicy.
// Unset fields keep their defaults.
type RetryPolicyConfig struct {
	MaxRetries      *int          `yaml:"maxRetries"`
	InitialDelay    time.Duration `yaml:"initialDelay"`
	MaxDelay        time.Duration `yaml:"maxDelay"`
	Backoff         string        `yaml:"backoff"`
	RetryableErrors []string      `yaml:"retryableErrors"`
	Jitter          *bool         `yaml:"jitter"`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig.
type CircuitBreakerConfig struct {
	FailureThreshold    int           `yaml:"failureThreshold"`
	ResetTimeout        time.Duration `yaml:"resetTimeout"`
	MonitorInterval     time.Duration `yaml:"monitorInterval"`
	HalfOpenMaxRequests int           `yaml:"halfOpenMaxRequests"`
}

// HealthConfig mirrors health.RegistryConfig.
type HealthConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxParallel int           `yaml:"maxParallel"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxItems   int64         `yaml:"maxItems"`
	DefaultTTL time.Duration `yaml:"defaultTTL"`
	MaxTTL     time.Duration `yaml:"maxTTL"`
}

// ObservabilityConfig mirrors observe.Config.
type ObservabilityConfig struct {
	ServiceName string `yaml:"serviceName"`
	Version     string `yaml:"version"`
	Tracing     struct {
		Enabled   bool    `yaml:"enabled"`
		Exporter  string  `yaml:"exporter"`
		SamplePct float64 `yaml:"samplePct"`
	} `yaml:"tracing"`
	Metrics struct {
		Enabled  bool   `yaml:"enabled"`
		Exporter string `yaml:"exporter"`
	} `yaml:"metrics"`
	Logging struct {
		Enabled bool   `yaml:"enabled"`
		Level   string `yaml:"level"`
	} `yaml:"logging"`
}

// AdminConfig configures the HTTP status surface.
type AdminConfig struct {
	// Addr is the listen address. Empty disables the admin server.
	Addr string `yaml:"addr"`

	// JWT protects the status endpoints. Empty Secret disables the guard.
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig configures HMAC bearer-token verification.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// WorkflowConfig is the YAML form of workflow.Definition.
type WorkflowConfig struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Conditions  []workflow.Condition `yaml:"conditions"`
	Steps       []StepConfig         `yaml:"steps"`
}

// StepConfig is the YAML form of workflow.StepDefinition.
type StepConfig struct {
	ID          string             `yaml:"id"`
	Service     string             `yaml:"service"`
	Operation   string             `yaml:"operation"`
	Parameters  map[string]any     `yaml:"parameters"`
	RetryPolicy *RetryPolicyConfig `yaml:"retryPolicy"`
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands, decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Routing.Strategy == "" {
		c.Routing.Strategy = routing.RoundRobin
	}
	if c.Routing.DefaultTimeout <= 0 {
		c.Routing.DefaultTimeout = 30 * time.Second
	}
	if c.Cache.MaxItems <= 0 {
		c.Cache.MaxItems = 10000
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = cache.DefaultPolicy().DefaultTTL
	}
	if c.Cache.MaxTTL <= 0 {
		c.Cache.MaxTTL = cache.DefaultPolicy().MaxTTL
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "flowops"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if _, err := routing.NewStrategy(c.Routing.Strategy); err != nil {
		return fmt.Errorf("%w: routing: %w", ErrInvalidConfig, err)
	}
	if _, err := c.RetryPolicy(); err != nil {
		return fmt.Errorf("%w: retry: %w", ErrInvalidConfig, err)
	}

	ids := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("%w: duplicate service id %q", ErrInvalidConfig, s.ID)
		}
		ids[s.ID] = struct{}{}
	}

	if _, err := c.WorkflowDefinitions(); err != nil {
		return err
	}

	obs := c.ObserveConfig()
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: observability: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RetryPolicy returns the default policy with the configured overrides.
func (c Config) RetryPolicy() (resilience.RetryPolicy, error) {
	return c.Retry.Policy()
}

// Policy applies the overrides to resilience.DefaultRetryPolicy.
func (r RetryPolicyConfig) Policy() (resilience.RetryPolicy, error) {
	p := resilience.DefaultRetryPolicy()
	if r.MaxRetries != nil {
		p.MaxRetries = *r.MaxRetries
	}
	if r.InitialDelay > 0 {
		p.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = r.MaxDelay
	}
	if r.Backoff != "" {
		b, err := resilience.ParseBackoffStrategy(r.Backoff)
		if err != nil {
			return p, err
		}
		p.Backoff = b
	}
	if r.RetryableErrors != nil {
		p.RetryableErrors = make([]resilience.Category, 0, len(r.RetryableErrors))
		for _, s := range r.RetryableErrors {
			cat, ok := resilience.ParseCategory(s)
			if !ok {
				return p, fmt.Errorf("%w: unknown error category %q", resilience.ErrInvalidPolicy, s)
			}
			p.RetryableErrors = append(p.RetryableErrors, cat)
		}
	}
	if r.Jitter != nil {
		p.Jitter = *r.Jitter
	}
	return p, p.Validate()
}

// RouterConfig returns the router configuration.
func (c Config) RouterConfig() (routing.Config, error) {
	p, err := c.RetryPolicy()
	if err != nil {
		return routing.Config{}, err
	}
	return routing.Config{
		Instances:      c.Services,
		Strategy:       c.Routing.Strategy,
		DefaultTimeout: c.Routing.DefaultTimeout,
		RetryPolicy:    &p,
		Region:         c.Region,
	}, nil
}

// BreakerConfig returns the circuit breaker configuration. Zero fields are
// defaulted by resilience.NewRegistry.
func (c Config) BreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold:    c.CircuitBreaker.FailureThreshold,
		ResetTimeout:        c.CircuitBreaker.ResetTimeout,
		MonitorInterval:     c.CircuitBreaker.MonitorInterval,
		HalfOpenMaxRequests: c.CircuitBreaker.HalfOpenMaxRequests,
	}
}

// HealthConfig returns the health registry configuration. Zero fields are
// defaulted by health.NewRegistry.
func (c Config) HealthConfig() health.RegistryConfig {
	return health.RegistryConfig{
		Interval:    c.Health.Interval,
		Timeout:     c.Health.Timeout,
		MaxParallel: c.Health.MaxParallel,
	}
}

// CachePolicy returns the response cache policy.
func (c Config) CachePolicy() cache.Policy {
	p := cache.DefaultPolicy()
	p.DefaultTTL = c.Cache.DefaultTTL
	p.MaxTTL = c.Cache.MaxTTL
	return p
}

// StoreConfig returns the response cache sizing.
func (c Config) StoreConfig() cache.StoreConfig {
	return cache.StoreConfig{MaxItems: c.Cache.MaxItems}
}

// ObserveConfig returns the telemetry configuration.
func (c Config) ObserveConfig() observe.Config {
	o := c.Observability
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     o.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.Logging.Enabled,
			Level:   o.Logging.Level,
		},
	}
}

// WorkflowDefinitions converts and validates the configured workflows.
func (c Config) WorkflowDefinitions() ([]workflow.Definition, error) {
	defs := make([]workflow.Definition, 0, len(c.Workflows))
	names := make(map[string]struct{}, len(c.Workflows))

	for _, wc := range c.Workflows {
		def := workflow.Definition{
			Name:        wc.Name,
			Description: wc.Description,
			Conditions:  wc.Conditions,
			Steps:       make([]workflow.StepDefinition, 0, len(wc.Steps)),
		}
		for _, sc := range wc.Steps {
			step := workflow.StepDefinition{
				ID:         sc.ID,
				Service:    sc.Service,
				Operation:  sc.Operation,
				Parameters: sc.Parameters,
			}
			if sc.RetryPolicy != nil {
				p, err := sc.RetryPolicy.Policy()
				if err != nil {
					return nil, fmt.Errorf("%w: workflow %s: step %s: %w", ErrInvalidConfig, wc.Name, sc.ID, err)
				}
				step.RetryPolicy = &p
			}
			def.Steps = append(def.Steps, step)
		}

		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if _, dup := names[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate workflow %q", ErrInvalidConfig, def.Name)
		}
		names[def.Name] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}
