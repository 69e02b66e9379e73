package workflow

import (
	"context"
	"fmt"

	"github.com/jonwraymond/flowops/resilience"
)

// ConditionType names a workflow precondition.
type ConditionType string

const (
	// ServiceAvailable requires a routable instance of Service.
	ServiceAvailable ConditionType = "service_available"

	// QuotaAvailable requires remaining quota for Service above Threshold.
	QuotaAvailable ConditionType = "quota_available"

	// CostThreshold requires the estimated cost to stay at or below Threshold.
	CostThreshold ConditionType = "cost_threshold"

	// QualityThreshold requires the quality score of Service to reach Threshold.
	QualityThreshold ConditionType = "quality_threshold"
)

// Condition is a precondition checked before an execution is created.
type Condition struct {
	Type      ConditionType `yaml:"type" json:"type"`
	Service   string        `yaml:"service" json:"service,omitempty"`
	Threshold float64       `yaml:"threshold" json:"threshold,omitempty"`
}

func (c Condition) String() string {
	if c.Service == "" {
		return string(c.Type)
	}
	return fmt.Sprintf("%s(%s)", c.Type, c.Service)
}

// StepDefinition is one routed call of a workflow.
type StepDefinition struct {
	// ID names the step; its result is addressable as ${steps.<ID>}.
	ID string `json:"id"`

	// Service is the service type the step is routed to.
	Service string `json:"service"`

	Operation  string         `json:"operation,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// RetryPolicy enables step-level retries. Nil means a single try.
	RetryPolicy *resilience.RetryPolicy `json:"-"`
}

// Definition describes a named workflow.
type Definition struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Conditions  []Condition      `json:"conditions,omitempty"`
	Steps       []StepDefinition `json:"steps"`
}

// Validate checks the definition shape.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s: at least one step is required", ErrInvalidDefinition, d.Name)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("%w: %s: step %d has no id", ErrInvalidDefinition, d.Name, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate step id %q", ErrInvalidDefinition, d.Name, s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.Service == "" {
			return fmt.Errorf("%w: %s: step %q has no service", ErrInvalidDefinition, d.Name, s.ID)
		}
		if s.RetryPolicy != nil {
			if err := s.RetryPolicy.Validate(); err != nil {
				return fmt.Errorf("%w: %s: step %q: %w", ErrInvalidDefinition, d.Name, s.ID, err)
			}
		}
	}

	for _, c := range d.Conditions {
		switch c.Type {
		case ServiceAvailable, QuotaAvailable, QualityThreshold:
			if c.Service == "" {
				return fmt.Errorf("%w: %s: condition %s needs a service", ErrInvalidDefinition, d.Name, c.Type)
			}
		case CostThreshold:
		default:
			return fmt.Errorf("%w: %s: unknown condition %q", ErrInvalidDefinition, d.Name, c.Type)
		}
	}
	return nil
}

// Availability reports whether a service type can currently be routed to.
type Availability interface {
	Available(serviceType string) bool
}

// Gauges supplies the business signals behind quota, cost and quality
// conditions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: implementations should honor cancellation.
type Gauges interface {
	QuotaRemaining(ctx context.Context, service string) (float64, error)
	EstimatedCost(ctx context.Context, workflow string, params map[string]any) (float64, error)
	QualityScore(ctx context.Context, service string) (float64, error)
}
