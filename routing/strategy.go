package routing

import (
	"fmt"
	"sync"

	"github.com/jonwraymond/flowops/health"
)

// Strategy names.
const (
	RoundRobin = "round_robin"
	Priority   = "priority"
	LoadBased  = "load_based"
	Adaptive   = "adaptive"
)

// Candidate is an instance eligible for selection with its routing signals.
type Candidate struct {
	Instance Instance

	// Load is the number of in-flight calls.
	Load int

	// Weight is the health weight in [0.1, 1.0].
	Weight float64

	// Health is the last probed status.
	Health health.Status
}

// Strategy picks one of the candidates for serviceType.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - candidates is never empty and is in configured order.
type Strategy interface {
	Name() string
	Select(serviceType string, candidates []Candidate) Candidate
}

// NewStrategy returns the built-in strategy with the given name.
// An empty name selects round robin.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case RoundRobin, "":
		return NewRoundRobin(), nil
	case Priority:
		return PriorityStrategy{}, nil
	case LoadBased:
		return LoadBasedStrategy{}, nil
	case Adaptive:
		return AdaptiveStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// RoundRobinStrategy cycles through candidates with one counter per service
// type. The first call picks the first candidate.
type RoundRobinStrategy struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewRoundRobin creates a round robin strategy.
func NewRoundRobin() *RoundRobinStrategy {
	return &RoundRobinStrategy{counters: make(map[string]uint64)}
}

func (s *RoundRobinStrategy) Name() string { return RoundRobin }

func (s *RoundRobinStrategy) Select(serviceType string, candidates []Candidate) Candidate {
	s.mu.Lock()
	n := s.counters[serviceType]
	s.counters[serviceType] = n + 1
	s.mu.Unlock()

	return candidates[n%uint64(len(candidates))]
}

// PriorityStrategy picks the lowest Priority value.
type PriorityStrategy struct{}

func (PriorityStrategy) Name() string { return Priority }

func (PriorityStrategy) Select(_ string, candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Instance.Priority < best.Instance.Priority {
			best = c
		}
	}
	return best
}

// LoadBasedStrategy picks the candidate with the fewest in-flight calls.
type LoadBasedStrategy struct{}

func (LoadBasedStrategy) Name() string { return LoadBased }

func (LoadBasedStrategy) Select(_ string, candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Load < best.Load {
			best = c
		}
	}
	return best
}

// AdaptiveStrategy picks the highest weight among candidates that are not
// unhealthy, preferring lower load on equal weight. With every candidate
// unhealthy it returns the first one.
type AdaptiveStrategy struct{}

func (AdaptiveStrategy) Name() string { return Adaptive }

func (AdaptiveStrategy) Select(_ string, candidates []Candidate) Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Health == health.StatusUnhealthy {
			continue
		}
		if best == nil || c.Weight > best.Weight || (c.Weight == best.Weight && c.Load < best.Load) {
			best = c
		}
	}
	if best == nil {
		return candidates[0]
	}
	return *best
}
