package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/jonwraymond/flowops/resilience"
)

// ErrorMetrics is a snapshot of the counters kept for one service.
type ErrorMetrics struct {
	// TotalErrors counts errors since the last recorded success.
	TotalErrors int `json:"totalErrors"`

	// ErrorsByType counts errors by classified category. It is never reset.
	ErrorsByType map[resilience.Category]int `json:"errorsByType"`

	// AverageResponseTime is in milliseconds. Each sample is folded in as
	// (avg + sample) / 2 starting from zero, so it weights recent calls heavily.
	AverageResponseTime float64 `json:"averageResponseTime"`

	// LastErrorTime is when the most recent error was recorded.
	LastErrorTime *time.Time `json:"lastErrorTime,omitempty"`
}

type record struct {
	mu            sync.Mutex
	totalErrors   int
	byType        map[resilience.Category]int
	avgResponseMs float64
	lastError     time.Time
}

func (r *record) snapshot() ErrorMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := ErrorMetrics{
		TotalErrors:         r.totalErrors,
		ErrorsByType:        make(map[resilience.Category]int, len(r.byType)),
		AverageResponseTime: r.avgResponseMs,
	}
	for c, n := range r.byType {
		m.ErrorsByType[c] = n
	}
	if !r.lastError.IsZero() {
		t := r.lastError
		m.LastErrorTime = &t
	}
	return m
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the time source used for LastErrorTime.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// Collector aggregates outcomes per service. It is safe for concurrent use.
type Collector struct {
	now func() time.Time

	mu      sync.RWMutex
	records map[string]*record
}

var _ resilience.Recorder = (*Collector)(nil)

// NewCollector creates an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		now:     time.Now,
		records: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) get(service string) *record {
	c.mu.RLock()
	r, ok := c.records[service]
	c.mu.RUnlock()
	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.records[service]; ok {
		return r
	}
	r = &record{byType: make(map[resilience.Category]int)}
	c.records[service] = r
	return r
}

// RecordSuccess resets the error count for service and folds in responseTime.
func (c *Collector) RecordSuccess(service string, responseTime time.Duration) {
	r := c.get(service)
	r.mu.Lock()
	r.totalErrors = 0
	r.avgResponseMs = smooth(r.avgResponseMs, responseTime)
	r.mu.Unlock()
}

// RecordError counts err against service under its classified category.
func (c *Collector) RecordError(service string, err error, responseTime time.Duration) {
	category := resilience.Classify(err)
	now := c.now()

	r := c.get(service)
	r.mu.Lock()
	r.totalErrors++
	r.byType[category]++
	r.avgResponseMs = smooth(r.avgResponseMs, responseTime)
	r.lastError = now
	r.mu.Unlock()
}

// Get returns a snapshot for service. A service with no record yet gets one.
func (c *Collector) Get(service string) ErrorMetrics {
	return c.get(service).snapshot()
}

// All returns a snapshot of every service seen so far.
func (c *Collector) All() map[string]ErrorMetrics {
	c.mu.RLock()
	records := make(map[string]*record, len(c.records))
	for name, r := range c.records {
		records[name] = r
	}
	c.mu.RUnlock()

	out := make(map[string]ErrorMetrics, len(records))
	for name, r := range records {
		out[name] = r.snapshot()
	}
	return out
}

// Services returns the sorted names of every service seen so far.
func (c *Collector) Services() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.records))
	for name := range c.records {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Reset drops every record.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.records = make(map[string]*record)
	c.mu.Unlock()
}

func smooth(avg float64, sample time.Duration) float64 {
	ms := float64(sample) / float64(time.Millisecond)
	return (avg + ms) / 2
}
