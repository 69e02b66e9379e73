package events

import (
	"fmt"
	"sync"
	"time"
)

// Type identifies an orchestration event.
type Type string

const (
	OperationError Type = "operation:error"

	CircuitBreakerOpened   Type = "circuit_breaker:opened"
	CircuitBreakerClosed   Type = "circuit_breaker:closed"
	CircuitBreakerHalfOpen Type = "circuit_breaker:half_open"

	ServiceHealthChanged Type = "service:health_changed"

	WorkflowCompleted     Type = "workflow:completed"
	WorkflowFailed        Type = "workflow:failed"
	WorkflowCancelled     Type = "workflow:cancelled"
	WorkflowStepCompleted Type = "workflow:step_completed"
)

// Types lists every event type the orchestrator emits.
var Types = []Type{
	OperationError,
	CircuitBreakerOpened,
	CircuitBreakerClosed,
	CircuitBreakerHalfOpen,
	ServiceHealthChanged,
	WorkflowCompleted,
	WorkflowFailed,
	WorkflowCancelled,
	WorkflowStepCompleted,
}

// Event is one notification.
type Event struct {
	Type      Type
	Timestamp time.Time

	// Subject is the service or execution the event is about.
	Subject string

	// Data carries event specific fields. Keep it small.
	Data map[string]any
}

// Handler receives events.
type Handler func(Event)

// Publisher emits events.
type Publisher interface {
	Publish(e Event)
}

type subscription struct {
	id      uint64
	types   map[Type]struct{}
	handler Handler
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers. The zero value is not usable; use NewBus.
type Bus struct {
	now     func() time.Time
	onPanic func(e Event, recovered any)

	mu     sync.RWMutex
	nextID uint64
	subs   []*subscription
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPanicHandler is called when a subscriber panics.
func WithPanicHandler(fn func(e Event, recovered any)) BusOption {
	return func(b *Bus) {
		b.onPanic = fn
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for the given types, or for every type when none are
// given. The returned function removes the subscription.
func (b *Bus) Subscribe(h Handler, types ...Type) (unsubscribe func()) {
	sub := &subscription{handler: h}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			subs := make([]*subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to the current subscribers. A zero Timestamp is set to now.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(e.Type) {
			b.deliver(s, e)
		}
	}
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.onPanic != nil {
				b.onPanic(e, r)
			}
		}
	}()
	s.handler(e)
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e.Subject == "" {
		return string(e.Type)
	}
	return fmt.Sprintf("%s[%s]", e.Type, e.Subject)
}
