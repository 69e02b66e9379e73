package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	var got []string

	b.Subscribe(func(e Event) { got = append(got, "first:"+string(e.Type)) })
	b.Subscribe(func(e Event) { got = append(got, "second:"+string(e.Type)) })

	b.Publish(Event{Type: WorkflowCompleted})

	want := []string{"first:workflow:completed", "second:workflow:completed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBus_TypeFilter(t *testing.T) {
	b := NewBus()
	count := 0
	b.Subscribe(func(Event) { count++ }, CircuitBreakerOpened, CircuitBreakerClosed)

	b.Publish(Event{Type: CircuitBreakerOpened})
	b.Publish(Event{Type: CircuitBreakerHalfOpen})
	b.Publish(Event{Type: CircuitBreakerClosed})

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	count := 0
	unsubscribe := b.Subscribe(func(Event) { count++ })

	b.Publish(Event{Type: OperationError})
	unsubscribe()
	unsubscribe()
	b.Publish(Event{Type: OperationError})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestBus_SubscribersAtEmissionTime(t *testing.T) {
	b := NewBus()
	late := 0

	b.Subscribe(func(Event) {
		b.Subscribe(func(Event) { late++ })
	})

	b.Publish(Event{Type: OperationError})
	if late != 0 {
		t.Errorf("subscriber added during delivery received the event")
	}

	b.Publish(Event{Type: OperationError})
	if late != 1 {
		t.Errorf("late = %d, want 1", late)
	}
}

func TestBus_RecoversPanics(t *testing.T) {
	var recovered any
	b := NewBus(WithPanicHandler(func(_ Event, r any) { recovered = r }))
	delivered := false

	b.Subscribe(func(Event) { panic("boom") })
	b.Subscribe(func(Event) { delivered = true })

	b.Publish(Event{Type: WorkflowFailed})

	if recovered != "boom" {
		t.Errorf("recovered = %v, want boom", recovered)
	}
	if !delivered {
		t.Error("second subscriber was skipped after a panic")
	}
}

func TestBus_SetsTimestamp(t *testing.T) {
	b := NewBus()
	var got Event
	b.Subscribe(func(e Event) { got = e })

	b.Publish(Event{Type: ServiceHealthChanged, Subject: "imagen"})
	if got.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Publish(Event{Type: ServiceHealthChanged, Timestamp: fixed})
	if !got.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, fixed)
	}
}

func TestBus_Concurrent(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	count := 0
	b.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Publish(Event{Type: OperationError})
		}()
		go func() {
			defer wg.Done()
			b.Subscribe(func(Event) {})()
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestEvent_String(t *testing.T) {
	if s := (Event{Type: WorkflowCompleted, Subject: "exec-1"}).String(); s != "workflow:completed[exec-1]" {
		t.Errorf("String() = %q", s)
	}
	if s := (Event{Type: OperationError}).String(); s != "operation:error" {
		t.Errorf("String() = %q", s)
	}
}
