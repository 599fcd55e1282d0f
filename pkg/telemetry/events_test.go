package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEventPublisherSyncDelivery(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var mu sync.Mutex
	var received []Event
	ep.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, nil)

	if err := ep.PublishExecutionStarted("exec-1", "i-abc123", "resize_instance"); err != nil {
		t.Fatalf("PublishExecutionStarted() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	got := received[0]
	if got.Type != EventTypeExecutionStarted {
		t.Errorf("Type = %q, want %q", got.Type, EventTypeExecutionStarted)
	}
	if got.ExecutionID != "exec-1" {
		t.Errorf("ExecutionID = %q, want exec-1", got.ExecutionID)
	}
	if got.ID == "" {
		t.Error("expected event ID to be assigned")
	}
	if got.Timestamp.IsZero() {
		t.Error("expected event timestamp to be assigned")
	}
}

func TestEventPublisherFiltering(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	ep.AddFilter(FilterByLevel(EventLevelError))

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	ep.PublishExecutionStarted("exec-1", "i-abc123", "resize_instance")
	ep.PublishExecutionFailed("exec-1", "i-abc123", "instance not found")
	ep.PublishRollbackFailed("exec-1", "plan-1", "snapshot missing")

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("received %d events after level filter, want 2", count)
	}
}

func TestEventPublisherSubscriberFilter(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var mu sync.Mutex
	var types []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	}, FilterByType(EventTypeBreakerOpened))

	ep.PublishExecutionStarted("exec-1", "i-abc123", "stop_instance")
	ep.PublishBreakerOpened("compute", 5)

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 1 || types[0] != EventTypeBreakerOpened {
		t.Errorf("subscriber received %v, want only breaker.opened", types)
	}
}

func TestEventPublisherAsyncShutdownDrains(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 100, EnableAsync: true})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	for i := 0; i < 20; i++ {
		if err := ep.PublishWorkflowTransition("wf-1", EventTypeWorkflowApproved, "approved by manager"); err != nil {
			t.Fatalf("Publish error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// Subscribers run in their own goroutines, so allow a short grace
	// period after the drain completes.
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		got := count
		mu.Unlock()
		if got == 20 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d events after shutdown, want 20", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventPublisherDisabledIsNoop(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}
	if err := ep.PublishExecutionStarted("exec-1", "i-abc123", "resize_instance"); err != nil {
		t.Errorf("disabled publisher Publish() error = %v", err)
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("disabled publisher Shutdown() error = %v", err)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	// All recording methods must tolerate a disabled registry.
	m.RecordExecutionStarted("resize_instance")
	m.RecordExecutionCompleted("COMPLETED", 1500*time.Millisecond)
	m.RecordRetry("terminate_instance", "THROTTLING")
	m.SetBreakerState("compute", "open")
	m.RecordRollback("success")
}
