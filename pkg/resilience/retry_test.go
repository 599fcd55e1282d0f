package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/telemetry"
)

// memCheckpoint is an in-memory CheckpointStore for tests.
type memCheckpoint struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCheckpoint() *memCheckpoint {
	return &memCheckpoint{data: make(map[string][]byte)}
}

func (m *memCheckpoint) SaveCheckpoint(_ context.Context, id, phase string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id+"/"+phase] = append([]byte(nil), data...)
	return nil
}

func (m *memCheckpoint) LoadCheckpoint(_ context.Context, id, phase string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id+"/"+phase]
	return d, ok, nil
}

func newTestManager(cfg RetryConfig, checkpoint CheckpointStore) (*RecoveryManager, *[]time.Duration) {
	m := NewRecoveryManager(
		cfg,
		NewClassifier(),
		NewCircuitBreaker(BreakerConfig{FailureThreshold: 100, SuccessThreshold: 1, RecoveryTimeout: time.Minute}),
		nil, // no rate limiter in retry tests
		checkpoint,
		nil,
		nil,
		zerolog.Nop(),
	)
	delays := &[]time.Duration{}
	m.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	m.jitter = func() float64 { return 0.5 } // zero jitter
	return m, delays
}

func TestExecuteRetriesUpToMax(t *testing.T) {
	m, _ := newTestManager(RetryConfig{MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, nil)

	attempts := 0
	err := m.Execute(context.Background(), "compute", "stop-instance", func(context.Context) error {
		attempts++
		return errors.New("internal error")
	})

	if err == nil {
		t.Fatal("expected final error")
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4 (1 initial + 3 retries)", attempts)
	}
}

func TestExecuteNoRetryFailsFast(t *testing.T) {
	m, _ := newTestManager(RetryConfig{MaxRetries: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, nil)

	attempts := 0
	original := &fakeCodedError{code: "AccessDenied"}
	err := m.Execute(context.Background(), "compute", "terminate-instance", func(context.Context) error {
		attempts++
		return original
	})

	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 for no-retry category", attempts)
	}
	if !errors.Is(err, error(original)) {
		t.Fatalf("final error = %v, want original provider error", err)
	}
}

func TestExecuteDelaysNonDecreasingUpToCap(t *testing.T) {
	m, delays := newTestManager(RetryConfig{MaxRetries: 6, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 8 * time.Second}, nil)

	_ = m.Execute(context.Background(), "compute", "resize-instance", func(context.Context) error {
		return errors.New("internal error")
	})

	prev := time.Duration(0)
	for i, d := range *delays {
		if d < prev {
			t.Fatalf("delay %d (%v) decreased from %v", i, d, prev)
		}
		if d > 8*time.Second {
			t.Fatalf("delay %d (%v) exceeds max delay", i, d)
		}
		prev = d
	}
	if len(*delays) != 6 {
		t.Fatalf("delay count = %d, want 6", len(*delays))
	}
}

func TestExecuteThrottlingDoublesDelay(t *testing.T) {
	m, delays := newTestManager(RetryConfig{MaxRetries: 1, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, nil)

	_ = m.Execute(context.Background(), "compute", "modify-instance", func(context.Context) error {
		return &fakeCodedError{code: "Throttling"}
	})

	if len(*delays) != 1 {
		t.Fatalf("delay count = %d, want 1", len(*delays))
	}
	if (*delays)[0] != 2*time.Second {
		t.Fatalf("throttled delay = %v, want 2s (doubled initial)", (*delays)[0])
	}
}

func TestExecuteLinearBackoffForTimeouts(t *testing.T) {
	m, delays := newTestManager(RetryConfig{MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, nil)

	_ = m.Execute(context.Background(), "compute", "snapshot-volume", func(context.Context) error {
		return context.DeadlineExceeded
	})

	want := []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delay count = %d, want %d", len(*delays), len(want))
	}
	for i, d := range *delays {
		if d != want[i] {
			t.Errorf("linear delay %d = %v, want %v", i, d, want[i])
		}
	}
}

func TestExecuteSuccessResetsState(t *testing.T) {
	m, _ := newTestManager(RetryConfig{MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, nil)

	calls := 0
	err := m.Execute(context.Background(), "compute", "stop-instance", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("internal error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	state, ok := m.State("stop-instance")
	if !ok {
		t.Fatal("no recovery state recorded")
	}
	if state.ConsecutiveFailures != 0 {
		t.Fatalf("consecutive failures after success = %d, want 0", state.ConsecutiveFailures)
	}
}

func TestExecuteOpenCircuitRejects(t *testing.T) {
	m, _ := newTestManager(RetryConfig{MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, nil)
	m.breaker = NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Hour})
	m.breaker.OnFailure("compute")

	attempts := 0
	err := m.Execute(context.Background(), "compute", "stop-instance", func(context.Context) error {
		attempts++
		return nil
	})

	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0 with open circuit", attempts)
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want circuit open", err)
	}
}

func TestExecuteRecordsTelemetry(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "warden"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	var mu sync.Mutex
	var seen []string
	events.Subscribe(func(event telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Type)
	}, nil)

	m := NewRecoveryManager(
		RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond},
		NewClassifier(),
		NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Hour}),
		nil,
		nil,
		metrics,
		events,
		zerolog.Nop(),
	)
	m.sleep = func(context.Context, time.Duration) error { return nil }
	m.jitter = func() float64 { return 0.5 }

	if err := m.Execute(context.Background(), "compute", "resize-instance", func(context.Context) error {
		return errors.New("internal error")
	}); err == nil {
		t.Fatal("expected final error")
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`warden_retry_attempts_total{category="server_error",operation="resize-instance"} 1`,
		`warden_circuit_breaker_state{target="compute"} 2`,
		`warden_errors_by_category_total{category="server_error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	opened := false
	for _, typ := range seen {
		if typ == telemetry.EventTypeBreakerOpened {
			opened = true
		}
	}
	if !opened {
		t.Errorf("event types = %v, want a %s event", seen, telemetry.EventTypeBreakerOpened)
	}
}

func TestRecoveryStateSurvivesRestart(t *testing.T) {
	checkpoint := newMemCheckpoint()

	m1, _ := newTestManager(RetryConfig{MaxRetries: 0, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, checkpoint)
	_ = m1.Execute(context.Background(), "compute", "stop-instance", func(context.Context) error {
		return errors.New("internal error")
	})

	// A fresh manager sharing the checkpoint store sees the history.
	m2, _ := newTestManager(RetryConfig{MaxRetries: 0, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}, checkpoint)
	_ = m2.Execute(context.Background(), "compute", "stop-instance", func(context.Context) error {
		return errors.New("internal error")
	})

	state, ok := m2.State("stop-instance")
	if !ok {
		t.Fatal("no recovery state after restart")
	}
	if state.ConsecutiveFailures != 2 {
		t.Fatalf("consecutive failures = %d, want 2 (1 before restart + 1 after)", state.ConsecutiveFailures)
	}
	if len(state.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(state.History))
	}
}

func TestErrorHistoryIsBounded(t *testing.T) {
	s := &RecoveryState{Operation: "op"}
	for i := 0; i < maxErrorHistory+5; i++ {
		s.recordFailure(CategoryServer, "boom", time.Now())
	}
	if len(s.History) != maxErrorHistory {
		t.Fatalf("history length = %d, want %d", len(s.History), maxErrorHistory)
	}
}
