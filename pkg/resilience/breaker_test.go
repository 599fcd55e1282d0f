package resilience

import (
	"testing"
	"time"
)

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(cfg)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, RecoveryTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		b.OnFailure("compute")
		if got := b.State("compute"); got != BreakerClosed {
			t.Fatalf("state after %d failures = %s, want closed", i+1, got)
		}
	}

	b.OnFailure("compute")
	if got := b.State("compute"); got != BreakerOpen {
		t.Fatalf("state after threshold failures = %s, want open", got)
	}
	if b.Allow("compute") {
		t.Fatal("open breaker admitted a call")
	}
}

func TestBreakerSuccessDecrementsFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, RecoveryTimeout: time.Minute})

	b.OnFailure("compute")
	b.OnFailure("compute")
	b.OnSuccess("compute")
	b.OnFailure("compute")

	// 2 failures - 1 success + 1 failure = 2, below threshold.
	if got := b.State("compute"); got != BreakerClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}

func TestBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: time.Minute})

	b.OnFailure("database")
	if b.Allow("database") {
		t.Fatal("open breaker admitted a call before recovery timeout")
	}

	*now = now.Add(61 * time.Second)
	if !b.Allow("database") {
		t.Fatal("breaker did not admit trial call after recovery timeout")
	}
	if got := b.State("database"); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want half_open", got)
	}
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 3, RecoveryTimeout: time.Minute})

	b.OnFailure("database")
	*now = now.Add(2 * time.Minute)
	if !b.Allow("database") {
		t.Fatal("expected trial call to be admitted")
	}

	b.OnSuccess("database")
	b.OnSuccess("database")
	if got := b.State("database"); got != BreakerHalfOpen {
		t.Fatalf("state after 2 successes = %s, want half_open", got)
	}

	b.OnSuccess("database")
	if got := b.State("database"); got != BreakerClosed {
		t.Fatalf("state after success threshold = %s, want closed", got)
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 2, RecoveryTimeout: time.Minute})

	b.OnFailure("storage")
	b.OnFailure("storage")
	*now = now.Add(2 * time.Minute)
	if !b.Allow("storage") {
		t.Fatal("expected trial call to be admitted")
	}

	b.OnSuccess("storage")
	b.OnFailure("storage")
	if got := b.State("storage"); got != BreakerOpen {
		t.Fatalf("state after half-open failure = %s, want open", got)
	}
	if b.Allow("storage") {
		t.Fatal("reopened breaker admitted a call")
	}
}

func TestBreakerTargetsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute})

	b.OnFailure("compute")
	if b.Allow("compute") {
		t.Fatal("tripped target admitted a call")
	}
	if !b.Allow("database") {
		t.Fatal("untouched target was rejected")
	}
}
