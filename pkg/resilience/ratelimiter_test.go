package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiterAdmitsUpToLimit(t *testing.T) {
	r := NewRateLimiter(map[string]int{"compute": 3}, 10)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.Acquire(ctx, "compute"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	if got := r.InWindow("compute"); got != 3 {
		t.Fatalf("InWindow = %d, want 3", got)
	}
}

func TestRateLimiterBlocksAtCapacity(t *testing.T) {
	r := NewRateLimiter(map[string]int{"compute": 1}, 10)

	ctx := context.Background()
	if err := r.Acquire(ctx, "compute"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// Second acquire must block until cancelled.
	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := r.Acquire(cancelCtx, "compute"); err != context.DeadlineExceeded {
		t.Fatalf("blocked acquire returned %v, want deadline exceeded", err)
	}
}

func TestRateLimiterNeverExceedsLimitUnderConcurrency(t *testing.T) {
	const limit = 5
	const callers = 25

	r := NewRateLimiter(map[string]int{"compute": limit}, 10)

	var admitted int64
	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := r.Acquire(ctx, "compute"); err == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	// Within the test window at most two 1s windows can elapse; with a
	// 200ms deadline only the first window's slots are available.
	if n := atomic.LoadInt64(&admitted); n > limit {
		t.Fatalf("admitted %d calls in one window, limit is %d", n, limit)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	r := NewRateLimiter(map[string]int{"compute": 2}, 10)
	now := time.Now()
	r.now = func() time.Time { return now }

	ctx := context.Background()
	if err := r.Acquire(ctx, "compute"); err != nil {
		t.Fatal(err)
	}
	if err := r.Acquire(ctx, "compute"); err != nil {
		t.Fatal(err)
	}
	if got := r.InWindow("compute"); got != 2 {
		t.Fatalf("InWindow = %d, want 2", got)
	}

	now = now.Add(1100 * time.Millisecond)
	if got := r.InWindow("compute"); got != 0 {
		t.Fatalf("InWindow after reset = %d, want 0", got)
	}
	if err := r.Acquire(ctx, "compute"); err != nil {
		t.Fatalf("acquire in fresh window failed: %v", err)
	}
}

func TestRateLimiterFallbackLimit(t *testing.T) {
	r := NewRateLimiter(map[string]int{}, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.Acquire(ctx, "unknown-service"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	cancelCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := r.Acquire(cancelCtx, "unknown-service"); err == nil {
		t.Fatal("acquire beyond fallback limit did not block")
	}
}

func TestRateLimiterSetLimit(t *testing.T) {
	r := NewRateLimiter(map[string]int{"compute": 1}, 10)
	r.SetLimit("compute", 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.Acquire(ctx, "compute"); err != nil {
			t.Fatalf("acquire %d after SetLimit failed: %v", i, err)
		}
	}
}
