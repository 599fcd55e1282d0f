package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/stores"
)

func setupTestScheduler(t *testing.T) (*Scheduler, *recordingMutator, stores.Store) {
	t.Helper()

	mutator := &recordingMutator{}
	executor, store := setupTestExecutor(t, Config{}, mutator)
	scheduler := NewScheduler(executor, store, nil, zerolog.Nop())
	return scheduler, mutator, store
}

func TestSchedulePopOrder(t *testing.T) {
	scheduler, _, _ := setupTestScheduler(t)
	ctx := context.Background()

	base := time.Now().Add(time.Hour)

	late, err := scheduler.Schedule(ctx, resizeAction("s1"), base.Add(time.Hour), 9, true)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	earlyLow, err := scheduler.Schedule(ctx, resizeAction("s2"), base, 1, true)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	earlyHigh, err := scheduler.Schedule(ctx, resizeAction("s3"), base, 5, true)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	pending := scheduler.Pending()
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}

	// Earliest time first; same time orders by higher priority.
	want := []string{earlyHigh.ID, earlyLow.ID, late.ID}
	for i, id := range want {
		if pending[i].ID != id {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].ID, id)
		}
	}
}

func TestProcessDueExecutesOnlyDueItems(t *testing.T) {
	scheduler, mutator, _ := setupTestScheduler(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	if _, err := scheduler.Schedule(ctx, resizeAction("due1"), past, 1, true); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := scheduler.Schedule(ctx, resizeAction("due2"), past, 2, true); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := scheduler.Schedule(ctx, resizeAction("notdue"), future, 1, true); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	summary, err := scheduler.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	if summary.Total != 2 {
		t.Fatalf("processed = %d, want 2", summary.Total)
	}
	if summary.Completed != 2 {
		t.Errorf("completed = %d (%+v), want 2", summary.Completed, summary.Records)
	}
	if mutator.callCount() != 2 {
		t.Errorf("mutations = %d, want 2", mutator.callCount())
	}
	if len(scheduler.Pending()) != 1 {
		t.Errorf("pending = %d, want 1", len(scheduler.Pending()))
	}
}

func TestProcessDueEmptyQueue(t *testing.T) {
	scheduler, _, _ := setupTestScheduler(t)

	summary, err := scheduler.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if summary.Total != 0 {
		t.Errorf("processed = %d, want 0", summary.Total)
	}
}

func TestCancelScheduled(t *testing.T) {
	scheduler, mutator, store := setupTestScheduler(t)
	ctx := context.Background()

	item, err := scheduler.Schedule(ctx, resizeAction("c1"), time.Now().Add(time.Hour), 1, true)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	removed, err := scheduler.CancelScheduled(ctx, item.ID)
	if err != nil {
		t.Fatalf("CancelScheduled failed: %v", err)
	}
	if !removed {
		t.Fatal("expected cancellation to succeed")
	}

	row, err := store.GetExecution(ctx, item.ID)
	if err != nil {
		t.Fatalf("failed to load execution: %v", err)
	}
	if row.Status != stores.ExecutionStatusCancelled {
		t.Errorf("status = %s, want %s", row.Status, stores.ExecutionStatusCancelled)
	}

	if len(scheduler.Pending()) != 0 {
		t.Error("queue should be empty after cancellation")
	}
	if mutator.callCount() != 0 {
		t.Error("cancelled item must never execute")
	}

	// Cancelling twice is a no-op.
	removed, err = scheduler.CancelScheduled(ctx, item.ID)
	if err != nil {
		t.Fatalf("CancelScheduled failed: %v", err)
	}
	if removed {
		t.Error("expected second cancellation to report not found")
	}
}

func TestRestoreRehydratesQueue(t *testing.T) {
	scheduler, _, store := setupTestScheduler(t)
	ctx := context.Background()

	if _, err := scheduler.Schedule(ctx, resizeAction("r1"), time.Now().Add(time.Hour), 1, true); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := scheduler.Schedule(ctx, resizeAction("r2"), time.Now().Add(2*time.Hour), 1, true); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// A fresh scheduler over the same store sees the persisted queue.
	fresh := NewScheduler(scheduler.executor, store, nil, zerolog.Nop())
	restored, err := fresh.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored != 2 {
		t.Errorf("restored = %d, want 2", restored)
	}
	if len(fresh.Pending()) != 2 {
		t.Errorf("pending = %d, want 2", len(fresh.Pending()))
	}
}
