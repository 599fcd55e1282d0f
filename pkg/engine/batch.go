package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/costwarden/costwarden/pkg/stores"
)

// ExecuteBatch runs a set of actions under the given mode and aggregates
// the outcomes. Per-item failures land in the summary, never in the
// returned error.
func (e *Executor) ExecuteBatch(ctx context.Context, actions []OptimizationAction, mode BatchMode, force bool) (*BatchSummary, error) {
	start := e.now()

	var records []*ExecutionRecord
	var err error

	switch mode {
	case BatchSequential:
		records, err = e.runSequential(ctx, actions, force)
	case BatchParallel:
		records, err = e.runParallel(ctx, actions, force)
	case BatchResourceGrouped:
		records, err = e.runGrouped(ctx, actions, force, func(a OptimizationAction) string { return a.ResourceType })
	case BatchRegionGrouped:
		records, err = e.runGrouped(ctx, actions, force, func(a OptimizationAction) string { return a.Region })
	default:
		return nil, fmt.Errorf("unknown batch mode: %s", mode)
	}
	if err != nil {
		return nil, err
	}

	summary := summarize(mode, records)
	summary.Elapsed = e.now().Sub(start)

	e.logger.Info().
		Str("mode", string(mode)).
		Int("total", summary.Total).
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Int("rolled_back", summary.RolledBack).
		Float64("total_savings", summary.TotalSavings).
		Dur("elapsed", summary.Elapsed).
		Msg("Batch complete")

	return summary, nil
}

// runSequential executes actions one at a time.
func (e *Executor) runSequential(ctx context.Context, actions []OptimizationAction, force bool) ([]*ExecutionRecord, error) {
	records := make([]*ExecutionRecord, 0, len(actions))
	for _, action := range actions {
		record, err := e.executeItem(ctx, action, force)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// runParallel executes actions on a bounded worker pool. A per-item
// timeout turns a hung mutation into a FAILED outcome without blocking
// collection of the other results.
func (e *Executor) runParallel(ctx context.Context, actions []OptimizationAction, force bool) ([]*ExecutionRecord, error) {
	records := make([]*ExecutionRecord, len(actions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)

	for i, action := range actions {
		i, action := i, action
		g.Go(func() error {
			record, err := e.executeItem(gctx, action, force)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// runGrouped partitions actions by a dimension; each partition runs
// sequentially inside its own worker, partitions run concurrently.
func (e *Executor) runGrouped(ctx context.Context, actions []OptimizationAction, force bool, keyOf func(OptimizationAction) string) ([]*ExecutionRecord, error) {
	groups := make(map[string][]OptimizationAction)
	for _, action := range actions {
		key := keyOf(action)
		groups[key] = append(groups[key], action)
	}

	var mu sync.Mutex
	var records []*ExecutionRecord

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			partition, err := e.runSequential(gctx, group, force)
			if err != nil {
				return err
			}
			mu.Lock()
			records = append(records, partition...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// executeItem runs one batch item under the per-item timeout. A timeout
// is a FAILED outcome, not a hang.
func (e *Executor) executeItem(ctx context.Context, action OptimizationAction, force bool) (*ExecutionRecord, error) {
	itemCtx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()

	record, err := e.ExecuteOptimization(itemCtx, action, force)
	if err != nil {
		if itemCtx.Err() != nil && ctx.Err() == nil {
			return &ExecutionRecord{
				ID:               action.ID,
				ActionID:         action.ID,
				ResourceID:       action.ResourceID,
				Operation:        action.OperationKind,
				Status:           stores.ExecutionStatusFailed,
				EstimatedSavings: action.EstimatedSavings,
				Message:          fmt.Sprintf("timed out after %s", e.cfg.ItemTimeout),
				CompletedAt:      e.now().UTC(),
			}, nil
		}
		return nil, err
	}

	if record.Status != stores.ExecutionStatusCompleted && itemCtx.Err() == context.DeadlineExceeded {
		record.Message = fmt.Sprintf("timed out after %s", e.cfg.ItemTimeout)
	}
	return record, nil
}

// summarize aggregates batch records into counts and totals.
func summarize(mode BatchMode, records []*ExecutionRecord) *BatchSummary {
	summary := &BatchSummary{
		Mode:    mode,
		Total:   len(records),
		Records: records,
	}

	for _, record := range records {
		if record == nil {
			continue
		}
		switch record.Status {
		case stores.ExecutionStatusCompleted:
			summary.Completed++
			if record.ActualSavings != nil {
				summary.TotalSavings += *record.ActualSavings
			}
		case stores.ExecutionStatusFailed:
			summary.Failed++
		case stores.ExecutionStatusRolledBack:
			summary.RolledBack++
		case stores.ExecutionStatusCancelled:
			summary.Cancelled++
		}
	}

	return summary
}
