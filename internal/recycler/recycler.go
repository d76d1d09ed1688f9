// Package recycler runs the background loop that resets jobs left running
// against a worker that has stopped heartbeating, so they become
// schedulable again instead of stuck forever.
package recycler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/store"
)

// Recycler periodically reclaims stale job assignments.
type Recycler struct {
	Store *store.Store
	Log   *zap.Logger

	// Deadline is how long a worker may go without heartbeating before its
	// running jobs are recycled.
	Deadline time.Duration
	// Tick is how often the recycle sweep runs.
	Tick time.Duration
}

// Run loops until ctx is cancelled, sweeping for stale assignments every
// Tick. Mirrors recycler_worker's outer retry loop: a sweep error is logged
// and the loop continues rather than exiting, since a transient database
// hiccup should not kill the whole recycler goroutine.
func (r *Recycler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Tick)
	defer ticker.Stop()

	for {
		if err := r.sweepOnce(ctx); err != nil {
			r.Log.Warn("recycle sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Recycler) sweepOnce(ctx context.Context) error {
	deadline := time.Now().Add(-r.Deadline)
	var ids []int64
	err := r.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		ids, err = tx.RecycleStaleAssignments(ctx, deadline)
		return err
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.Log.Info("recycled stale job assignment", zap.Int64("job_id", id))
	}
	return nil
}
