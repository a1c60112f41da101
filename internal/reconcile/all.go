package reconcile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claimrecon/internal/model"
)

// Outcome is the result of one profile in a multi-profile run. Exactly one
// of Result and Err is set.
type Outcome struct {
	ProfileID string
	Result    *model.Result
	Err       error
}

// ReconcileAll reconciles independent profiles in parallel. A failure in
// one profile never affects the others. Outcomes are returned in input
// order.
func (e *Engine) ReconcileAll(ctx context.Context, batches []model.ProfileBatch) []Outcome {
	out := make([]Outcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ProfileConcurrency)

	for i, batch := range batches {
		g.Go(func() error {
			res, err := e.Reconcile(gctx, batch)
			out[i] = Outcome{ProfileID: batch.ProfileID, Result: res, Err: err}
			if err != nil {
				zap.L().Error("profile reconciliation failed",
					zap.String("profile_id", batch.ProfileID),
					zap.Error(err),
				)
			}
			return nil // don't abort other profiles
		})
	}
	_ = g.Wait()

	return out
}
