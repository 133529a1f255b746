package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/fund"
)

// FundTicker runs the periodic settlement of funds.
type FundTicker interface {
	List(ctx context.Context) ([]domain.Fund, error)
	Tick(ctx context.Context, id domain.FundID) (fund.TickResult, error)
}

// AfterTickHook is called after each tick round with the results of all funds.
type AfterTickHook interface {
	Export(ctx context.Context, results []fund.TickResult) error
}

// ContinuousWorker runs Continuous fee settlement for every fund on a cron schedule.
type ContinuousWorker struct {
	funds    FundTicker
	schedule string
	hook     AfterTickHook // optional
}

// NewContinuousWorker creates a new ContinuousWorker with an optional post-tick hook.
// schedule is a standard five-field cron spec or a descriptor such as "@every 1h".
func NewContinuousWorker(funds FundTicker, schedule string, hook AfterTickHook) *ContinuousWorker {
	return &ContinuousWorker{
		funds:    funds,
		schedule: schedule,
		hook:     hook,
	}
}

// RunOnce ticks every fund. A failing fund does not stop the round.
func (w *ContinuousWorker) RunOnce(ctx context.Context) []fund.TickResult {
	funds, err := w.funds.List(ctx)
	if err != nil {
		slog.Error("ContinuousWorker: listing funds failed", "error", err)
		return nil
	}

	results := make([]fund.TickResult, 0, len(funds))
	for _, f := range funds {
		if ctx.Err() != nil {
			break
		}
		res, err := w.funds.Tick(ctx, f.ID)
		if err != nil {
			slog.Error("ContinuousWorker: tick failed", "fund", f.ID, "error", err)
		}
		results = append(results, res)
	}
	slog.Info("ContinuousWorker: tick completed", "funds", len(results))

	w.runHook(ctx, results)
	return results
}

// runHook calls the post-tick hook if one is configured.
func (w *ContinuousWorker) runHook(ctx context.Context, results []fund.TickResult) {
	if w.hook == nil || len(results) == 0 {
		return
	}
	if err := w.hook.Export(ctx, results); err != nil {
		slog.Error("ContinuousWorker: export hook failed", "error", err)
	} else {
		slog.Info("ContinuousWorker: export hook completed")
	}
}

// Run ticks immediately and then on every schedule activation. It blocks until the
// context is cancelled and waits for a running tick to finish.
func (w *ContinuousWorker) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.schedule, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("parsing schedule %q: %w", w.schedule, err)
	}

	slog.Info("ContinuousWorker: starting", "schedule", w.schedule)

	// Tick immediately on startup
	w.RunOnce(ctx)

	c.Start()
	<-ctx.Done()
	slog.Info("ContinuousWorker: shutting down")
	<-c.Stop().Done()
	return nil
}
