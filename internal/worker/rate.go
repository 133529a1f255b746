package worker

import (
	"context"
	"log/slog"
	"time"
)

// RateRefresher fetches all configured price feeds and publishes a new rate book.
type RateRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// PoolSyncFunc re-reads liquidity pool reserves and returns the number of pools updated.
type PoolSyncFunc func(ctx context.Context) (int, error)

// RateWorker periodically refreshes rates and pool decompositions.
type RateWorker struct {
	refresher RateRefresher
	syncPools PoolSyncFunc // optional
	interval  time.Duration
}

// NewRateWorker creates a new RateWorker. syncPools may be nil.
func NewRateWorker(refresher RateRefresher, syncPools PoolSyncFunc, interval time.Duration) *RateWorker {
	return &RateWorker{
		refresher: refresher,
		syncPools: syncPools,
		interval:  interval,
	}
}

// RunOnce syncs pools and then refreshes rates.
func (w *RateWorker) RunOnce(ctx context.Context) {
	if w.syncPools != nil {
		if n, err := w.syncPools(ctx); err != nil {
			slog.Error("RateWorker: pool sync failed", "updated", n, "error", err)
		} else {
			slog.Debug("RateWorker: pools synced", "updated", n)
		}
	}

	n, err := w.refresher.Refresh(ctx)
	if err != nil {
		slog.Error("RateWorker: refresh failed", "rates", n, "error", err)
		return
	}
	slog.Info("RateWorker: refresh completed", "rates", n)
}

// Run starts the rate worker loop. It blocks until the context is cancelled.
func (w *RateWorker) Run(ctx context.Context) {
	slog.Info("RateWorker: starting", "interval", w.interval)

	// Refresh immediately on startup
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RateWorker: shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}
