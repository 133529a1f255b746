package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockRefresher struct {
	callCount atomic.Int32
	err       error
}

func (m *mockRefresher) Refresh(_ context.Context) (int, error) {
	m.callCount.Add(1)
	return 3, m.err
}

func TestRateWorkerRunsAndShutdown(t *testing.T) {
	mock := &mockRefresher{}
	var pools atomic.Int32
	syncPools := func(context.Context) (int, error) {
		pools.Add(1)
		return 1, nil
	}
	w := NewRateWorker(mock, syncPools, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	// Should have run at least the initial refresh + some ticks
	if got := mock.callCount.Load(); got < 2 {
		t.Errorf("refresh count = %d, want >= 2", got)
	}
	if pools.Load() != mock.callCount.Load() {
		t.Errorf("pool syncs = %d, refreshes = %d, want equal", pools.Load(), mock.callCount.Load())
	}
}

func TestRateWorkerRefreshesDespitePoolFailure(t *testing.T) {
	mock := &mockRefresher{}
	w := NewRateWorker(mock, func(context.Context) (int, error) {
		return 0, errors.New("horizon down")
	}, time.Hour)

	w.RunOnce(context.Background())

	if got := mock.callCount.Load(); got != 1 {
		t.Errorf("refresh count = %d, want 1", got)
	}
}
