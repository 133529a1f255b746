package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/fund"
)

type mockTicker struct {
	mu     sync.Mutex
	ticked []domain.FundID
	fail   domain.FundID
}

func (m *mockTicker) List(_ context.Context) ([]domain.Fund, error) {
	return []domain.Fund{{ID: "a"}, {ID: "b"}, {ID: "c"}}, nil
}

func (m *mockTicker) Tick(_ context.Context, id domain.FundID) (fund.TickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticked = append(m.ticked, id)
	if id == m.fail {
		return fund.TickResult{FundID: id}, errors.New("boom")
	}
	return fund.TickResult{FundID: id}, nil
}

type mockHook struct {
	calls   atomic.Int32
	results []fund.TickResult
}

func (m *mockHook) Export(_ context.Context, results []fund.TickResult) error {
	m.calls.Add(1)
	m.results = results
	return nil
}

func TestContinuousWorkerTicksAllFunds(t *testing.T) {
	ticker := &mockTicker{fail: "b"}
	hook := &mockHook{}
	w := NewContinuousWorker(ticker, "@every 1h", hook)

	results := w.RunOnce(context.Background())

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if len(ticker.ticked) != 3 || ticker.ticked[2] != "c" {
		t.Errorf("ticked = %v, want all funds despite failure", ticker.ticked)
	}
	if hook.calls.Load() != 1 || len(hook.results) != 3 {
		t.Errorf("hook calls = %d with %d results", hook.calls.Load(), len(hook.results))
	}
}

func TestContinuousWorkerRunsAndShutdown(t *testing.T) {
	ticker := &mockTicker{}
	w := NewContinuousWorker(ticker, "@every 1s", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ticker.mu.Lock()
	defer ticker.mu.Unlock()
	// Initial round plus at least one scheduled round
	if got := len(ticker.ticked); got < 6 {
		t.Errorf("ticks = %d, want >= 6", got)
	}
}

func TestContinuousWorkerRejectsBadSchedule(t *testing.T) {
	w := NewContinuousWorker(&mockTicker{}, "not a schedule", nil)
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected schedule error")
	}
}
