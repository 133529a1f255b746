package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtlprog/fundfee/internal/domain"
)

// RateRepository persists the latest rate per pair.
type RateRepository interface {
	SaveRates(ctx context.Context, quotes []Quote) error
	LoadRates(ctx context.Context) ([]Quote, error)
}

// Refresher polls every adapter and publishes the results as a new Book.
// Readers always see a complete, immutable Book.
type Refresher struct {
	adapters   []Adapter
	repo       RateRepository
	staleAfter time.Duration
	now        func() time.Time
	book       atomic.Pointer[Book]
}

// NewRefresher creates a Refresher. repo may be nil.
func NewRefresher(adapters []Adapter, repo RateRepository, staleAfter time.Duration) *Refresher {
	r := &Refresher{
		adapters:   adapters,
		repo:       repo,
		staleAfter: staleAfter,
		now:        time.Now,
	}
	r.book.Store(NewBook(nil))
	return r
}

// Snapshot returns the current Book.
func (r *Refresher) Snapshot() domain.RateSource {
	return r.book.Load()
}

// Book returns the current Book.
func (r *Refresher) Book() *Book {
	return r.book.Load()
}

// Load seeds the Book from the repository so a restart does not start with no rates.
func (r *Refresher) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	quotes, err := r.repo.LoadRates(ctx)
	if err != nil {
		return fmt.Errorf("loading rates: %w", err)
	}
	r.book.Store(NewBook(quotes))
	slog.Info("rates loaded", "count", len(quotes))
	return nil
}

// Set publishes a single quote immediately.
func (r *Refresher) Set(ctx context.Context, q Quote) error {
	if err := q.Rate.Validate(); err != nil {
		return fmt.Errorf("rate %s/%s: %w", q.Base, q.Quote, err)
	}
	if r.repo != nil {
		if err := r.repo.SaveRates(ctx, []Quote{q}); err != nil {
			return fmt.Errorf("saving rate %s/%s: %w", q.Base, q.Quote, err)
		}
	}
	r.book.Store(r.book.Load().With(q))
	return nil
}

type fetchResult struct {
	quote Quote
	stale bool
	err   error
}

// Refresh fetches every adapter concurrently. Failed feeds keep their previous rate,
// which ages into staleness on its own. Returns an error only if every feed failed.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	if len(r.adapters) == 0 {
		return 0, nil
	}
	now := r.now()

	results := make([]fetchResult, len(r.adapters))
	var wg sync.WaitGroup
	for i, a := range r.adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, stale, err := a.Fetch(ctx, now, r.staleAfter)
			results[i] = fetchResult{
				quote: Quote{Base: a.Feed.Base.ID, Quote: a.Feed.Quote.ID, Rate: rate},
				stale: stale,
				err:   err,
			}
		}()
	}
	wg.Wait()

	var fresh []Quote
	var lastErr error
	for i, res := range results {
		if res.err != nil {
			lastErr = res.err
			slog.Warn("rate fetch failed", "feed", r.adapters[i].Feed.String(), "error", res.err)
			continue
		}
		if res.stale {
			slog.Warn("source returned stale rate", "feed", r.adapters[i].Feed.String(),
				"timestamp", res.quote.Rate.Timestamp)
		}
		fresh = append(fresh, res.quote)
	}

	if len(fresh) == 0 {
		return 0, fmt.Errorf("all %d rate feeds failed: %w", len(r.adapters), lastErr)
	}

	next := NewBook(append(r.book.Load().Quotes(), fresh...))
	if r.repo != nil {
		if err := r.repo.SaveRates(ctx, fresh); err != nil {
			return 0, fmt.Errorf("saving rates: %w", err)
		}
	}
	r.book.Store(next)

	return len(fresh), nil
}
