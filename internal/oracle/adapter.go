package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mtlprog/fundfee/internal/domain"
)

// ErrNoPrice indicates that a source could not determine a price.
var ErrNoPrice = errors.New("no price available")

// Source fetches the current rate of base priced in quote.
type Source interface {
	Name() string
	FetchRate(ctx context.Context, base, quote domain.Asset) (domain.Rate, error)
}

// Feed configures one rate: which pair and which source serves it.
type Feed struct {
	Base   domain.Asset `json:"base"`
	Quote  domain.Asset `json:"quote"`
	Source string       `json:"source"`
}

func (f Feed) String() string {
	return fmt.Sprintf("%s/%s@%s", f.Base.ID, f.Quote.ID, f.Source)
}

// Adapter wraps a single source for one pair.
type Adapter struct {
	Feed   Feed
	Source Source
}

// Fetch returns the current rate and whether it is older than staleAfter at now.
func (a Adapter) Fetch(ctx context.Context, now time.Time, staleAfter time.Duration) (domain.Rate, bool, error) {
	r, err := a.Source.FetchRate(ctx, a.Feed.Base, a.Feed.Quote)
	if err != nil {
		return domain.Rate{}, true, fmt.Errorf("fetching %s: %w", a.Feed, err)
	}
	if err := r.Validate(); err != nil {
		return domain.Rate{}, true, fmt.Errorf("fetching %s: %w", a.Feed, err)
	}
	return r, r.IsStale(now, staleAfter), nil
}

// ErrUnknownSource is returned for a feed naming a source that is not configured.
var ErrUnknownSource = errors.New("unknown rate source")

// Adapters binds each feed to the source it names.
func Adapters(feeds []Feed, sources ...Source) ([]Adapter, error) {
	byName := make(map[string]Source, len(sources))
	for _, s := range sources {
		byName[s.Name()] = s
	}

	adapters := make([]Adapter, 0, len(feeds))
	for _, f := range feeds {
		src, ok := byName[f.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, f)
		}
		adapters = append(adapters, Adapter{Feed: f, Source: src})
	}
	return adapters, nil
}
