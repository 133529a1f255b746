package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

// HorizonClient defines the Horizon API subset needed for price discovery.
type HorizonClient interface {
	FetchOrderbook(ctx context.Context, selling, buying domain.AssetID, limit int) (horizon.HorizonOrderbook, error)
	FetchStrictSendPaths(ctx context.Context, source domain.AssetID, amount string, dest domain.AssetID) ([]horizon.HorizonPathRecord, error)
	FetchStrictReceivePaths(ctx context.Context, source, dest domain.AssetID, amount string) ([]horizon.HorizonPathRecord, error)
	FetchLiquidityPools(ctx context.Context, reserveA, reserveB domain.AssetID) ([]horizon.HorizonLiquidityPool, error)
}

// HorizonSource prices Stellar assets from the DEX: path finding, orderbook and AMM pools.
type HorizonSource struct {
	client HorizonClient
	cache  *priceCache
}

// NewHorizonSource creates a HorizonSource.
func NewHorizonSource(client HorizonClient) *HorizonSource {
	return &HorizonSource{
		client: client,
		cache:  newPriceCache(),
	}
}

func (s *HorizonSource) Name() string { return "horizon" }

// FetchRate returns the spot rate of one whole base unit.
func (s *HorizonSource) FetchRate(ctx context.Context, base, quote domain.Asset) (domain.Rate, error) {
	key := string(base.ID) + "=>" + string(quote.ID)
	point, ok := s.cache.get(key)
	if !ok {
		var err error
		point, err = s.spotPrice(ctx, base.ID, quote.ID)
		if err != nil {
			return domain.Rate{}, err
		}
		s.cache.set(key, point)
	}
	return RateFromPrice(point.price.String(), base, quote, point.observedAt)
}

// spotPrice queries both path finding and the orderbook, returning the higher price.
func (s *HorizonSource) spotPrice(ctx context.Context, base, quote domain.AssetID) (pricePoint, error) {
	type priceResult struct {
		price decimal.Decimal
		err   error
	}

	pathCh := make(chan priceResult, 1)
	obCh := make(chan priceResult, 1)

	go func() {
		p, err := s.pathPrice(ctx, base, quote)
		pathCh <- priceResult{p, err}
	}()

	go func() {
		p, err := s.orderbookPrice(ctx, base, quote)
		obCh <- priceResult{p, err}
	}()

	pathResult := <-pathCh
	obResult := <-obCh
	now := time.Now()

	switch {
	case pathResult.err != nil && obResult.err != nil:
		return pricePoint{}, pathResult.err
	case obResult.err != nil:
		return pricePoint{price: pathResult.price, observedAt: now}, nil
	case pathResult.err != nil:
		return pricePoint{price: obResult.price, observedAt: now}, nil
	}

	slog.Debug("horizon spot price", "base", base, "quote", quote,
		"path", pathResult.price.String(), "orderbook", obResult.price.String())

	if pathResult.price.GreaterThanOrEqual(obResult.price) {
		return pricePoint{price: pathResult.price, observedAt: now}, nil
	}
	return pricePoint{price: obResult.price, observedAt: now}, nil
}
