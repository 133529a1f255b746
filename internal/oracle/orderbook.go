package oracle

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

type bidAsk struct {
	bid, ask *decimal.Decimal
}

// best prefers the bid over the ask.
func (b bidAsk) best() (decimal.Decimal, bool) {
	if b.bid != nil {
		return *b.bid, true
	}
	if b.ask != nil {
		return *b.ask, true
	}
	return decimal.Zero, false
}

// orderbookPrice prices one whole unit from the direct orderbook or the AMM pool,
// whichever has the lower ask.
func (s *HorizonSource) orderbookPrice(ctx context.Context, base, quote domain.AssetID) (decimal.Decimal, error) {
	var book, amm bidAsk

	ob, err := s.client.FetchOrderbook(ctx, base, quote, 1)
	if err == nil {
		if len(ob.Asks) > 0 {
			book.ask = parseDecimal(ob.Asks[0].Price)
		}
		if len(ob.Bids) > 0 {
			book.bid = parseDecimal(ob.Bids[0].Price)
		}
	} else {
		slog.Warn("orderbook fetch failed", "base", base, "quote", quote, "error", err)
	}

	pools, poolErr := s.client.FetchLiquidityPools(ctx, base, quote)
	if poolErr != nil {
		slog.Warn("liquidity pool fetch failed", "base", base, "quote", quote, "error", poolErr)
	}
	if poolErr == nil && len(pools) > 0 {
		if spot, ok := ammSpot(pools[0], base); ok {
			amm = bidAsk{bid: &spot, ask: &spot}
		}
	}

	bookPrice, bookOK := book.best()
	ammPrice, ammOK := amm.best()

	switch {
	case bookOK && ammOK:
		if amm.ask != nil && book.ask != nil && amm.ask.LessThan(*book.ask) {
			return ammPrice, nil
		}
		return bookPrice, nil
	case bookOK:
		return bookPrice, nil
	case ammOK:
		return ammPrice, nil
	}
	return decimal.Zero, ErrNoPrice
}

// ammSpot returns reserveQuote / reserveBase for a two-asset constant product pool.
func ammSpot(pool horizon.HorizonLiquidityPool, base domain.AssetID) (decimal.Decimal, bool) {
	if len(pool.Reserves) != 2 {
		return decimal.Zero, false
	}

	var reserveBase, reserveQuote decimal.Decimal
	for _, r := range pool.Reserves {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil || amount.IsZero() {
			return decimal.Zero, false
		}
		if domain.AssetID(r.Asset) == base {
			reserveBase = amount
		} else {
			reserveQuote = amount
		}
	}

	if reserveBase.IsZero() || reserveQuote.IsZero() {
		return decimal.Zero, false
	}
	return reserveQuote.Div(reserveBase), true
}

func parseDecimal(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		slog.Warn("unparseable price in orderbook", "value", s, "error", err)
		return nil
	}
	return &d
}
