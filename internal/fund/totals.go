package fund

import (
	"context"
	"slices"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/valuation"
)

// HoldingValue is one holding valued in the fund's denomination.
type HoldingValue struct {
	Asset  domain.AssetID `json:"asset"`
	Amount sdkmath.Int    `json:"amount"`
	Value  sdkmath.Int    `json:"value"`
	Valid  bool           `json:"valid"`
}

// Valuation is a point-in-time report of a fund's value.
type Valuation struct {
	FundID       domain.FundID  `json:"fundId"`
	Denomination domain.AssetID `json:"denomination"`
	At           time.Time      `json:"at"`
	Holdings     []HoldingValue `json:"holdings"`
	GAV          sdkmath.Int    `json:"gav"`
	SharesSupply sdkmath.Int    `json:"sharesSupply"`
	SharePrice   sdkmath.Int    `json:"sharePrice"`
	// Valid is false when any holding could not be valued; GAV and SharePrice are then zero.
	Valid bool `json:"valid"`
}

// Value values every holding of the fund against the current rates.
func (s *Service) Value(ctx context.Context, id domain.FundID) (Valuation, error) {
	f, err := s.store.Fund(ctx, id)
	if err != nil {
		return Valuation{}, err
	}
	now := s.now()
	return valueFund(s.valuer.Context(now), f, now)
}

func valueFund(vctx valuation.Context, f domain.Fund, now time.Time) (Valuation, error) {
	ids := lo.Keys(f.Holdings)
	slices.Sort(ids)

	holdings := lo.Map(ids, func(asset domain.AssetID, _ int) HoldingValue {
		v, ok := vctx.CalcCanonicalValue(asset, f.Holdings[asset], f.Denomination)
		return HoldingValue{Asset: asset, Amount: f.Holdings[asset], Value: v, Valid: ok}
	})

	report := Valuation{
		FundID:       f.ID,
		Denomination: f.Denomination,
		At:           now,
		Holdings:     holdings,
		GAV:          sdkmath.ZeroInt(),
		SharesSupply: f.SharesSupply,
		SharePrice:   sdkmath.ZeroInt(),
		Valid:        lo.EveryBy(holdings, func(h HoldingValue) bool { return h.Valid }),
	}
	if !report.Valid {
		return report, nil
	}

	gav, err := vctx.CalcGAV(f)
	if err != nil {
		return Valuation{}, err
	}
	price, err := valuation.SharePrice(gav, f.SharesSupply, f.ShareUnit())
	if err != nil {
		return Valuation{}, err
	}
	report.GAV = gav
	report.SharePrice = price
	return report, nil
}
