// Package valuation converts holdings of any registered asset into an amount of a
// fund's denomination asset.
package valuation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/domain"
)

// MaxDepth bounds derivative resolution. A decomposition nested deeper is invalid.
const MaxDepth = 8

// ErrInvalidValuation is returned when a fund value cannot be computed from fresh rates.
var ErrInvalidValuation = errors.New("invalid valuation")

// Classifier resolves the pricing category of an asset.
type Classifier interface {
	Classify(id domain.AssetID) (classifier.Kind, []classifier.Component, uint8)
}

// Context is the read-only state a valuation runs against. The zero Intermediate
// disables two-leg conversion.
type Context struct {
	Assets       Classifier
	Rates        domain.RateSource
	Intermediate domain.AssetID
	StaleAfter   time.Duration
	Now          time.Time
}

// CalcCanonicalValue returns the value of amount units of asset in units of denomination.
// The boolean is false when any rate on the way is stale or missing, the asset is
// unsupported, or the derivative graph is too deep.
func (c Context) CalcCanonicalValue(asset domain.AssetID, amount sdkmath.Int, denomination domain.AssetID) (sdkmath.Int, bool) {
	return c.calcValue(asset, amount, denomination, MaxDepth)
}

// CalcCanonicalValues sums the values of a batch. Any invalid entry invalidates the total.
func (c Context) CalcCanonicalValues(assets []domain.AssetID, amounts []sdkmath.Int, denomination domain.AssetID) (sdkmath.Int, bool) {
	if len(assets) != len(amounts) {
		return sdkmath.ZeroInt(), false
	}
	total := sdkmath.ZeroInt()
	for i, asset := range assets {
		v, ok := c.CalcCanonicalValue(asset, amounts[i], denomination)
		if !ok {
			return sdkmath.ZeroInt(), false
		}
		sum, err := domain.SafeSum(total, v)
		if err != nil {
			return sdkmath.ZeroInt(), false
		}
		total = sum
	}
	return total, true
}

// CalcGAV returns the gross asset value of the fund's holdings in its denomination.
func (c Context) CalcGAV(fund domain.Fund) (sdkmath.Int, error) {
	ids := lo.Keys(fund.Holdings)
	slices.Sort(ids)

	total := sdkmath.ZeroInt()
	for _, id := range ids {
		v, ok := c.CalcCanonicalValue(id, fund.Holdings[id], fund.Denomination)
		if !ok {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: fund %s holding %s", ErrInvalidValuation, fund.ID, id)
		}
		sum, err := domain.SafeSum(total, v)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: fund %s: %v", ErrInvalidValuation, fund.ID, err)
		}
		total = sum
	}
	return total, nil
}

func (c Context) calcValue(asset domain.AssetID, amount sdkmath.Int, denomination domain.AssetID, depth int) (sdkmath.Int, bool) {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), false
	}
	if asset == denomination {
		return amount, true
	}
	if c.Assets == nil {
		return sdkmath.ZeroInt(), false
	}

	kind, components, precision := c.Assets.Classify(asset)
	switch kind {
	case classifier.Primitive:
		return c.primitiveValue(asset, amount, denomination)
	case classifier.Derivative:
		if depth <= 0 {
			return sdkmath.ZeroInt(), false
		}
		unit := domain.Pow10(precision)
		total := sdkmath.ZeroInt()
		for _, comp := range components {
			underlying, err := domain.MulDivFloor(amount, comp.AmountPerUnit, unit)
			if err != nil {
				return sdkmath.ZeroInt(), false
			}
			v, ok := c.calcValue(comp.Asset, underlying, denomination, depth-1)
			if !ok {
				return sdkmath.ZeroInt(), false
			}
			sum, err := domain.SafeSum(total, v)
			if err != nil {
				return sdkmath.ZeroInt(), false
			}
			total = sum
		}
		return total, true
	default:
		return sdkmath.ZeroInt(), false
	}
}

func (c Context) primitiveValue(asset domain.AssetID, amount sdkmath.Int, denomination domain.AssetID) (sdkmath.Int, bool) {
	if r, ok := c.freshRate(asset, denomination); ok {
		v, err := domain.MulDivFloor(amount, r.Quote, r.Base)
		return v, err == nil
	}

	mid := c.Intermediate
	if mid == "" || mid == asset || mid == denomination {
		return sdkmath.ZeroInt(), false
	}
	first, ok := c.freshRate(asset, mid)
	if !ok {
		return sdkmath.ZeroInt(), false
	}
	second, ok := c.freshRate(mid, denomination)
	if !ok {
		return sdkmath.ZeroInt(), false
	}
	// Single floor over both legs.
	v, err := domain.MulDiv(
		[]sdkmath.Int{amount, first.Quote, second.Quote},
		[]sdkmath.Int{first.Base, second.Base},
	)
	return v, err == nil
}

// freshRate treats stale and malformed rates exactly like missing ones.
func (c Context) freshRate(base, quote domain.AssetID) (domain.Rate, bool) {
	if c.Rates == nil {
		return domain.Rate{}, false
	}
	r, ok := c.Rates.Rate(base, quote)
	if !ok || r.Validate() != nil || r.IsStale(c.Now, c.StaleAfter) {
		return domain.Rate{}, false
	}
	return r, true
}

// SharePrice returns the value of one whole share: floor(gav * shareUnit / supply).
// An empty fund has no share price and yields zero.
func SharePrice(gav, supply, shareUnit sdkmath.Int) (sdkmath.Int, error) {
	if supply.IsNil() || supply.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	return domain.MulDivFloor(gav, shareUnit, supply)
}

// Snapshotter exposes a consistent view of the current rates.
type Snapshotter interface {
	Snapshot() domain.RateSource
}

// Provider builds valuation contexts against the live rate book.
type Provider struct {
	Assets       Classifier
	Rates        Snapshotter
	Intermediate domain.AssetID
	StaleAfter   time.Duration
}

// Context returns a Context frozen on the current rate snapshot.
func (p *Provider) Context(now time.Time) Context {
	var rates domain.RateSource
	if p.Rates != nil {
		rates = p.Rates.Snapshot()
	}
	return Context{
		Assets:       p.Assets,
		Rates:        rates,
		Intermediate: p.Intermediate,
		StaleAfter:   p.StaleAfter,
		Now:          now,
	}
}
