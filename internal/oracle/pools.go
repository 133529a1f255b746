package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

// PoolAssetPrefix prefixes asset ids of Stellar liquidity pool shares.
const PoolAssetPrefix = "pool:"

// PoolFetcher loads a liquidity pool.
type PoolFetcher interface {
	FetchLiquidityPool(ctx context.Context, poolID string) (horizon.HorizonLiquidityPool, error)
}

// DerivativeRegistry accepts derivative decompositions.
type DerivativeRegistry interface {
	RegisterDerivative(asset domain.Asset, components []classifier.Component) error
}

// PoolDecomposition returns the reserves backing one whole pool share.
func PoolDecomposition(pool horizon.HorizonLiquidityPool) ([]classifier.Component, error) {
	total, err := domain.ParseUnits(pool.TotalShares, domain.StellarPrecision)
	if err != nil {
		return nil, fmt.Errorf("pool %s total shares: %w", pool.ID, err)
	}
	if total.IsZero() {
		return nil, fmt.Errorf("pool %s has no shares", pool.ID)
	}
	unit := domain.Pow10(domain.StellarPrecision)

	components := make([]classifier.Component, 0, len(pool.Reserves))
	for _, r := range pool.Reserves {
		reserve, err := domain.ParseUnits(r.Amount, domain.StellarPrecision)
		if err != nil {
			return nil, fmt.Errorf("pool %s reserve %s: %w", pool.ID, r.Asset, err)
		}
		perUnit, err := domain.MulDivFloor(reserve, unit, total)
		if err != nil {
			return nil, fmt.Errorf("pool %s reserve %s: %w", pool.ID, r.Asset, err)
		}
		components = append(components, classifier.Component{
			Asset:         domain.AssetID(r.Asset),
			AmountPerUnit: perUnit,
		})
	}
	return components, nil
}

// SyncPools re-registers each pool share asset with its current reserves.
// Returns the number of pools updated; failures are reported but do not stop the loop.
func SyncPools(ctx context.Context, pools PoolFetcher, reg DerivativeRegistry, ids []domain.AssetID) (int, error) {
	var firstErr error
	updated := 0
	for _, id := range ids {
		poolID, ok := strings.CutPrefix(string(id), PoolAssetPrefix)
		if !ok {
			continue
		}
		pool, err := pools.FetchLiquidityPool(ctx, poolID)
		if err == nil {
			var comps []classifier.Component
			comps, err = PoolDecomposition(pool)
			if err == nil {
				err = reg.RegisterDerivative(domain.Asset{ID: id, Precision: domain.StellarPrecision}, comps)
			}
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("syncing %s: %w", id, err)
			}
			continue
		}
		updated++
	}
	return updated, firstErr
}
