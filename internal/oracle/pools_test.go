package oracle

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

type mockPools map[string]horizon.HorizonLiquidityPool

func (m mockPools) FetchLiquidityPool(_ context.Context, id string) (horizon.HorizonLiquidityPool, error) {
	p, ok := m[id]
	if !ok {
		return horizon.HorizonLiquidityPool{}, horizon.ErrNotFound
	}
	return p, nil
}

func TestPoolDecomposition(t *testing.T) {
	pool := horizon.HorizonLiquidityPool{
		ID:          "p1",
		TotalShares: "100.0000000",
		Reserves: []horizon.HorizonLiquidityPoolReserve{
			{Asset: "native", Amount: "400.0000000"},
			{Asset: string(eurmtl.ID), Amount: "100.0000000"},
		},
	}
	comps, err := PoolDecomposition(pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("components = %d, want 2", len(comps))
	}
	if comps[0].Asset != domain.NativeAssetID || !comps[0].AmountPerUnit.Equal(sdkmath.NewInt(40_000_000)) {
		t.Errorf("native component = %+v, want 4 XLM per share", comps[0])
	}
	if !comps[1].AmountPerUnit.Equal(sdkmath.NewInt(10_000_000)) {
		t.Errorf("eurmtl component = %+v, want 1 EURMTL per share", comps[1])
	}

	pool.TotalShares = "0"
	if _, err := PoolDecomposition(pool); err == nil {
		t.Error("expected error for empty pool")
	}
}

func TestSyncPools(t *testing.T) {
	reg := classifier.NewRegistry()
	pools := mockPools{"p1": {
		ID:          "p1",
		TotalShares: "10",
		Reserves: []horizon.HorizonLiquidityPoolReserve{
			{Asset: "native", Amount: "10"},
			{Asset: string(eurmtl.ID), Amount: "20"},
		},
	}}

	n, err := SyncPools(context.Background(), pools, reg,
		[]domain.AssetID{"pool:p1", "pool:missing", mtl.ID})
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	if !errors.Is(err, horizon.ErrNotFound) {
		t.Errorf("error = %v, want wrapped ErrNotFound for the missing pool", err)
	}

	kind, comps, precision := reg.Classify("pool:p1")
	if kind != classifier.Derivative || len(comps) != 2 || precision != domain.StellarPrecision {
		t.Errorf("classify = %v, %v, %d", kind, comps, precision)
	}
}
