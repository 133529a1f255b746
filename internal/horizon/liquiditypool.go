package horizon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mtlprog/fundfee/internal/domain"
)

// HorizonLiquidityPoolsResponse wraps the embedded records for liquidity pool queries.
type HorizonLiquidityPoolsResponse struct {
	Embedded struct {
		Records []HorizonLiquidityPool `json:"records"`
	} `json:"_embedded"`
}

// FetchLiquidityPools retrieves liquidity pools containing both reserve assets.
func (c *Client) FetchLiquidityPools(ctx context.Context, reserveA, reserveB domain.AssetID) ([]HorizonLiquidityPool, error) {
	params := url.Values{}
	params.Set("reserves", assetString(reserveA)+","+assetString(reserveB))
	params.Set("limit", "1")

	var resp HorizonLiquidityPoolsResponse
	if err := c.getJSON(ctx, "/liquidity_pools?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching liquidity pools: %w", err)
	}
	return resp.Embedded.Records, nil
}

// FetchLiquidityPool retrieves a single pool by id.
func (c *Client) FetchLiquidityPool(ctx context.Context, poolID string) (HorizonLiquidityPool, error) {
	var pool HorizonLiquidityPool
	if err := c.getJSON(ctx, "/liquidity_pools/"+url.PathEscape(poolID), &pool); err != nil {
		return HorizonLiquidityPool{}, fmt.Errorf("fetching liquidity pool %s: %w", poolID, err)
	}
	return pool, nil
}
