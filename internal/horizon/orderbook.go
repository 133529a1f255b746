package horizon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mtlprog/fundfee/internal/domain"
)

// FetchOrderbook retrieves the orderbook for a trading pair.
func (c *Client) FetchOrderbook(ctx context.Context, selling, buying domain.AssetID, limit int) (HorizonOrderbook, error) {
	params := url.Values{}
	setAsset(params, "selling", selling)
	setAsset(params, "buying", buying)
	params.Set("limit", fmt.Sprintf("%d", limit))

	var ob HorizonOrderbook
	if err := c.getJSON(ctx, "/order_book?"+params.Encode(), &ob); err != nil {
		return HorizonOrderbook{}, fmt.Errorf("fetching orderbook: %w", err)
	}
	return ob, nil
}
