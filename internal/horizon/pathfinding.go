package horizon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mtlprog/fundfee/internal/domain"
)

// FetchStrictSendPaths queries: "If I send `amount` of `source`, how much `dest` do I get?"
func (c *Client) FetchStrictSendPaths(ctx context.Context, source domain.AssetID, amount string, dest domain.AssetID) ([]HorizonPathRecord, error) {
	params := url.Values{}
	setAsset(params, "source", source)
	params.Set("source_amount", amount)
	params.Set("destination_assets", assetString(dest))

	var resp HorizonPathResponse
	if err := c.getJSON(ctx, "/paths/strict-send?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching strict send paths: %w", err)
	}
	return resp.Embedded.Records, nil
}

// FetchStrictReceivePaths queries: "To receive `amount` of `dest`, how much `source` do I need?"
func (c *Client) FetchStrictReceivePaths(ctx context.Context, source, dest domain.AssetID, amount string) ([]HorizonPathRecord, error) {
	params := url.Values{}
	params.Set("source_assets", assetString(source))
	setAsset(params, "destination", dest)
	params.Set("destination_amount", amount)

	var resp HorizonPathResponse
	if err := c.getJSON(ctx, "/paths/strict-receive?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching strict receive paths: %w", err)
	}
	return resp.Embedded.Records, nil
}
