package horizon

import (
	"net/url"

	"github.com/mtlprog/fundfee/internal/domain"
)

// HorizonAccount represents the JSON response from GET /accounts/{id}.
type HorizonAccount struct {
	ID       string            `json:"id"`
	Balances []HorizonBalance  `json:"balances"`
	Data     map[string]string `json:"data"`
}

// HorizonBalance represents a single balance entry in an account response.
type HorizonBalance struct {
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code"`
	AssetIssuer     string `json:"asset_issuer"`
	Balance         string `json:"balance"`
	LiquidityPoolID string `json:"liquidity_pool_id,omitempty"`
}

// AssetID returns the canonical id of the balance asset. Pool shares map to "pool:<id>".
func (b HorizonBalance) AssetID() domain.AssetID {
	switch b.AssetType {
	case "native":
		return domain.NativeAssetID
	case "liquidity_pool_shares":
		return domain.AssetID("pool:" + b.LiquidityPoolID)
	}
	return domain.NewAssetID(b.AssetCode, b.AssetIssuer)
}

// HorizonOrderbook represents the JSON response from GET /order_book.
type HorizonOrderbook struct {
	Bids []HorizonOrderbookEntry `json:"bids"`
	Asks []HorizonOrderbookEntry `json:"asks"`
}

// HorizonOrderbookEntry represents a single bid or ask in an orderbook.
type HorizonOrderbookEntry struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// HorizonPathRecord represents a single path in a path finding response.
type HorizonPathRecord struct {
	SourceAmount      string             `json:"source_amount"`
	DestinationAmount string             `json:"destination_amount"`
	Path              []HorizonPathAsset `json:"path"`
}

// HorizonPathAsset represents an intermediate asset in a path.
type HorizonPathAsset struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

// HorizonPathResponse wraps the embedded records in a path finding response.
type HorizonPathResponse struct {
	Embedded struct {
		Records []HorizonPathRecord `json:"records"`
	} `json:"_embedded"`
}

// HorizonLiquidityPool represents a liquidity pool from the Horizon API.
type HorizonLiquidityPool struct {
	ID          string                        `json:"id"`
	TotalShares string                        `json:"total_shares"`
	Reserves    []HorizonLiquidityPoolReserve `json:"reserves"`
}

// HorizonLiquidityPoolReserve represents a reserve in a liquidity pool.
type HorizonLiquidityPoolReserve struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// setAsset writes the "<prefix>_asset_type/code/issuer" triple for an asset.
func setAsset(params url.Values, prefix string, id domain.AssetID) {
	if id.IsNative() {
		params.Set(prefix+"_asset_type", "native")
		return
	}
	params.Set(prefix+"_asset_type", assetType(id.Code()))
	params.Set(prefix+"_asset_code", id.Code())
	params.Set(prefix+"_asset_issuer", id.Issuer())
}

// assetString renders an asset in the "CODE:ISSUER" / "native" list form.
func assetString(id domain.AssetID) string {
	if id.IsNative() {
		return "native"
	}
	return string(id)
}

func assetType(code string) string {
	if len(code) <= 4 {
		return "credit_alphanum4"
	}
	return "credit_alphanum12"
}
