package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/fundfee/internal/domain"
)

// SymbolMapping maps asset codes to CoinGecko IDs.
var SymbolMapping = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"XLM":  "stellar",
	"Sats": "bitcoin",
	"USD":  "tether",
	"AU":   "gold",
}

var (
	satsPerBTC     = decimal.NewFromInt(100_000_000)
	gramsPerTroyOz = decimal.RequireFromString("31.1035")
)

// CoinGeckoSource prices off-ledger symbols in EUR. The configured EUR asset is
// assumed to trade at par with EUR.
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
	delay      time.Duration
	maxRetries int
	eurAsset   domain.AssetID

	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	fetchedAt time.Time
}

// NewCoinGeckoSource creates a CoinGecko price source quoting in eurAsset.
func NewCoinGeckoSource(baseURL string, delay time.Duration, maxRetries int, eurAsset domain.AssetID) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		delay:      delay,
		maxRetries: maxRetries,
		eurAsset:   eurAsset,
	}
}

func (c *CoinGeckoSource) Name() string { return "coingecko" }

// FetchRate returns the EUR rate of the symbol named by the base asset code.
func (c *CoinGeckoSource) FetchRate(ctx context.Context, base, quote domain.Asset) (domain.Rate, error) {
	if quote.ID != c.eurAsset {
		return domain.Rate{}, fmt.Errorf("%w: coingecko quotes only in %s", ErrNoPrice, c.eurAsset)
	}
	prices, fetchedAt, err := c.cachedPrices(ctx)
	if err != nil {
		return domain.Rate{}, err
	}
	price, ok := prices[base.ID.Code()]
	if !ok {
		return domain.Rate{}, fmt.Errorf("%w: no coingecko quote for %s", ErrNoPrice, base.ID)
	}
	return RateFromPrice(price.String(), base, quote, fetchedAt)
}

// cachedPrices refetches all symbols at most once per cacheTTL; one request covers every feed.
func (c *CoinGeckoSource) cachedPrices(ctx context.Context) (map[string]decimal.Decimal, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prices != nil && time.Since(c.fetchedAt) < cacheTTL {
		return c.prices, c.fetchedAt, nil
	}
	prices, err := c.FetchPrices(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	c.prices = prices
	c.fetchedAt = time.Now()
	return c.prices, c.fetchedAt, nil
}

// FetchPrices fetches EUR prices for all mapped symbols.
func (c *CoinGeckoSource) FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	ids := lo.Uniq(lo.Values(SymbolMapping))
	slices.Sort(ids)

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=eur", c.baseURL, strings.Join(ids, ","))

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	// {"bitcoin":{"eur":45000},"ethereum":{"eur":2500},...}
	var raw map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko response: %w", err)
	}

	result := make(map[string]decimal.Decimal)
	for symbol, coinID := range SymbolMapping {
		quotes, ok := raw[coinID]
		if !ok {
			continue
		}
		eurPrice, ok := quotes["eur"]
		if !ok {
			continue
		}

		switch symbol {
		case "Sats":
			result[symbol] = eurPrice.Div(satsPerBTC)
		case "AU":
			// Gold is quoted per troy ounce; AU is one gram.
			result[symbol] = eurPrice.Div(gramsPerTroyOz)
		default:
			result[symbol] = eurPrice
		}
	}

	return result, nil
}

func (c *CoinGeckoSource) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			baseDelay := c.delay
			if baseDelay == 0 {
				baseDelay = 10 * time.Second
			}
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating CoinGecko request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("CoinGecko request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading CoinGecko response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("CoinGecko rate limited (attempt %d/%d)", attempt+1, c.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("CoinGecko HTTP %d: %s", resp.StatusCode, string(body))
	}

	return nil, lastErr
}
