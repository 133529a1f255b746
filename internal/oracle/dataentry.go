package oracle

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

// AccountFetcher loads a Stellar account.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, accountID string) (horizon.HorizonAccount, error)
}

// DataEntrySuffix marks DATA entries that publish a manual unit price: "<CODE>_1COST".
const DataEntrySuffix = "_1COST"

var compoundRegex = regexp.MustCompile(`^(\w+)\s+([\d.]+)(g|oz)$`)

// DataEntrySource reads manually published unit prices from an account's DATA entries.
// A value is either a number in the EUR asset ("12.5", European "12,5" accepted) or a
// symbol priced by the fallback source, optionally with a quantity ("AU 2.5g").
type DataEntrySource struct {
	accounts AccountFetcher
	account  string
	eurAsset domain.AssetID
	symbols  Source
}

// NewDataEntrySource creates a DataEntrySource. symbols may be nil.
func NewDataEntrySource(accounts AccountFetcher, account string, eurAsset domain.AssetID, symbols Source) *DataEntrySource {
	return &DataEntrySource{accounts: accounts, account: account, eurAsset: eurAsset, symbols: symbols}
}

func (s *DataEntrySource) Name() string { return "dataentry" }

// FetchRate returns the manually published price of base in the EUR asset.
func (s *DataEntrySource) FetchRate(ctx context.Context, base, quote domain.Asset) (domain.Rate, error) {
	if quote.ID != s.eurAsset {
		return domain.Rate{}, fmt.Errorf("%w: data entries are quoted only in %s", ErrNoPrice, s.eurAsset)
	}
	account, err := s.accounts.FetchAccount(ctx, s.account)
	if err != nil {
		return domain.Rate{}, err
	}
	raw, err := account.DataEntry(base.ID.Code() + DataEntrySuffix)
	if err != nil {
		return domain.Rate{}, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	price, err := s.resolve(ctx, raw, quote)
	if err != nil {
		return domain.Rate{}, fmt.Errorf("data entry for %s: %w", base.ID, err)
	}
	return RateFromPrice(price.String(), base, quote, time.Now())
}

func (s *DataEntrySource) resolve(ctx context.Context, raw string, quote domain.Asset) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}

	symbol, quantity := raw, decimal.NewFromInt(1)
	if m := compoundRegex.FindStringSubmatch(raw); m != nil {
		q, err := decimal.NewFromString(m[2])
		if err != nil || !q.IsPositive() {
			return decimal.Zero, fmt.Errorf("invalid quantity in compound value: %s", m[2])
		}
		symbol, quantity = m[1], q
		if m[3] == "oz" {
			quantity = quantity.Mul(gramsPerTroyOz)
		}
	}

	if _, known := SymbolMapping[symbol]; known {
		if s.symbols == nil {
			return decimal.Zero, fmt.Errorf("no source for symbol %s", symbol)
		}
		symAsset := domain.Asset{ID: domain.AssetID(symbol), Precision: domain.StellarPrecision}
		r, err := s.symbols.FetchRate(ctx, symAsset, quote)
		if err != nil {
			return decimal.Zero, err
		}
		unitPrice, err := decimal.NewFromString(PriceOf(r, symAsset, quote))
		if err != nil {
			return decimal.Zero, err
		}
		return unitPrice.Mul(quantity), nil
	}

	d, err := decimal.NewFromString(normalizeEuropeanDecimal(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value: %q", raw)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("value must be positive, got: %s", d.String())
	}
	return d, nil
}

// normalizeEuropeanDecimal converts European decimal format to standard format.
// "0,8" → "0.8", "1.234,56" → "1234.56", "1.5" → "1.5"
func normalizeEuropeanDecimal(s string) string {
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	if hasComma && hasDot {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if hasComma {
		s = strings.Replace(s, ",", ".", 1)
	}
	return s
}
