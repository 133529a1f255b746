package horizon

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
)

// ErrNoDataEntry is returned when an account has no DATA entry with the requested name.
var ErrNoDataEntry = errors.New("data entry not found")

// FetchAccount retrieves a Stellar account's details including balances and data entries.
func (c *Client) FetchAccount(ctx context.Context, accountID string) (HorizonAccount, error) {
	var account HorizonAccount
	if err := c.getJSON(ctx, "/accounts/"+url.PathEscape(accountID), &account); err != nil {
		return HorizonAccount{}, fmt.Errorf("fetching account %s: %w", accountID, err)
	}
	return account, nil
}

// Holdings converts the account balances into smallest-unit amounts keyed by asset.
// Zero balances are skipped.
func (a HorizonAccount) Holdings() (map[domain.AssetID]sdkmath.Int, error) {
	holdings := make(map[domain.AssetID]sdkmath.Int, len(a.Balances))
	for _, b := range a.Balances {
		amount, err := domain.ParseUnits(b.Balance, domain.StellarPrecision)
		if err != nil {
			return nil, fmt.Errorf("parsing balance of %s: %w", b.AssetID(), err)
		}
		if amount.IsZero() {
			continue
		}
		holdings[b.AssetID()] = amount
	}
	return holdings, nil
}

// DataEntry returns the decoded value of a DATA entry.
func (a HorizonAccount) DataEntry(name string) (string, error) {
	raw, ok := a.Data[name]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrNoDataEntry, name, a.ID)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decoding data entry %s: %w", name, err)
	}
	return string(decoded), nil
}
