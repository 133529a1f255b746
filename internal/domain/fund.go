package domain

import (
	"errors"
	"fmt"
	"maps"
	"time"

	sdkmath "cosmossdk.io/math"
)

// FundID identifies a fund.
type FundID string

// DefaultSharePrecision is the precision of fund shares unless configured otherwise.
const DefaultSharePrecision uint8 = 18

// LockedSharesHolder holds shares that can never be redeemed (minimum supply floor).
const LockedSharesHolder = "locked"

// ErrInvalidFund is returned for a fund configuration that cannot be stored.
var ErrInvalidFund = errors.New("invalid fund")

// Fund is the engine's view of a fund at one point in time. A fund with an Account has
// its holdings mirrored from that Stellar account.
type Fund struct {
	ID             FundID                  `json:"id"`
	Denomination   AssetID                 `json:"denomination"`
	Owner          string                  `json:"owner"`
	Account        string                  `json:"account,omitempty"`
	SharePrecision uint8                   `json:"sharePrecision"`
	SharesSupply   sdkmath.Int             `json:"sharesSupply"`
	Holdings       map[AssetID]sdkmath.Int `json:"holdings"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// ShareUnit returns one whole share in its smallest denomination.
func (f Fund) ShareUnit() sdkmath.Int {
	return Pow10(f.SharePrecision)
}

// Clone returns a deep copy of the fund.
func (f Fund) Clone() Fund {
	c := f
	c.Holdings = maps.Clone(f.Holdings)
	return c
}

// Validate checks the static fund configuration.
func (f Fund) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidFund)
	}
	if f.Denomination == "" {
		return fmt.Errorf("%w: %s: denomination asset is empty", ErrInvalidFund, f.ID)
	}
	if f.Owner == "" {
		return fmt.Errorf("%w: %s: owner is empty", ErrInvalidFund, f.ID)
	}
	if f.SharePrecision > 36 {
		return fmt.Errorf("%w: %s: share precision %d above 36", ErrInvalidFund, f.ID, f.SharePrecision)
	}
	return nil
}

// EscrowHolder returns the holder that keeps shares outstanding for a fee until payout.
func EscrowHolder(feeType FeeType) string {
	return "escrow:" + string(feeType)
}
