package domain

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Rate states that Base smallest units of the base asset are worth Quote smallest units
// of the quote asset, as observed at Timestamp.
type Rate struct {
	Quote     sdkmath.Int `json:"quote"`
	Base      sdkmath.Int `json:"base"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewRate builds a Rate from int64 amounts.
func NewRate(quote, base int64, ts time.Time) Rate {
	return Rate{Quote: sdkmath.NewInt(quote), Base: sdkmath.NewInt(base), Timestamp: ts}
}

// Validate checks that both amounts are present and non-negative and the base is positive.
func (r Rate) Validate() error {
	if r.Quote.IsNil() || r.Base.IsNil() {
		return fmt.Errorf("rate amounts are not set")
	}
	if r.Quote.IsNegative() {
		return fmt.Errorf("negative quote amount %s", r.Quote)
	}
	if !r.Base.IsPositive() {
		return fmt.Errorf("non-positive base amount %s", r.Base)
	}
	return nil
}

// IsStale reports whether the rate is older than threshold at now.
func (r Rate) IsStale(now time.Time, threshold time.Duration) bool {
	if r.Timestamp.IsZero() {
		return true
	}
	return now.Sub(r.Timestamp) > threshold
}

// RateSource is a read-only view of known rates. Lookups are pure: no I/O, no retries.
type RateSource interface {
	Rate(base, quote AssetID) (Rate, bool)
}
