// Package fee implements the per-fund fee family. Each fee owns its configuration and
// accounting state, computes settlement instructions for lifecycle hooks, and
// round-trips through msgpack for storage.
package fee

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mtlprog/fundfee/internal/domain"
)

// Fee types.
const (
	TypeEntrance        domain.FeeType = "entrance"
	TypeExit            domain.FeeType = "exit"
	TypeManagement      domain.FeeType = "management"
	TypePerformance     domain.FeeType = "performance"
	TypeMinSharesSupply domain.FeeType = "min_shares_supply"
)

// ErrInvalidConfig is returned when a fee configuration does not decode or validate.
var ErrInvalidConfig = errors.New("invalid fee configuration")

// FundState is what a fee sees of the fund during one dispatch. GAV is only set when
// HasGAV is true.
type FundState struct {
	Fund   domain.Fund
	GAV    sdkmath.Int
	HasGAV bool
	Now    time.Time
}

// Fee is one fee attached to one fund.
type Fee interface {
	Type() domain.FeeType
	// Validate checks the decoded configuration.
	Validate() error
	// SettlesOn reports whether the fee acts on hook.
	SettlesOn(hook domain.Hook) bool
	// NeedsGAV reports whether Settle on hook requires the fund's gross asset value.
	NeedsGAV(hook domain.Hook) bool
	// Activate initialises accounting state when the fee is attached.
	Activate(state FundState) error
	// Settle returns the instruction owed for hook, or nil when nothing is due.
	Settle(hook domain.Hook, state FundState, payload domain.Payload) (*domain.Instruction, error)
	// Update rolls accounting state forward after settlement, whether or not anything was paid.
	Update(hook domain.Hook, state FundState, payload domain.Payload) error
}

// Payer is implemented by fees that escrow minted shares until a payout.
type Payer interface {
	Fee
	// PayoutDue reports whether escrowed shares may be released at now. A true result
	// starts a new payout period.
	PayoutDue(now time.Time) bool
	// Recipient returns the holder that receives the fee.
	Recipient(fund domain.Fund) string
}

// Factory creates empty fees of one type for decoding.
type Factory struct {
	Type domain.FeeType
	New  func() Fee
}

// Factories returns the built-in fee types.
func Factories() []Factory {
	return []Factory{
		{Type: TypeEntrance, New: func() Fee { return &EntranceFee{} }},
		{Type: TypeExit, New: func() Fee { return &ExitFee{} }},
		{Type: TypeManagement, New: func() Fee { return &ManagementFee{} }},
		{Type: TypePerformance, New: func() Fee { return &PerformanceFee{} }},
		{Type: TypeMinSharesSupply, New: func() Fee { return &MinSharesSupplyFee{} }},
	}
}

// Decode strictly decodes data into a new fee from f. Unknown fields are rejected.
func (f Factory) Decode(data []byte) (Fee, error) {
	fee := f.New()
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(fee); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.Type, err)
	}
	if err := fee.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.Type, err)
	}
	return fee, nil
}

// Encode serialises a fee including its accounting state.
func Encode(fee Fee) ([]byte, error) {
	data, err := msgpack.Marshal(fee)
	if err != nil {
		return nil, fmt.Errorf("encoding %s fee: %w", fee.Type(), err)
	}
	return data, nil
}

// recipientOr returns r, or the fund owner when r is empty.
func recipientOr(r string, fund domain.Fund) string {
	if r != "" {
		return r
	}
	return fund.Owner
}

// validateBps range-checks a decoded rate. Rates decode as int64 so an out-of-range
// value is rejected instead of being truncated.
func validateBps(bps int64) error {
	if bps < 0 || bps > domain.MaxBps {
		return fmt.Errorf("rate_bps %d outside 0..%d", bps, domain.MaxBps)
	}
	return nil
}

// payoutDue implements the shared payout period check.
func payoutDue(period int64, last *time.Time, now time.Time) bool {
	if period > 0 && !last.IsZero() && now.Sub(*last) < time.Duration(period)*time.Second {
		return false
	}
	*last = now
	return true
}
