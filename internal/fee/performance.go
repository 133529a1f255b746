package fee

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/valuation"
)

// PerformanceFee charges a rate on share price growth above the high-water mark. The mark
// is the price of one whole share in the smallest denomination unit; zero means unset.
type PerformanceFee struct {
	RateBps       int64     `msgpack:"rate_bps"`
	Payee         string    `msgpack:"recipient,omitempty"`
	PayoutPeriod  int64     `msgpack:"payout_period_seconds,omitempty"`
	HighWaterMark Amount    `msgpack:"high_water_mark"`
	LastSettled   time.Time `msgpack:"last_settled,omitempty"`
	LastPayout    time.Time `msgpack:"last_payout,omitempty"`
}

func (f *PerformanceFee) Type() domain.FeeType { return TypePerformance }

func (f *PerformanceFee) Validate() error {
	if err := validateBps(f.RateBps); err != nil {
		return err
	}
	if f.PayoutPeriod < 0 {
		return fmt.Errorf("negative payout_period_seconds %d", f.PayoutPeriod)
	}
	return nil
}

func (f *PerformanceFee) SettlesOn(hook domain.Hook) bool {
	switch hook {
	case domain.HookContinuous, domain.HookPreBuyShares, domain.HookPreRedeemShares:
		return true
	}
	return false
}

func (f *PerformanceFee) NeedsGAV(hook domain.Hook) bool { return f.SettlesOn(hook) }

func (f *PerformanceFee) Activate(state FundState) error {
	f.LastPayout = state.Now
	f.LastSettled = state.Now
	if !state.HasGAV {
		return nil
	}
	price, err := sharePrice(state)
	if err != nil {
		return fmt.Errorf("performance fee: %w", err)
	}
	f.HighWaterMark = NewAmount(price)
	return nil
}

// Settle charges raw = gain * supply^2 * bps / (shareUnit * 10000 * gav), the fraction of
// supply worth bps of the total gain, then converts it with the anti-dilution rule.
func (f *PerformanceFee) Settle(hook domain.Hook, state FundState, _ domain.Payload) (*domain.Instruction, error) {
	if !f.SettlesOn(hook) {
		return nil, nil
	}
	if !state.HasGAV {
		return nil, fmt.Errorf("performance fee: %w", valuation.ErrInvalidValuation)
	}
	supply := state.Fund.SharesSupply
	mark := f.HighWaterMark.Value()
	if supply.IsZero() || mark.IsZero() || state.GAV.IsZero() {
		return nil, nil
	}

	price, err := sharePrice(state)
	if err != nil {
		return nil, fmt.Errorf("performance fee: %w", err)
	}
	if !price.GT(mark) {
		return nil, nil
	}
	gain := price.Sub(mark)

	raw, err := domain.MulDiv(
		[]sdkmath.Int{gain, supply, supply, sdkmath.NewInt(f.RateBps)},
		[]sdkmath.Int{state.Fund.ShareUnit(), sdkmath.NewInt(domain.MaxBps), state.GAV},
	)
	if err != nil {
		return nil, fmt.Errorf("performance fee: %w", err)
	}
	due, err := domain.ConvertToSharesDue(raw, supply)
	if err != nil {
		return nil, fmt.Errorf("performance fee: %w", err)
	}
	if due.IsZero() {
		return nil, nil
	}
	return &domain.Instruction{
		FeeType: TypePerformance,
		Type:    domain.SettlementMintSharesOutstanding,
		Shares:  due,
		Payee:   domain.EscrowHolder(TypePerformance),
	}, nil
}

// Update moves the mark to max(mark, price). A redemption of the whole supply or an
// empty fund resets it; the next settlement re-initialises it without charging.
func (f *PerformanceFee) Update(hook domain.Hook, state FundState, payload domain.Payload) error {
	if !f.SettlesOn(hook) {
		return nil
	}
	f.LastSettled = state.Now
	supply := state.Fund.SharesSupply

	if supply.IsZero() || !state.HasGAV {
		f.HighWaterMark = NewAmount(sdkmath.ZeroInt())
		return nil
	}
	if hook == domain.HookPreRedeemShares && !payload.SharesToRedeem.IsNil() && payload.SharesToRedeem.GTE(supply) {
		f.HighWaterMark = NewAmount(sdkmath.ZeroInt())
		return nil
	}

	price, err := sharePrice(state)
	if err != nil {
		return fmt.Errorf("performance fee: %w", err)
	}
	if price.GT(f.HighWaterMark.Value()) {
		f.HighWaterMark = NewAmount(price)
	}
	return nil
}

func (f *PerformanceFee) PayoutDue(now time.Time) bool {
	return payoutDue(f.PayoutPeriod, &f.LastPayout, now)
}

func (f *PerformanceFee) Recipient(fund domain.Fund) string {
	return recipientOr(f.Payee, fund)
}

func sharePrice(state FundState) (sdkmath.Int, error) {
	return valuation.SharePrice(state.GAV, state.Fund.SharesSupply, state.Fund.ShareUnit())
}
