package fee

import (
	"fmt"
	"time"

	"github.com/mtlprog/fundfee/internal/domain"
)

// ManagementFee accrues linearly with time at an annual rate of the share supply. Shares
// are minted to escrow and released to the recipient by a payout.
type ManagementFee struct {
	RateBps      int64     `msgpack:"rate_bps"`
	Payee        string    `msgpack:"recipient,omitempty"`
	PayoutPeriod int64     `msgpack:"payout_period_seconds,omitempty"`
	LastSettled  time.Time `msgpack:"last_settled,omitempty"`
	LastPayout   time.Time `msgpack:"last_payout,omitempty"`
}

func (f *ManagementFee) Type() domain.FeeType { return TypeManagement }

func (f *ManagementFee) Validate() error {
	if err := validateBps(f.RateBps); err != nil {
		return err
	}
	if f.PayoutPeriod < 0 {
		return fmt.Errorf("negative payout_period_seconds %d", f.PayoutPeriod)
	}
	return nil
}

// SettlesOn includes the share-changing hooks so accrued fees are settled against the
// supply they accrued on.
func (f *ManagementFee) SettlesOn(hook domain.Hook) bool {
	switch hook {
	case domain.HookContinuous, domain.HookPreBuyShares, domain.HookPreRedeemShares:
		return true
	}
	return false
}

func (f *ManagementFee) NeedsGAV(domain.Hook) bool { return false }

func (f *ManagementFee) Activate(state FundState) error {
	f.LastSettled = state.Now
	f.LastPayout = state.Now
	return nil
}

func (f *ManagementFee) Settle(hook domain.Hook, state FundState, _ domain.Payload) (*domain.Instruction, error) {
	if !f.SettlesOn(hook) {
		return nil, nil
	}
	seconds := int64(state.Now.Sub(f.LastSettled) / time.Second)
	supply := state.Fund.SharesSupply

	raw, err := domain.TimeWeightedSharesDue(supply, uint32(f.RateBps), seconds)
	if err != nil {
		return nil, fmt.Errorf("management fee: %w", err)
	}
	due, err := domain.ConvertToSharesDue(raw, supply)
	if err != nil {
		return nil, fmt.Errorf("management fee: %w", err)
	}
	if due.IsZero() {
		return nil, nil
	}
	return &domain.Instruction{
		FeeType: TypeManagement,
		Type:    domain.SettlementMintSharesOutstanding,
		Shares:  due,
		Payee:   domain.EscrowHolder(TypeManagement),
	}, nil
}

func (f *ManagementFee) Update(hook domain.Hook, state FundState, _ domain.Payload) error {
	if f.SettlesOn(hook) {
		f.LastSettled = state.Now
	}
	return nil
}

func (f *ManagementFee) PayoutDue(now time.Time) bool {
	return payoutDue(f.PayoutPeriod, &f.LastPayout, now)
}

func (f *ManagementFee) Recipient(fund domain.Fund) string {
	return recipientOr(f.Payee, fund)
}
