package fee

import (
	"fmt"

	"github.com/mtlprog/fundfee/internal/domain"
)

// MinSharesSupplyFee mints a fixed number of shares to the locked holder on the first
// purchase so the supply can never be driven to a dust amount.
type MinSharesSupplyFee struct {
	Shares  Amount `msgpack:"shares"`
	Settled bool   `msgpack:"settled,omitempty"`
}

func (f *MinSharesSupplyFee) Type() domain.FeeType { return TypeMinSharesSupply }

func (f *MinSharesSupplyFee) Validate() error {
	if !f.Shares.Value().IsPositive() {
		return fmt.Errorf("shares must be positive")
	}
	return nil
}

func (f *MinSharesSupplyFee) SettlesOn(hook domain.Hook) bool {
	return hook == domain.HookPostBuyShares && !f.Settled
}

func (f *MinSharesSupplyFee) NeedsGAV(domain.Hook) bool { return false }

// Activate marks funds that already have shares as settled.
func (f *MinSharesSupplyFee) Activate(state FundState) error {
	if state.Fund.SharesSupply.IsPositive() {
		f.Settled = true
	}
	return nil
}

func (f *MinSharesSupplyFee) Settle(hook domain.Hook, _ FundState, _ domain.Payload) (*domain.Instruction, error) {
	if !f.SettlesOn(hook) {
		return nil, nil
	}
	return &domain.Instruction{
		FeeType: TypeMinSharesSupply,
		Type:    domain.SettlementMint,
		Shares:  f.Shares.Value(),
		Payee:   domain.LockedSharesHolder,
	}, nil
}

func (f *MinSharesSupplyFee) Update(hook domain.Hook, _ FundState, _ domain.Payload) error {
	if hook == domain.HookPostBuyShares {
		f.Settled = true
	}
	return nil
}
