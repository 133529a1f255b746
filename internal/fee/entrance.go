package fee

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
)

// Settlement modes for entrance and exit fees.
const (
	ModeBurn   = "burn"
	ModeDirect = "direct"
)

// transactionFee is the shared rule of entrance and exit fees: a flat rate on the shares
// moving in the transaction, either burned from the investor or paid to the recipient.
type transactionFee struct {
	RateBps int64  `msgpack:"rate_bps"`
	Mode    string `msgpack:"mode,omitempty"`
	Payee   string `msgpack:"recipient,omitempty"`
}

func (f *transactionFee) validate() error {
	if err := validateBps(f.RateBps); err != nil {
		return err
	}
	switch f.Mode {
	case "":
		f.Mode = ModeBurn
	case ModeBurn, ModeDirect:
	default:
		return fmt.Errorf("unknown mode %q", f.Mode)
	}
	return nil
}

func (f *transactionFee) instruction(feeType domain.FeeType, fund domain.Fund, investor string, shares sdkmath.Int) (*domain.Instruction, error) {
	due, err := domain.BpsOf(shares, uint32(f.RateBps))
	if err != nil {
		return nil, fmt.Errorf("%s fee: %w", feeType, err)
	}
	if due.IsZero() {
		return nil, nil
	}
	if investor == "" {
		return nil, fmt.Errorf("%s fee: %w: investor is not set", feeType, domain.ErrInvariant)
	}

	if f.Mode == ModeDirect {
		return &domain.Instruction{
			FeeType: feeType,
			Type:    domain.SettlementDirect,
			Shares:  due,
			Payer:   investor,
			Payee:   recipientOr(f.Payee, fund),
		}, nil
	}
	return &domain.Instruction{
		FeeType: feeType,
		Type:    domain.SettlementBurn,
		Shares:  due,
		Payer:   investor,
	}, nil
}

// EntranceFee charges a rate on newly bought shares.
type EntranceFee struct {
	transactionFee `msgpack:",inline"`
}

func (f *EntranceFee) Type() domain.FeeType { return TypeEntrance }

func (f *EntranceFee) Validate() error { return f.validate() }

func (f *EntranceFee) SettlesOn(hook domain.Hook) bool { return hook == domain.HookPostBuyShares }

func (f *EntranceFee) NeedsGAV(domain.Hook) bool { return false }

func (f *EntranceFee) Activate(FundState) error { return nil }

func (f *EntranceFee) Settle(hook domain.Hook, state FundState, payload domain.Payload) (*domain.Instruction, error) {
	if hook != domain.HookPostBuyShares {
		return nil, nil
	}
	return f.instruction(TypeEntrance, state.Fund, payload.Investor, payload.SharesBought)
}

func (f *EntranceFee) Update(domain.Hook, FundState, domain.Payload) error { return nil }

// ExitFee charges a rate on shares being redeemed.
type ExitFee struct {
	transactionFee `msgpack:",inline"`
}

func (f *ExitFee) Type() domain.FeeType { return TypeExit }

func (f *ExitFee) Validate() error { return f.validate() }

func (f *ExitFee) SettlesOn(hook domain.Hook) bool { return hook == domain.HookPreRedeemShares }

func (f *ExitFee) NeedsGAV(domain.Hook) bool { return false }

func (f *ExitFee) Activate(FundState) error { return nil }

func (f *ExitFee) Settle(hook domain.Hook, state FundState, payload domain.Payload) (*domain.Instruction, error) {
	if hook != domain.HookPreRedeemShares {
		return nil, nil
	}
	return f.instruction(TypeExit, state.Fund, payload.Investor, payload.SharesToRedeem)
}

func (f *ExitFee) Update(domain.Hook, FundState, domain.Payload) error { return nil }
