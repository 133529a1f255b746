package domain

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Hook is a named point in the fund lifecycle at which fees are evaluated.
type Hook int

const (
	HookContinuous Hook = iota + 1
	HookPreBuyShares
	HookPostBuyShares
	HookPreRedeemShares
)

var hookNames = map[Hook]string{
	HookContinuous:      "continuous",
	HookPreBuyShares:    "pre_buy_shares",
	HookPostBuyShares:   "post_buy_shares",
	HookPreRedeemShares: "pre_redeem_shares",
}

func (h Hook) String() string {
	if name, ok := hookNames[h]; ok {
		return name
	}
	return fmt.Sprintf("hook(%d)", int(h))
}

// ParseHook parses the string form produced by Hook.String.
func ParseHook(s string) (Hook, error) {
	for h, name := range hookNames {
		if name == s {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown hook %q", s)
}

// FeeType identifies a fee implementation.
type FeeType string

// SettlementType is the mechanism by which a computed fee is paid.
type SettlementType int

const (
	SettlementNone SettlementType = iota
	SettlementDirect
	SettlementMint
	SettlementBurn
	SettlementMintSharesOutstanding
	SettlementBurnSharesOutstanding
)

var settlementNames = map[SettlementType]string{
	SettlementNone:                  "none",
	SettlementDirect:                "direct",
	SettlementMint:                  "mint",
	SettlementBurn:                  "burn",
	SettlementMintSharesOutstanding: "mint_shares_outstanding",
	SettlementBurnSharesOutstanding: "burn_shares_outstanding",
}

func (t SettlementType) String() string {
	if name, ok := settlementNames[t]; ok {
		return name
	}
	return fmt.Sprintf("settlement(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t SettlementType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SettlementType) UnmarshalText(b []byte) error {
	for st, name := range settlementNames {
		if name == string(b) {
			*t = st
			return nil
		}
	}
	return fmt.Errorf("unknown settlement type %q", string(b))
}

// Instruction is produced by a fee for one hook invocation and consumed by the same dispatch.
type Instruction struct {
	FeeType FeeType        `json:"feeType"`
	Type    SettlementType `json:"type"`
	Shares  sdkmath.Int    `json:"shares"`
	Payer   string         `json:"payer,omitempty"`
	Payee   string         `json:"payee,omitempty"`
}

// Payload carries hook-specific data. Only the fields relevant to the hook are set.
type Payload struct {
	Investor         string      `json:"investor,omitempty"`
	InvestmentAmount sdkmath.Int `json:"investmentAmount"`
	SharesBought     sdkmath.Int `json:"sharesBought"`
	SharesToRedeem   sdkmath.Int `json:"sharesToRedeem"`
}

// Normalize replaces nil amounts with zero.
func (p Payload) Normalize() Payload {
	if p.InvestmentAmount.IsNil() {
		p.InvestmentAmount = sdkmath.ZeroInt()
	}
	if p.SharesBought.IsNil() {
		p.SharesBought = sdkmath.ZeroInt()
	}
	if p.SharesToRedeem.IsNil() {
		p.SharesToRedeem = sdkmath.ZeroInt()
	}
	return p
}
