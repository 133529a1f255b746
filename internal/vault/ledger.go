package vault

import (
	"context"
	"fmt"
	"maps"

	sdkmath "cosmossdk.io/math"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/domain"
)

// Ledger is an in-memory share ledger. It is not safe for concurrent use; callers
// serialise access per fund.
type Ledger struct {
	supply   sdkmath.Int
	balances map[string]sdkmath.Int
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{supply: sdkmath.ZeroInt(), balances: make(map[string]sdkmath.Int)}
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{supply: l.supply, balances: maps.Clone(l.balances)}
}

// Supply returns the total number of shares.
func (l *Ledger) Supply() sdkmath.Int {
	return l.supply
}

// Balances returns a copy of all non-zero balances.
func (l *Ledger) Balances() map[string]sdkmath.Int {
	return lo.PickBy(l.balances, func(_ string, v sdkmath.Int) bool { return v.IsPositive() })
}

func (l *Ledger) MintShares(_ context.Context, to string, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: mint to empty holder", domain.ErrInvariant)
	}
	supply, err := domain.SafeSum(l.supply, amount)
	if err != nil {
		return err
	}
	balance, err := domain.SafeSum(l.balance(to), amount)
	if err != nil {
		return err
	}
	l.supply = supply
	l.balances[to] = balance
	return nil
}

func (l *Ledger) BurnShares(_ context.Context, from string, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance := l.balance(from)
	if balance.LT(amount) {
		return fmt.Errorf("%w: burn %s from %s holding %s", ErrInsufficientShares, amount, from, balance)
	}
	if l.supply.LT(amount) {
		return fmt.Errorf("%w: burn %s exceeds supply %s", domain.ErrInvariant, amount, l.supply)
	}
	l.balances[from] = balance.Sub(amount)
	l.supply = l.supply.Sub(amount)
	return nil
}

func (l *Ledger) TransferShares(_ context.Context, from, to string, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: transfer to empty holder", domain.ErrInvariant)
	}
	balance := l.balance(from)
	if balance.LT(amount) {
		return fmt.Errorf("%w: transfer %s from %s holding %s", ErrInsufficientShares, amount, from, balance)
	}
	l.balances[from] = balance.Sub(amount)
	l.balances[to] = l.balance(to).Add(amount)
	return nil
}

func (l *Ledger) BalanceOf(_ context.Context, holder string) (sdkmath.Int, error) {
	return l.balance(holder), nil
}

func (l *Ledger) balance(holder string) sdkmath.Int {
	if b, ok := l.balances[holder]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func checkAmount(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: non-positive share amount %v", domain.ErrInvariant, amount)
	}
	return nil
}

// LoadLedger builds a Ledger from stored balances. Supply is their sum.
func LoadLedger(balances map[string]sdkmath.Int) (*Ledger, error) {
	l := NewLedger()
	for holder, b := range balances {
		if b.IsNil() || b.IsNegative() {
			return nil, fmt.Errorf("%w: negative balance for %s", domain.ErrInvariant, holder)
		}
		if b.IsZero() {
			continue
		}
		supply, err := domain.SafeSum(l.supply, b)
		if err != nil {
			return nil, err
		}
		l.supply = supply
		l.balances[holder] = b
	}
	return l, nil
}
