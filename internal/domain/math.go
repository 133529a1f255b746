package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

const (
	// SecondsInYear is a Julian year (365.25 days).
	SecondsInYear = 31_557_600
	// MaxBps is 100% expressed in basis points.
	MaxBps = 10_000
)

// ErrInvariant marks arithmetic or ledger states that must abort the enclosing operation.
var ErrInvariant = errors.New("invariant violation")

// Pow10 returns 10^n.
func Pow10(n uint8) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}

// MulDiv returns floor(product(nums) / product(dens)). Intermediate products are exact;
// only the result must fit into sdkmath.Int. All operands must be non-negative and the
// denominator product positive.
func MulDiv(nums []sdkmath.Int, dens []sdkmath.Int) (sdkmath.Int, error) {
	num := big.NewInt(1)
	for _, n := range nums {
		if n.IsNil() || n.IsNegative() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: negative or nil operand", ErrInvariant)
		}
		num.Mul(num, n.BigInt())
	}
	den := big.NewInt(1)
	for _, d := range dens {
		if d.IsNil() || d.IsNegative() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: negative or nil divisor", ErrInvariant)
		}
		den.Mul(den, d.BigInt())
	}
	if den.Sign() == 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: division by zero", ErrInvariant)
	}

	q := num.Quo(num, den)
	if q.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: result overflows %d bits", ErrInvariant, sdkmath.MaxBitLen)
	}
	return sdkmath.NewIntFromBigInt(q), nil
}

// MulDivFloor returns floor(a * b / c).
func MulDivFloor(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	return MulDiv([]sdkmath.Int{a, b}, []sdkmath.Int{c})
}

// BpsOf returns floor(amount * bps / 10000).
func BpsOf(amount sdkmath.Int, bps uint32) (sdkmath.Int, error) {
	return MulDiv(
		[]sdkmath.Int{amount, sdkmath.NewIntFromUint64(uint64(bps))},
		[]sdkmath.Int{sdkmath.NewInt(MaxBps)},
	)
}

// TimeWeightedSharesDue returns floor(supply * bps * seconds / (SecondsInYear * 10000)),
// the fee owed as a fraction of the current supply before anti-dilution.
func TimeWeightedSharesDue(supply sdkmath.Int, bps uint32, seconds int64) (sdkmath.Int, error) {
	if supply.IsZero() || seconds <= 0 || bps == 0 {
		return sdkmath.ZeroInt(), nil
	}
	return MulDiv(
		[]sdkmath.Int{supply, sdkmath.NewIntFromUint64(uint64(bps)), sdkmath.NewInt(seconds)},
		[]sdkmath.Int{sdkmath.NewInt(SecondsInYear), sdkmath.NewInt(MaxBps)},
	)
}

// ConvertToSharesDue turns a fee expressed as a fraction of the current supply into the
// number of shares to mint so that the recipient ends up owning exactly rawSharesDue/supply
// of the post-mint supply: floor(raw * supply / (supply - raw)).
//
// raw == supply cannot be solved and yields 1 share; raw > supply is an invariant violation.
func ConvertToSharesDue(rawSharesDue, supply sdkmath.Int) (sdkmath.Int, error) {
	if rawSharesDue.IsNil() || supply.IsNil() || rawSharesDue.IsNegative() || supply.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: negative shares", ErrInvariant)
	}
	if supply.IsZero() || rawSharesDue.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	switch {
	case rawSharesDue.GT(supply):
		return sdkmath.ZeroInt(), fmt.Errorf("%w: raw shares due %s exceed supply %s", ErrInvariant, rawSharesDue, supply)
	case rawSharesDue.Equal(supply):
		return sdkmath.OneInt(), nil
	}
	return MulDivFloor(rawSharesDue, supply, supply.Sub(rawSharesDue))
}

// FormatUnits renders an integer amount with the given precision, stripping trailing zeros.
func FormatUnits(amount sdkmath.Int, precision uint8) string {
	if amount.IsNil() {
		return "0"
	}
	s := decimal.NewFromBigInt(amount.BigInt(), -int32(precision)).StringFixed(int32(precision))
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// ParseUnits parses a decimal string into the smallest denomination of an asset with the
// given precision. Excess fractional digits are floored.
func ParseUnits(value string, precision uint8) (sdkmath.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("parsing amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("negative amount %q", value)
	}
	return sdkmath.NewIntFromBigInt(d.Shift(int32(precision)).Floor().BigInt()), nil
}

// SafeSum returns a + b, failing instead of panicking when the sum leaves the 256-bit range.
func SafeSum(a, b sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nil operand", ErrInvariant)
	}
	s := new(big.Int).Add(a.BigInt(), b.BigInt())
	if s.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: sum overflows %d bits", ErrInvariant, sdkmath.MaxBitLen)
	}
	return sdkmath.NewIntFromBigInt(s), nil
}
