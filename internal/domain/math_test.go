package domain

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestConvertToSharesDue(t *testing.T) {
	tests := []struct {
		name   string
		raw    int64
		supply int64
		want   int64
	}{
		{"one percent of a million", 10_000, 1_000_000, 10_101},
		{"zero supply", 10, 0, 0},
		{"zero raw", 0, 1_000_000, 0},
		{"degenerate full supply", 500, 500, 1},
		{"half supply", 500, 1000, 1000},
		{"protocol fee scenario", 10_000, 2_000_000, 10_050},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertToSharesDue(sdkmath.NewInt(tt.raw), sdkmath.NewInt(tt.supply))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(sdkmath.NewInt(tt.want)) {
				t.Errorf("ConvertToSharesDue(%d, %d) = %s, want %d", tt.raw, tt.supply, got, tt.want)
			}
		})
	}
}

func TestConvertToSharesDueRawExceedsSupply(t *testing.T) {
	_, err := ConvertToSharesDue(sdkmath.NewInt(11), sdkmath.NewInt(10))
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", err)
	}
}

func TestConvertToSharesDueNegative(t *testing.T) {
	_, err := ConvertToSharesDue(sdkmath.NewInt(-1), sdkmath.NewInt(10))
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", err)
	}
}

// d*(s-r) <= r*s < (d+1)*(s-r) is the floored form of d/(s+d) == r/s.
func TestConvertToSharesDueAntiDilutionLaw(t *testing.T) {
	supplies := []int64{2, 7, 1000, 999_983, 1_000_000, 123_456_789_012}
	for _, s := range supplies {
		for _, r := range []int64{1, s / 3, s / 2, s - 1} {
			if r <= 0 || r >= s {
				continue
			}
			S, R := sdkmath.NewInt(s), sdkmath.NewInt(r)
			d, err := ConvertToSharesDue(R, S)
			if err != nil {
				t.Fatalf("s=%d r=%d: unexpected error: %v", s, r, err)
			}
			lhs := d.Mul(S.Sub(R))
			mid := R.Mul(S)
			rhs := d.AddRaw(1).Mul(S.Sub(R))
			if lhs.GT(mid) || !mid.LT(rhs) {
				t.Errorf("s=%d r=%d d=%s violates the anti-dilution bound", s, r, d)
			}
			// d*s == r*(s+d) within one unit of rounding on d.
			diff := d.Mul(S).Sub(R.Mul(S.Add(d))).Abs()
			if diff.GT(S) {
				t.Errorf("s=%d r=%d d=%s: |d*s - r*(s+d)| = %s exceeds s", s, r, d, diff)
			}
		}
	}
}

func TestTimeWeightedSharesDue(t *testing.T) {
	tests := []struct {
		name    string
		supply  int64
		bps     uint32
		seconds int64
		want    int64
	}{
		{"full year at 50 bps", 2_000_000, 50, SecondsInYear, 10_000},
		{"zero seconds", 2_000_000, 50, 0, 0},
		{"zero supply", 0, 50, SecondsInYear, 0},
		{"zero rate", 2_000_000, 0, SecondsInYear, 0},
		{"half year at 200 bps", 1_000_000, 200, SecondsInYear / 2, 10_000},
		{"one day floors", 1_000_000, 100, 86_400, 27},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TimeWeightedSharesDue(sdkmath.NewInt(tt.supply), tt.bps, tt.seconds)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(sdkmath.NewInt(tt.want)) {
				t.Errorf("got %s, want %d", got, tt.want)
			}
		})
	}
}

func TestBpsOf(t *testing.T) {
	got, err := BpsOf(sdkmath.NewInt(1000), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(10)) {
		t.Errorf("BpsOf(1000, 100) = %s, want 10", got)
	}

	got, err = BpsOf(sdkmath.NewInt(99), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("BpsOf(99, 100) = %s, want 0 (floor)", got)
	}
}

func TestMulDivErrors(t *testing.T) {
	if _, err := MulDivFloor(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt()); !errors.Is(err, ErrInvariant) {
		t.Errorf("division by zero: error = %v, want ErrInvariant", err)
	}
	if _, err := MulDivFloor(sdkmath.NewInt(-1), sdkmath.NewInt(1), sdkmath.NewInt(1)); !errors.Is(err, ErrInvariant) {
		t.Errorf("negative operand: error = %v, want ErrInvariant", err)
	}

	huge := Pow10(76)
	if _, err := MulDiv([]sdkmath.Int{huge, huge}, []sdkmath.Int{sdkmath.OneInt()}); !errors.Is(err, ErrInvariant) {
		t.Errorf("overflow: error = %v, want ErrInvariant", err)
	}
	// Wide intermediates are fine as long as the result fits.
	got, err := MulDiv([]sdkmath.Int{huge, huge}, []sdkmath.Int{huge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(huge) {
		t.Errorf("got %s, want 10^76", got)
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		precision uint8
		want      string
	}{
		{"integer", 10_000_000, 7, "1"},
		{"fraction", 12_345_000, 7, "1.2345"},
		{"one stroop", 1, 7, "0.0000001"},
		{"zero precision", 42, 0, "42"},
		{"zero", 0, 7, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUnits(sdkmath.NewInt(tt.amount), tt.precision); got != tt.want {
				t.Errorf("FormatUnits(%d, %d) = %q, want %q", tt.amount, tt.precision, got, tt.want)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		precision uint8
		want      int64
		wantErr   bool
	}{
		{"integer", "1", 7, 10_000_000, false},
		{"fraction", "0.5", 7, 5_000_000, false},
		{"excess digits floored", "0.00000019", 7, 1, false},
		{"negative", "-1", 7, 0, true},
		{"garbage", "abc", 7, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.input, tt.precision)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(sdkmath.NewInt(tt.want)) {
				t.Errorf("ParseUnits(%q) = %s, want %d", tt.input, got, tt.want)
			}
		})
	}
}
