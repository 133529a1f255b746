package domain

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
)

func TestNewAssetID(t *testing.T) {
	tests := []struct {
		name         string
		code, issuer string
		want         AssetID
	}{
		{"XLM is native", "XLM", "", NativeAssetID},
		{"native alias", "native", "", NativeAssetID},
		{"credit", "MTL", "GISSUER", "MTL:GISSUER"},
		{"synthetic", "BTC", "", "BTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewAssetID(tt.code, tt.issuer); got != tt.want {
				t.Errorf("NewAssetID(%q, %q) = %q, want %q", tt.code, tt.issuer, got, tt.want)
			}
		})
	}
}

func TestAssetIDParts(t *testing.T) {
	id := NewAssetID("EURMTL", IssuerAddress)
	if id.Code() != "EURMTL" {
		t.Errorf("Code() = %q, want EURMTL", id.Code())
	}
	if id.Issuer() != IssuerAddress {
		t.Errorf("Issuer() = %q, want %q", id.Issuer(), IssuerAddress)
	}
	if NativeAssetID.Code() != "XLM" {
		t.Errorf("native Code() = %q, want XLM", NativeAssetID.Code())
	}
	if NativeAssetID.Issuer() != "" {
		t.Errorf("native Issuer() = %q, want empty", NativeAssetID.Issuer())
	}
}

func TestAssetUnit(t *testing.T) {
	a := Asset{ID: "X", Precision: 7}
	if !a.Unit().Equal(sdkmath.NewInt(10_000_000)) {
		t.Errorf("Unit() = %s, want 10000000", a.Unit())
	}
}

func TestRateValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		rate    Rate
		wantErr bool
	}{
		{"valid", NewRate(5, 10, now), false},
		{"zero quote is allowed", NewRate(0, 10, now), false},
		{"zero base", NewRate(5, 0, now), true},
		{"negative quote", NewRate(-5, 10, now), true},
		{"unset", Rate{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rate.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateIsStale(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	threshold := time.Hour

	if NewRate(1, 1, now.Add(-30*time.Minute)).IsStale(now, threshold) {
		t.Error("30m old rate should be fresh")
	}
	if NewRate(1, 1, now.Add(-time.Hour)).IsStale(now, threshold) {
		t.Error("rate exactly at the threshold should be fresh")
	}
	if !NewRate(1, 1, now.Add(-61*time.Minute)).IsStale(now, threshold) {
		t.Error("61m old rate should be stale")
	}
	if !(Rate{Quote: sdkmath.OneInt(), Base: sdkmath.OneInt()}).IsStale(now, threshold) {
		t.Error("rate without timestamp should be stale")
	}
}

func TestHookRoundTrip(t *testing.T) {
	for _, h := range []Hook{HookContinuous, HookPreBuyShares, HookPostBuyShares, HookPreRedeemShares} {
		got, err := ParseHook(h.String())
		if err != nil {
			t.Fatalf("ParseHook(%q): %v", h.String(), err)
		}
		if got != h {
			t.Errorf("ParseHook(%q) = %v, want %v", h.String(), got, h)
		}
	}
	if _, err := ParseHook("bogus"); err == nil {
		t.Error("expected error for unknown hook")
	}
}
