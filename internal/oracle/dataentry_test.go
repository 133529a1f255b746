package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

type mockAccounts struct {
	account horizon.HorizonAccount
	err     error
}

func (m *mockAccounts) FetchAccount(_ context.Context, _ string) (horizon.HorizonAccount, error) {
	return m.account, m.err
}

func TestDataEntrySource(t *testing.T) {
	au := domain.Asset{ID: "AU", Precision: domain.StellarPrecision}
	auRate, err := RateFromPrice("50", au, eurmtl, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	symbols := &stubSource{rates: map[domain.AssetID]domain.Rate{"AU": auRate}}

	accounts := &mockAccounts{account: horizon.HorizonAccount{
		ID: "GFUND",
		Data: map[string]string{
			"MTL_1COST":  "MTIsNQ==", // "12,5"
			"GOLD_1COST": "QVUgMmc=", // "AU 2g"
			"NEG_1COST":  "LTM=",     // "-3"
			"JUNK_1COST": "anVuaw==", // "junk"
			"BTCX_1COST": "QlRD",     // "BTC" with no BTC rate
		},
	}}
	src := NewDataEntrySource(accounts, "GFUND", eurmtl.ID, symbols)

	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{"european decimal", "MTL", "12.5", false},
		{"compound symbol", "GOLD", "100", false},
		{"negative", "NEG", "", true},
		{"garbage", "JUNK", "", true},
		{"symbol without rate", "BTCX", "", true},
		{"missing entry", "NONE", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := domain.Asset{ID: domain.NewAssetID(tt.code, "GISSUER"), Precision: 7}
			r, err := src.FetchRate(context.Background(), base, eurmtl)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got rate %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := PriceOf(r, base, eurmtl); got != tt.want {
				t.Errorf("price = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDataEntryMissingIsNoPrice(t *testing.T) {
	src := NewDataEntrySource(&mockAccounts{account: horizon.HorizonAccount{ID: "GFUND"}}, "GFUND", eurmtl.ID, nil)
	_, err := src.FetchRate(context.Background(), mtl, eurmtl)
	if !errors.Is(err, ErrNoPrice) {
		t.Errorf("error = %v, want ErrNoPrice", err)
	}
}

func TestNormalizeEuropeanDecimal(t *testing.T) {
	tests := map[string]string{
		"0,8":      "0.8",
		"1.234,56": "1234.56",
		"1.5":      "1.5",
		"42":       "42",
	}
	for in, want := range tests {
		if got := normalizeEuropeanDecimal(in); got != want {
			t.Errorf("normalizeEuropeanDecimal(%q) = %q, want %q", in, got, want)
		}
	}
}
