package protocolfee

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/store/memory"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const year = domain.SecondsInYear * time.Second

func TestCalcSharesDueZeroCases(t *testing.T) {
	tests := []struct {
		name    string
		supply  int64
		bps     uint32
		seconds int64
	}{
		{"empty supply", 0, 50, domain.SecondsInYear},
		{"no time", 2_000_000, 50, 0},
		{"max rate no time", 2_000_000, domain.MaxBps, 0},
		{"zero rate", 2_000_000, 0, domain.SecondsInYear},
		{"negative time", 2_000_000, 50, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcSharesDue(sdkmath.NewInt(tt.supply), tt.bps, tt.seconds)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.IsZero() {
				t.Errorf("CalcSharesDue = %s, want 0", got)
			}
		})
	}
}

// Scenario: 50 bps on 2,000,000 shares for one year is 10,000 raw, 10,050 after
// the anti-dilution conversion.
func TestCalcSharesDueOneYear(t *testing.T) {
	got, err := CalcSharesDue(sdkmath.NewInt(2_000_000), 50, domain.SecondsInYear)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(sdkmath.NewInt(10_050)) {
		t.Errorf("CalcSharesDue = %s, want 10050", got)
	}
}

func newTracker(t *testing.T, shares int64) (*Tracker, *memory.Store, *time.Time) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	err := s.CreateFund(ctx, domain.Fund{ID: "f1", Denomination: domain.EURMTLAssetID, Owner: "GOWNER"})
	if err != nil {
		t.Fatal(err)
	}
	err = s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		return tx.Vault().MintShares(ctx, "alice", sdkmath.NewInt(shares))
	})
	if err != nil {
		t.Fatal(err)
	}

	now := t0
	tr := New(s, "GPROTOCOL")
	tr.now = func() time.Time { return now }
	return tr, s, &now
}

func TestSettleMintsAndAdvances(t *testing.T) {
	ctx := context.Background()
	tr, s, now := newTracker(t, 2_000_000)

	if _, err := tr.SetFeeBpsForFund(ctx, "f1", 50); err != nil {
		t.Fatal(err)
	}

	*now = t0.Add(year)
	preview, err := tr.Preview(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := tr.Settle(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Shares.Equal(sdkmath.NewInt(10_050)) || !preview.Equal(res.Shares) {
		t.Errorf("shares = %s, preview = %s, want 10050", res.Shares, preview)
	}
	if res.BatchID == nil {
		t.Error("expected a settlement batch")
	}

	balances, _ := s.ShareBalances(ctx, "f1")
	if !balances["GPROTOCOL"].Equal(sdkmath.NewInt(10_050)) {
		t.Errorf("recipient = %s, want 10050", balances["GPROTOCOL"])
	}

	// Settling again at the same instant accrues nothing but still records lastPaid.
	res, err = tr.Settle(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Shares.IsZero() || res.Seconds != 0 {
		t.Errorf("second settle = %+v, want nothing due", res)
	}
}

func TestSettleUnconfiguredFund(t *testing.T) {
	ctx := context.Background()
	tr, s, now := newTracker(t, 1_000)
	*now = t0.Add(year)

	res, err := tr.Settle(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Shares.IsZero() {
		t.Errorf("shares = %s, want 0", res.Shares)
	}
	f, _ := s.Fund(ctx, "f1")
	if !f.SharesSupply.Equal(sdkmath.NewInt(1_000)) {
		t.Errorf("supply = %s, want 1000", f.SharesSupply)
	}
}

func TestSetFeeBpsSettlesOldRate(t *testing.T) {
	ctx := context.Background()
	tr, _, now := newTracker(t, 2_000_000)

	if _, err := tr.SetFeeBpsForFund(ctx, "f1", 50); err != nil {
		t.Fatal(err)
	}
	*now = t0.Add(year)
	res, err := tr.SetFeeBpsForFund(ctx, "f1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Shares.Equal(sdkmath.NewInt(10_050)) {
		t.Errorf("settled at old rate = %s, want 10050", res.Shares)
	}

	if _, err := tr.SetFeeBpsForFund(ctx, "f1", domain.MaxBps+1); !errors.Is(err, ErrInvalidBps) {
		t.Errorf("error = %v, want ErrInvalidBps", err)
	}
}

func TestSettleWithoutRecipientFails(t *testing.T) {
	ctx := context.Background()
	tr, s, now := newTracker(t, 2_000_000)
	tr.recipient = ""

	if _, err := tr.SetFeeBpsForFund(ctx, "f1", 50); err != nil {
		t.Fatal(err)
	}
	*now = t0.Add(year)
	if _, err := tr.Settle(ctx, "f1"); !errors.Is(err, domain.ErrInvariant) {
		t.Fatalf("error = %v, want ErrInvariant", err)
	}
	f, _ := s.Fund(ctx, "f1")
	if !f.SharesSupply.Equal(sdkmath.NewInt(2_000_000)) {
		t.Errorf("supply = %s, want unchanged", f.SharesSupply)
	}
}

func TestSettleRejectsReentrancy(t *testing.T) {
	tr, _, _ := newTracker(t, 1_000)
	release, _ := tr.active.Enter("f1")
	defer release()

	if _, err := tr.Settle(context.Background(), "f1"); !errors.Is(err, ErrReentrant) {
		t.Errorf("error = %v, want ErrReentrant", err)
	}
}

func TestSettleTxSettlesBeforeSupplyChange(t *testing.T) {
	ctx := context.Background()
	tr, s, now := newTracker(t, 1_000_000)
	if _, err := tr.SetFeeBpsForFund(ctx, "f1", 100); err != nil {
		t.Fatal(err)
	}
	*now = t0.Add(year)

	var res Settlement
	err := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		var err error
		if res, err = tr.SettleTx(ctx, tx); err != nil {
			return err
		}
		return tx.Vault().MintShares(ctx, "bob", sdkmath.NewInt(99_000_000))
	})
	if err != nil {
		t.Fatal(err)
	}
	// 100 bps on 1,000,000 shares: 10,000 raw, 10,101 after conversion.
	if !res.Shares.Equal(sdkmath.NewInt(10_101)) {
		t.Errorf("shares = %s, want 10101", res.Shares)
	}

	res, err = tr.Settle(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Shares.IsZero() {
		t.Errorf("settle after purchase = %s, want 0", res.Shares)
	}
}

func TestSettleTxRejectsReentry(t *testing.T) {
	ctx := context.Background()
	tr, s, _ := newTracker(t, 1_000)

	release, _ := tr.active.Enter("f1")
	defer release()
	err := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		_, err := tr.SettleTx(ctx, tx)
		return err
	})
	if !errors.Is(err, ErrReentrant) {
		t.Errorf("error = %v, want ErrReentrant", err)
	}
}
