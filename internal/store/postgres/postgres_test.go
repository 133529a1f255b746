package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/database"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/store"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"123456789012345678901234567890", "123456789012345678901234567890", false},
		{"1.5", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.String() != tt.want {
			t.Errorf("parseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// TestStoreRoundTrip runs against a real database when TEST_DATABASE_URL is set.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := database.Connect(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := database.RunMigrations(ctx, pool, os.DirFS("../../../cmd/fundfee/migrations")); err != nil {
		t.Fatal(err)
	}

	s := New(pool)
	id := domain.FundID("test-" + time.Now().Format("150405.000000"))
	fund := domain.Fund{
		ID:             id,
		Denomination:   domain.EURMTLAssetID,
		Owner:          "owner",
		SharePrecision: domain.DefaultSharePrecision,
		Holdings:       map[domain.AssetID]sdkmath.Int{domain.EURMTLAssetID: sdkmath.NewInt(1000)},
	}
	if err := s.CreateFund(ctx, fund); err != nil {
		t.Fatal(err)
	}
	defer pool.Exec(ctx, `DELETE FROM funds WHERE id = $1`, id)

	if err := s.CreateFund(ctx, fund); !errors.Is(err, store.ErrFundExists) {
		t.Errorf("duplicate error = %v, want ErrFundExists", err)
	}

	err = s.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Vault().MintShares(ctx, "alice", sdkmath.NewInt(500)); err != nil {
			return err
		}
		if err := tx.PutFeeRecords(ctx, []store.FeeRecord{{Type: "management", Data: []byte{0x80}}}); err != nil {
			return err
		}
		if err := tx.PutProtocolFeeState(ctx, store.ProtocolFeeState{Bps: 50, LastPaid: time.Now()}); err != nil {
			return err
		}
		return tx.AppendSettlement(ctx, store.NewBatch(id, "test", time.Now(), nil))
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Fund(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.SharesSupply.Equal(sdkmath.NewInt(500)) {
		t.Errorf("supply = %s, want 500", got.SharesSupply)
	}

	boom := errors.New("boom")
	err = s.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Vault().MintShares(ctx, "bob", sdkmath.NewInt(1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	balances, err := s.ShareBalances(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := balances["bob"]; ok {
		t.Error("rolled back mint was persisted")
	}
	batches, err := s.Settlements(ctx, id, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Errorf("batches = %d, want 1", len(batches))
	}
}
