package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/store"
)

func testFund(id domain.FundID) domain.Fund {
	return domain.Fund{
		ID:             id,
		Denomination:   domain.EURMTLAssetID,
		Owner:          "owner",
		SharePrecision: domain.DefaultSharePrecision,
		Holdings:       map[domain.AssetID]sdkmath.Int{domain.EURMTLAssetID: sdkmath.NewInt(1000)},
	}
}

func TestCreateFund(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateFund(ctx, testFund("f1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateFund(ctx, testFund("f1")); !errors.Is(err, store.ErrFundExists) {
		t.Errorf("duplicate error = %v, want ErrFundExists", err)
	}
	if err := s.CreateFund(ctx, domain.Fund{ID: "bad"}); err == nil {
		t.Error("expected validation error")
	}

	f, err := s.Fund(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !f.SharesSupply.IsZero() {
		t.Errorf("supply = %s, want 0", f.SharesSupply)
	}
	if _, err := s.Fund(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestWithinFundCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateFund(ctx, testFund("f1")); err != nil {
		t.Fatal(err)
	}

	err := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		if err := tx.Vault().MintShares(ctx, "alice", sdkmath.NewInt(500)); err != nil {
			return err
		}
		f, err := tx.Fund(ctx)
		if err != nil {
			return err
		}
		if !f.SharesSupply.Equal(sdkmath.NewInt(500)) {
			t.Errorf("in-tx supply = %s, want 500", f.SharesSupply)
		}
		if err := tx.PutFeeRecords(ctx, []store.FeeRecord{{Type: "management", Data: []byte{0x80}}}); err != nil {
			return err
		}
		if err := tx.PutProtocolFeeState(ctx, store.ProtocolFeeState{Bps: 50}); err != nil {
			return err
		}
		return tx.AppendSettlement(ctx, store.NewBatch("f1", "continuous", time.Now(), nil))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, _ := s.Fund(ctx, "f1")
	if !f.SharesSupply.Equal(sdkmath.NewInt(500)) {
		t.Errorf("supply = %s, want 500", f.SharesSupply)
	}
	balances, _ := s.ShareBalances(ctx, "f1")
	if !balances["alice"].Equal(sdkmath.NewInt(500)) {
		t.Errorf("alice = %s, want 500", balances["alice"])
	}
	batches, _ := s.Settlements(ctx, "f1", 10)
	if len(batches) != 1 {
		t.Errorf("batches = %d, want 1", len(batches))
	}

	_ = s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		recs, _ := tx.FeeRecords(ctx)
		if len(recs) != 1 || recs[0].Type != "management" {
			t.Errorf("records = %v", recs)
		}
		st, _ := tx.ProtocolFeeState(ctx)
		if st.Bps != 50 {
			t.Errorf("bps = %d, want 50", st.Bps)
		}
		return nil
	})
}

func TestWithinFundRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateFund(ctx, testFund("f1")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		if err := tx.Vault().MintShares(ctx, "alice", sdkmath.NewInt(500)); err != nil {
			return err
		}
		if err := tx.SetHoldings(ctx, nil); err != nil {
			return err
		}
		_ = tx.AppendSettlement(ctx, store.NewBatch("f1", "continuous", time.Now(), nil))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}

	f, _ := s.Fund(ctx, "f1")
	if !f.SharesSupply.IsZero() {
		t.Errorf("supply = %s, want 0 after rollback", f.SharesSupply)
	}
	if !f.Holdings[domain.EURMTLAssetID].Equal(sdkmath.NewInt(1000)) {
		t.Errorf("holdings changed after rollback: %v", f.Holdings)
	}
	batches, _ := s.Settlements(ctx, "f1", 10)
	if len(batches) != 0 {
		t.Errorf("batches = %d, want 0", len(batches))
	}
}

func TestWithinFundConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateFund(ctx, testFund("f1")); err != nil {
		t.Fatal(err)
	}

	err := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
		inner := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
			return tx.Vault().MintShares(ctx, "bob", sdkmath.NewInt(1))
		})
		if inner != nil {
			t.Fatalf("inner transaction failed: %v", inner)
		}
		return tx.Vault().MintShares(ctx, "alice", sdkmath.NewInt(1))
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
	balances, _ := s.ShareBalances(ctx, "f1")
	if _, ok := balances["alice"]; ok {
		t.Error("conflicting transaction must not commit")
	}
}

func TestSettlementsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateFund(ctx, testFund("f1")); err != nil {
		t.Fatal(err)
	}
	for _, src := range []string{"first", "second", "third"} {
		err := s.WithinFund(ctx, "f1", func(ctx context.Context, tx store.Tx) error {
			return tx.AppendSettlement(ctx, store.NewBatch("f1", src, time.Now(), nil))
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	batches, err := s.Settlements(ctx, "f1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 || batches[0].Source != "third" || batches[1].Source != "second" {
		t.Errorf("batches = %+v", batches)
	}
}

func TestAssetsFeedsRates(t *testing.T) {
	ctx := context.Background()
	s := New()

	lp := store.AssetRecord{
		Asset:      domain.Asset{ID: "pool:abc", Precision: 7},
		Kind:       classifier.Derivative,
		Components: []classifier.Component{{Asset: "A", AmountPerUnit: sdkmath.NewInt(10)}},
	}
	if err := s.SaveAsset(ctx, store.AssetRecord{Asset: domain.Asset{ID: "A", Precision: 7}, Kind: classifier.Primitive}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAsset(ctx, lp); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAsset(ctx, store.AssetRecord{Asset: domain.Asset{ID: "A", Precision: 2}, Kind: classifier.Primitive}); err == nil {
		t.Error("expected precision change error")
	}

	reg := classifier.NewRegistry()
	n, err := store.LoadRegistry(ctx, s, reg)
	if err != nil || n != 2 {
		t.Fatalf("LoadRegistry = %d, %v", n, err)
	}
	if kind, _, _ := reg.Classify("pool:abc"); kind != classifier.Derivative {
		t.Errorf("kind = %v, want derivative", kind)
	}

	feed := oracle.Feed{Base: domain.Asset{ID: "A"}, Quote: domain.Asset{ID: "B"}, Source: "horizon"}
	_ = s.SaveFeed(ctx, feed)
	feed.Source = "coingecko"
	_ = s.SaveFeed(ctx, feed)
	feeds, _ := s.LoadFeeds(ctx)
	if len(feeds) != 1 || feeds[0].Source != "coingecko" {
		t.Errorf("feeds = %v, want single coingecko feed", feeds)
	}

	now := time.Now()
	_ = s.SaveRates(ctx, []oracle.Quote{{Base: "A", Quote: "B", Rate: domain.NewRate(1, 2, now)}})
	_ = s.SaveRates(ctx, []oracle.Quote{{Base: "A", Quote: "B", Rate: domain.NewRate(3, 2, now)}})
	rates, _ := s.LoadRates(ctx)
	if len(rates) != 1 || !rates[0].Rate.Quote.Equal(sdkmath.NewInt(3)) {
		t.Errorf("rates = %v, want latest rate only", rates)
	}
}
