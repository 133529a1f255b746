// Package store defines fund persistence. Every mutation of fee state, protocol fee
// state and share balances happens inside WithinFund, which commits all of it or none.
package store

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/vault"
)

var (
	// ErrNotFound indicates that the requested fund does not exist.
	ErrNotFound = errors.New("fund not found")
	// ErrFundExists is returned by CreateFund for a duplicate fund id.
	ErrFundExists = errors.New("fund already exists")
	// ErrConflict is returned when a concurrent transaction committed first.
	ErrConflict = errors.New("concurrent fund update")
)

// FeeRecord is the persisted form of one fee attached to a fund. Records are kept in
// attachment order.
type FeeRecord struct {
	Type domain.FeeType
	Data []byte
}

// ProtocolFeeState is the per-fund protocol fee configuration and accrual clock.
type ProtocolFeeState struct {
	Bps      uint32    `json:"bps"`
	LastPaid time.Time `json:"lastPaid"`
}

// Batch is the audit record of one settlement: every instruction issued by a single
// dispatch, protocol fee settlement or payout.
type Batch struct {
	ID           uuid.UUID            `json:"id"`
	FundID       domain.FundID        `json:"fundId"`
	Source       string               `json:"source"`
	CreatedAt    time.Time            `json:"createdAt"`
	Instructions []domain.Instruction `json:"instructions"`
}

// NewBatch creates a Batch with a fresh id.
func NewBatch(fundID domain.FundID, source string, at time.Time, instructions []domain.Instruction) Batch {
	return Batch{
		ID:           uuid.New(),
		FundID:       fundID,
		Source:       source,
		CreatedAt:    at,
		Instructions: instructions,
	}
}

// AssetRecord is the persisted classification of one asset.
type AssetRecord struct {
	Asset      domain.Asset           `json:"asset"`
	Kind       classifier.Kind        `json:"kind"`
	Components []classifier.Component `json:"components,omitempty"`
}

// Tx is the view of one fund inside WithinFund.
type Tx interface {
	// Fund returns the fund with SharesSupply reflecting the ledger as mutated so far.
	Fund(ctx context.Context) (domain.Fund, error)
	// Vault returns the fund's share ledger.
	Vault() vault.Vault
	SetHoldings(ctx context.Context, holdings map[domain.AssetID]sdkmath.Int) error
	FeeRecords(ctx context.Context) ([]FeeRecord, error)
	PutFeeRecords(ctx context.Context, records []FeeRecord) error
	ProtocolFeeState(ctx context.Context) (ProtocolFeeState, error)
	PutProtocolFeeState(ctx context.Context, state ProtocolFeeState) error
	AppendSettlement(ctx context.Context, batch Batch) error
}

// FundStore persists funds.
type FundStore interface {
	CreateFund(ctx context.Context, fund domain.Fund) error
	Fund(ctx context.Context, id domain.FundID) (domain.Fund, error)
	ListFunds(ctx context.Context) ([]domain.Fund, error)
	ShareBalances(ctx context.Context, id domain.FundID) (map[string]sdkmath.Int, error)
	Settlements(ctx context.Context, id domain.FundID, limit int) ([]Batch, error)
	// WithinFund runs fn against one fund atomically. If fn returns an error nothing
	// it did is kept.
	WithinFund(ctx context.Context, id domain.FundID, fn func(ctx context.Context, tx Tx) error) error
}

// AssetStore persists the asset classification table.
type AssetStore interface {
	SaveAsset(ctx context.Context, rec AssetRecord) error
	LoadAssets(ctx context.Context) ([]AssetRecord, error)
}

// FeedStore persists rate feed configuration.
type FeedStore interface {
	SaveFeed(ctx context.Context, feed oracle.Feed) error
	LoadFeeds(ctx context.Context) ([]oracle.Feed, error)
}

// Store is the complete persistence surface.
type Store interface {
	FundStore
	AssetStore
	FeedStore
	oracle.RateRepository
}

// AssetLoader registers assets into a classification table.
type AssetLoader interface {
	RegisterPrimitive(asset domain.Asset) error
	RegisterDerivative(asset domain.Asset, components []classifier.Component) error
	MarkUnsupported(asset domain.Asset) error
}

// Register applies rec to reg.
func (rec AssetRecord) Register(reg AssetLoader) error {
	switch rec.Kind {
	case classifier.Primitive:
		return reg.RegisterPrimitive(rec.Asset)
	case classifier.Derivative:
		return reg.RegisterDerivative(rec.Asset, rec.Components)
	default:
		return reg.MarkUnsupported(rec.Asset)
	}
}

// LoadRegistry registers every stored asset into reg.
func LoadRegistry(ctx context.Context, assets AssetStore, reg AssetLoader) (int, error) {
	recs, err := assets.LoadAssets(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := rec.Register(reg); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}
