// Package protocolfee accrues the protocol's time-weighted fee on every fund,
// independent of the fund's own fee registry.
package protocolfee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/guard"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/vault"
)

// FeeType labels protocol fee instructions.
const FeeType domain.FeeType = "protocol"

// Source is the batch source of protocol fee settlements.
const Source = "protocol_fee"

var (
	// ErrReentrant is returned when a fund is settled while a settlement on the same fund
	// is still running.
	ErrReentrant = errors.New("re-entrant protocol fee settlement")
	// ErrInvalidBps is returned for a rate above 100%.
	ErrInvalidBps = errors.New("invalid protocol fee rate")
)

// CalcSharesDue returns the shares to mint for bps accrued on supply over seconds.
// It is zero when supply or seconds is zero.
func CalcSharesDue(supply sdkmath.Int, bps uint32, seconds int64) (sdkmath.Int, error) {
	raw, err := domain.TimeWeightedSharesDue(supply, bps, seconds)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return domain.ConvertToSharesDue(raw, supply)
}

// Settlement is the outcome of one protocol fee settlement.
type Settlement struct {
	FundID   domain.FundID `json:"fundId"`
	Shares   sdkmath.Int   `json:"shares"`
	Seconds  int64         `json:"seconds"`
	LastPaid time.Time     `json:"lastPaid"`
	BatchID  *uuid.UUID    `json:"batchId,omitempty"`
}

// Tracker settles the protocol fee.
type Tracker struct {
	store     store.FundStore
	recipient string
	now       func() time.Time
	active    guard.Set
}

// New creates a Tracker minting fee shares to recipient.
func New(st store.FundStore, recipient string) *Tracker {
	return &Tracker{store: st, recipient: recipient, now: time.Now}
}

// SetFeeBpsForFund changes the fund's rate. Fees accrued at the previous rate are settled
// first; a fund configured for the first time starts accruing now.
func (t *Tracker) SetFeeBpsForFund(ctx context.Context, fundID domain.FundID, bps uint32) (Settlement, error) {
	if bps > domain.MaxBps {
		return Settlement{}, fmt.Errorf("%w: %d bps", ErrInvalidBps, bps)
	}
	release, ok := t.active.Enter(fundID)
	if !ok {
		return Settlement{}, fmt.Errorf("%w: fund %s", ErrReentrant, fundID)
	}
	defer release()

	var res Settlement
	err := t.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		var err error
		if res, err = t.settle(ctx, tx); err != nil {
			return err
		}
		st, err := tx.ProtocolFeeState(ctx)
		if err != nil {
			return err
		}
		st.Bps = bps
		st.LastPaid = res.LastPaid
		return tx.PutProtocolFeeState(ctx, st)
	})
	if err != nil {
		return Settlement{}, err
	}
	slog.Info("protocol fee rate set", "fund", fundID, "bps", bps)
	return res, nil
}

// Settle mints the protocol fee accrued since the last payment and moves lastPaid to now,
// whether or not any shares were due.
func (t *Tracker) Settle(ctx context.Context, fundID domain.FundID) (Settlement, error) {
	release, ok := t.active.Enter(fundID)
	if !ok {
		return Settlement{}, fmt.Errorf("%w: fund %s", ErrReentrant, fundID)
	}
	defer release()

	var res Settlement
	err := t.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = t.settle(ctx, tx)
		return err
	})
	if err != nil {
		return Settlement{}, err
	}
	return res, nil
}

// SettleTx settles the protocol fee inside a transaction opened by the caller, so the
// fee accrued on the current supply is paid before a purchase or redemption changes it.
func (t *Tracker) SettleTx(ctx context.Context, tx store.Tx) (Settlement, error) {
	fund, err := tx.Fund(ctx)
	if err != nil {
		return Settlement{}, err
	}
	release, ok := t.active.Enter(fund.ID)
	if !ok {
		return Settlement{}, fmt.Errorf("%w: fund %s", ErrReentrant, fund.ID)
	}
	defer release()

	return t.settle(ctx, tx)
}

// Preview returns the shares that Settle would mint now without changing anything.
func (t *Tracker) Preview(ctx context.Context, fundID domain.FundID) (sdkmath.Int, error) {
	var due sdkmath.Int
	err := t.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		fund, err := tx.Fund(ctx)
		if err != nil {
			return err
		}
		st, err := tx.ProtocolFeeState(ctx)
		if err != nil {
			return err
		}
		due, err = CalcSharesDue(fund.SharesSupply, st.Bps, elapsed(st.LastPaid, t.now()))
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return due, nil
}

func (t *Tracker) settle(ctx context.Context, tx store.Tx) (Settlement, error) {
	fund, err := tx.Fund(ctx)
	if err != nil {
		return Settlement{}, err
	}
	st, err := tx.ProtocolFeeState(ctx)
	if err != nil {
		return Settlement{}, err
	}

	now := t.now()
	res := Settlement{FundID: fund.ID, Shares: sdkmath.ZeroInt(), Seconds: elapsed(st.LastPaid, now), LastPaid: now}
	due, err := CalcSharesDue(fund.SharesSupply, st.Bps, res.Seconds)
	if err != nil {
		return Settlement{}, fmt.Errorf("protocol fee on %s: %w", fund.ID, err)
	}

	if due.IsPositive() {
		if t.recipient == "" {
			return Settlement{}, fmt.Errorf("protocol fee on %s: %w: no recipient configured", fund.ID, domain.ErrInvariant)
		}
		ins := domain.Instruction{FeeType: FeeType, Type: domain.SettlementMint, Shares: due, Payee: t.recipient}
		cmd, err := vault.FromInstruction(ins)
		if err != nil {
			return Settlement{}, err
		}
		if err := vault.Apply(ctx, tx.Vault(), []vault.Command{cmd}); err != nil {
			return Settlement{}, fmt.Errorf("protocol fee on %s: %w", fund.ID, err)
		}
		batch := store.NewBatch(fund.ID, Source, now, []domain.Instruction{ins})
		if err := tx.AppendSettlement(ctx, batch); err != nil {
			return Settlement{}, err
		}
		res.Shares = due
		res.BatchID = &batch.ID
		slog.Info("protocol fee settled", "fund", fund.ID, "shares", due.String(), "seconds", res.Seconds)
	}

	st.LastPaid = now
	if err := tx.PutProtocolFeeState(ctx, st); err != nil {
		return Settlement{}, err
	}
	return res, nil
}

func elapsed(since, now time.Time) int64 {
	if since.IsZero() || !now.After(since) {
		return 0
	}
	return int64(now.Sub(since) / time.Second)
}
