// Package feemanager keeps the ordered fee registry of every fund and settles the fees
// at lifecycle hooks. A dispatch either applies all of its vault commands and fee state
// changes or none of them.
package feemanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/fee"
	"github.com/mtlprog/fundfee/internal/guard"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/valuation"
	"github.com/mtlprog/fundfee/internal/vault"
)

var (
	// ErrDuplicateFee is returned when a fee type is attached twice to a fund or
	// registered twice.
	ErrDuplicateFee = errors.New("duplicate fee")
	// ErrUnknownFeeType is returned for a fee type without a registered factory.
	ErrUnknownFeeType = errors.New("unknown fee type")
	// ErrReentrantDispatch is returned when a fund is dispatched while a dispatch on the
	// same fund is still running.
	ErrReentrantDispatch = errors.New("re-entrant dispatch")
	// ErrInvalidValuation is returned when a fee needs the fund value and it cannot be
	// computed from fresh rates.
	ErrInvalidValuation = valuation.ErrInvalidValuation
)

// SourcePayout is the batch source of escrow payouts.
const SourcePayout = "payout"

// Setting attaches one fee with its msgpack-encoded configuration.
type Setting struct {
	Type   domain.FeeType `json:"type"`
	Config []byte         `json:"config"`
}

// Valuer builds the valuation context for a point in time.
type Valuer interface {
	Context(now time.Time) valuation.Context
}

// Result describes one committed settlement.
type Result struct {
	FundID       domain.FundID        `json:"fundId"`
	Source       string               `json:"source"`
	BatchID      *uuid.UUID           `json:"batchId,omitempty"`
	GAV          *sdkmath.Int         `json:"gav,omitempty"`
	Instructions []domain.Instruction `json:"instructions"`
}

// Manager settles fund fees.
type Manager struct {
	store  store.FundStore
	valuer Valuer
	now    func() time.Time

	mu        sync.RWMutex
	factories map[domain.FeeType]fee.Factory
	order     []domain.FeeType

	active guard.Set
}

// New creates a Manager with the built-in fee types registered.
func New(st store.FundStore, valuer Valuer) *Manager {
	m := &Manager{
		store:     st,
		valuer:    valuer,
		now:       time.Now,
		factories: make(map[domain.FeeType]fee.Factory),
	}
	for _, f := range fee.Factories() {
		if err := m.RegisterFeeType(f); err != nil {
			panic(err)
		}
	}
	return m
}

// RegisterFeeType makes a fee type available for attachment.
func (m *Manager) RegisterFeeType(f fee.Factory) error {
	if f.Type == "" || f.New == nil {
		return fmt.Errorf("registering fee type: incomplete factory %q", f.Type)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.factories[f.Type]; ok {
		return fmt.Errorf("%w: fee type %s already registered", ErrDuplicateFee, f.Type)
	}
	m.factories[f.Type] = f
	m.order = append(m.order, f.Type)
	return nil
}

// FeeTypes returns the registered fee types in registration order.
func (m *Manager) FeeTypes() []domain.FeeType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

func (m *Manager) factory(t domain.FeeType) (fee.Factory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.factories[t]
	if !ok {
		return fee.Factory{}, fmt.Errorf("%w: %s", ErrUnknownFeeType, t)
	}
	return f, nil
}

// AttachFees decodes, activates and appends fees to the fund's registry. Either all
// settings are attached or none.
func (m *Manager) AttachFees(ctx context.Context, fundID domain.FundID, settings []Setting) error {
	if len(settings) == 0 {
		return nil
	}
	release, ok := m.active.Enter(fundID)
	if !ok {
		return fmt.Errorf("%w: fund %s", ErrReentrantDispatch, fundID)
	}
	defer release()

	return m.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		fund, err := tx.Fund(ctx)
		if err != nil {
			return err
		}
		records, err := tx.FeeRecords(ctx)
		if err != nil {
			return err
		}

		seen := lo.SliceToMap(records, func(r store.FeeRecord) (domain.FeeType, bool) { return r.Type, true })
		now := m.now()
		state := fee.FundState{Fund: fund, Now: now}
		if m.valuer != nil {
			if gav, err := m.valuer.Context(now).CalcGAV(fund); err == nil {
				state.GAV, state.HasGAV = gav, true
			}
		}

		for _, s := range settings {
			if seen[s.Type] {
				return fmt.Errorf("%w: %s on fund %s", ErrDuplicateFee, s.Type, fundID)
			}
			factory, err := m.factory(s.Type)
			if err != nil {
				return err
			}
			f, err := factory.Decode(s.Config)
			if err != nil {
				return err
			}
			if f.NeedsGAV(domain.HookContinuous) && !state.HasGAV {
				slog.Warn("attaching fee without a fund valuation", "fund", fundID, "fee", s.Type)
			}
			if err := f.Activate(state); err != nil {
				return fmt.Errorf("activating %s fee: %w", s.Type, err)
			}
			data, err := fee.Encode(f)
			if err != nil {
				return err
			}
			records = append(records, store.FeeRecord{Type: s.Type, Data: data})
			seen[s.Type] = true
		}

		if err := tx.PutFeeRecords(ctx, records); err != nil {
			return err
		}
		slog.Info("fees attached", "fund", fundID, "count", len(settings))
		return nil
	})
}

// Fees returns the decoded fees of a fund in registry order.
func (m *Manager) Fees(ctx context.Context, fundID domain.FundID) ([]fee.Fee, error) {
	var fees []fee.Fee
	err := m.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		records, err := tx.FeeRecords(ctx)
		if err != nil {
			return err
		}
		fees, err = m.decode(records)
		return err
	})
	return fees, err
}

// Dispatch settles every fee of the fund for hook in one transaction.
func (m *Manager) Dispatch(ctx context.Context, hook domain.Hook, fundID domain.FundID, payload domain.Payload) (Result, error) {
	release, ok := m.active.Enter(fundID)
	if !ok {
		return Result{}, fmt.Errorf("%w: fund %s", ErrReentrantDispatch, fundID)
	}
	defer release()

	var res Result
	err := m.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = m.dispatch(ctx, tx, hook, payload)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// DispatchTx settles every fee of the fund for hook inside a transaction opened by the
// caller, so a share purchase or redemption can commit together with its fees.
func (m *Manager) DispatchTx(ctx context.Context, tx store.Tx, hook domain.Hook, payload domain.Payload) (Result, error) {
	fund, err := tx.Fund(ctx)
	if err != nil {
		return Result{}, err
	}
	release, ok := m.active.Enter(fund.ID)
	if !ok {
		return Result{}, fmt.Errorf("%w: fund %s", ErrReentrantDispatch, fund.ID)
	}
	defer release()

	return m.dispatch(ctx, tx, hook, payload)
}

func (m *Manager) dispatch(ctx context.Context, tx store.Tx, hook domain.Hook, payload domain.Payload) (Result, error) {
	payload = payload.Normalize()
	fund, err := tx.Fund(ctx)
	if err != nil {
		return Result{}, err
	}
	records, err := tx.FeeRecords(ctx)
	if err != nil {
		return Result{}, err
	}
	fees, err := m.decode(records)
	if err != nil {
		return Result{}, err
	}

	now := m.now()
	state := fee.FundState{Fund: fund, Now: now}
	res := Result{FundID: fund.ID, Source: hook.String()}

	if lo.SomeBy(fees, func(f fee.Fee) bool { return f.NeedsGAV(hook) }) {
		if m.valuer == nil {
			return Result{}, fmt.Errorf("dispatching %s on %s: %w: no valuation configured", hook, fund.ID, ErrInvalidValuation)
		}
		gav, err := m.valuer.Context(now).CalcGAV(fund)
		if err != nil {
			return Result{}, fmt.Errorf("dispatching %s on %s: %w", hook, fund.ID, err)
		}
		state.GAV, state.HasGAV = gav, true
		res.GAV = &gav
	}

	for _, f := range fees {
		ins, err := f.Settle(hook, state, payload)
		if err != nil {
			return Result{}, fmt.Errorf("dispatching %s on %s: %w", hook, fund.ID, err)
		}
		if ins != nil {
			res.Instructions = append(res.Instructions, *ins)
		}
		if err := f.Update(hook, state, payload); err != nil {
			return Result{}, fmt.Errorf("dispatching %s on %s: updating %s fee: %w", hook, fund.ID, f.Type(), err)
		}
	}

	if err := m.commit(ctx, tx, fund.ID, res.Source, now, fees, &res); err != nil {
		return Result{}, err
	}
	if len(res.Instructions) > 0 {
		slog.Info("fees settled", "fund", fund.ID, "hook", hook.String(), "instructions", len(res.Instructions))
	}
	return res, nil
}

// PayoutSharesOutstanding releases escrowed shares of every fee whose payout period has
// elapsed to the fee's recipient.
func (m *Manager) PayoutSharesOutstanding(ctx context.Context, fundID domain.FundID) (Result, error) {
	release, ok := m.active.Enter(fundID)
	if !ok {
		return Result{}, fmt.Errorf("%w: fund %s", ErrReentrantDispatch, fundID)
	}
	defer release()

	var res Result
	err := m.store.WithinFund(ctx, fundID, func(ctx context.Context, tx store.Tx) error {
		fund, err := tx.Fund(ctx)
		if err != nil {
			return err
		}
		records, err := tx.FeeRecords(ctx)
		if err != nil {
			return err
		}
		fees, err := m.decode(records)
		if err != nil {
			return err
		}

		now := m.now()
		res = Result{FundID: fund.ID, Source: SourcePayout}
		for _, f := range fees {
			p, ok := f.(fee.Payer)
			if !ok {
				continue
			}
			escrow := domain.EscrowHolder(p.Type())
			outstanding, err := tx.Vault().BalanceOf(ctx, escrow)
			if err != nil {
				return err
			}
			if !outstanding.IsPositive() || !p.PayoutDue(now) {
				continue
			}
			res.Instructions = append(res.Instructions, domain.Instruction{
				FeeType: p.Type(),
				Type:    domain.SettlementDirect,
				Shares:  outstanding,
				Payer:   escrow,
				Payee:   p.Recipient(fund),
			})
		}
		return m.commit(ctx, tx, fund.ID, SourcePayout, now, fees, &res)
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// commit applies the result's instructions, persists fee state and records the batch.
func (m *Manager) commit(ctx context.Context, tx store.Tx, fundID domain.FundID, source string, now time.Time, fees []fee.Fee, res *Result) error {
	cmds := make([]vault.Command, 0, len(res.Instructions))
	for _, ins := range res.Instructions {
		c, err := vault.FromInstruction(ins)
		if err != nil {
			return err
		}
		cmds = append(cmds, c)
	}
	if err := vault.Apply(ctx, tx.Vault(), cmds); err != nil {
		return fmt.Errorf("settling %s on %s: %w", source, fundID, err)
	}

	records := make([]store.FeeRecord, 0, len(fees))
	for _, f := range fees {
		data, err := fee.Encode(f)
		if err != nil {
			return err
		}
		records = append(records, store.FeeRecord{Type: f.Type(), Data: data})
	}
	if err := tx.PutFeeRecords(ctx, records); err != nil {
		return err
	}

	if len(res.Instructions) == 0 {
		return nil
	}
	batch := store.NewBatch(fundID, source, now, res.Instructions)
	if err := tx.AppendSettlement(ctx, batch); err != nil {
		return err
	}
	res.BatchID = &batch.ID
	return nil
}

func (m *Manager) decode(records []store.FeeRecord) ([]fee.Fee, error) {
	fees := make([]fee.Fee, 0, len(records))
	for _, r := range records {
		factory, err := m.factory(r.Type)
		if err != nil {
			return nil, err
		}
		f, err := factory.Decode(r.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding stored %s fee: %w", r.Type, err)
		}
		fees = append(fees, f)
	}
	return fees, nil
}
