// Package fund is the host side of the engine: it serialises all operations on a fund,
// runs share purchases and redemptions together with their fee hooks, and mirrors
// on-chain holdings.
package fund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/feemanager"
	"github.com/mtlprog/fundfee/internal/horizon"
	"github.com/mtlprog/fundfee/internal/protocolfee"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/valuation"
	"github.com/mtlprog/fundfee/internal/vault"
)

var (
	// ErrInvalidAmount is returned for non-positive purchase or redemption amounts and
	// for purchases too small to issue a single share.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoAccount is returned when syncing a fund that is not mirrored from Stellar.
	ErrNoAccount = errors.New("fund has no account")
)

// FeeManager settles a fund's registered fees.
type FeeManager interface {
	AttachFees(ctx context.Context, fundID domain.FundID, settings []feemanager.Setting) error
	Dispatch(ctx context.Context, hook domain.Hook, fundID domain.FundID, payload domain.Payload) (feemanager.Result, error)
	DispatchTx(ctx context.Context, tx store.Tx, hook domain.Hook, payload domain.Payload) (feemanager.Result, error)
	PayoutSharesOutstanding(ctx context.Context, fundID domain.FundID) (feemanager.Result, error)
}

// ProtocolFees settles the protocol fee.
type ProtocolFees interface {
	SetFeeBpsForFund(ctx context.Context, fundID domain.FundID, bps uint32) (protocolfee.Settlement, error)
	Settle(ctx context.Context, fundID domain.FundID) (protocolfee.Settlement, error)
	SettleTx(ctx context.Context, tx store.Tx) (protocolfee.Settlement, error)
}

// AccountFetcher loads a Stellar account.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, accountID string) (horizon.HorizonAccount, error)
}

// Service runs fund operations one at a time per fund.
type Service struct {
	store    store.FundStore
	fees     FeeManager
	protocol ProtocolFees
	valuer   feemanager.Valuer
	accounts AccountFetcher
	now      func() time.Time

	mu    sync.Mutex
	locks map[domain.FundID]*sync.Mutex
}

// NewService creates a Service. accounts may be nil when no fund mirrors a Stellar account.
func NewService(st store.FundStore, fees FeeManager, protocol ProtocolFees, valuer feemanager.Valuer, accounts AccountFetcher) *Service {
	if st == nil {
		panic("fund.NewService: store is nil")
	}
	if fees == nil {
		panic("fund.NewService: fees is nil")
	}
	if protocol == nil {
		panic("fund.NewService: protocol is nil")
	}
	if valuer == nil {
		panic("fund.NewService: valuer is nil")
	}
	return &Service{
		store:    st,
		fees:     fees,
		protocol: protocol,
		valuer:   valuer,
		accounts: accounts,
		now:      time.Now,
		locks:    make(map[domain.FundID]*sync.Mutex),
	}
}

// lock serialises operations on one fund and returns the unlock func.
func (s *Service) lock(id domain.FundID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create registers a new fund.
func (s *Service) Create(ctx context.Context, f domain.Fund) (domain.Fund, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	if err := s.store.CreateFund(ctx, f); err != nil {
		return domain.Fund{}, err
	}
	slog.Info("fund created", "fund", f.ID, "denomination", f.Denomination)
	return s.store.Fund(ctx, f.ID)
}

// Get returns a fund.
func (s *Service) Get(ctx context.Context, id domain.FundID) (domain.Fund, error) {
	return s.store.Fund(ctx, id)
}

// List returns all funds.
func (s *Service) List(ctx context.Context) ([]domain.Fund, error) {
	return s.store.ListFunds(ctx)
}

// Settlements returns the most recent settlement batches of a fund.
func (s *Service) Settlements(ctx context.Context, id domain.FundID, limit int) ([]store.Batch, error) {
	return s.store.Settlements(ctx, id, limit)
}

// AttachFees attaches fees to a fund.
func (s *Service) AttachFees(ctx context.Context, id domain.FundID, settings []feemanager.Setting) error {
	defer s.lock(id)()
	return s.fees.AttachFees(ctx, id, settings)
}

// Dispatch runs one hook on a fund.
func (s *Service) Dispatch(ctx context.Context, id domain.FundID, hook domain.Hook, payload domain.Payload) (feemanager.Result, error) {
	defer s.lock(id)()
	return s.fees.Dispatch(ctx, hook, id, payload)
}

// Payout releases escrowed fee shares that are due.
func (s *Service) Payout(ctx context.Context, id domain.FundID) (feemanager.Result, error) {
	defer s.lock(id)()
	return s.fees.PayoutSharesOutstanding(ctx, id)
}

// SetProtocolFee sets the protocol fee rate of a fund.
func (s *Service) SetProtocolFee(ctx context.Context, id domain.FundID, bps uint32) (protocolfee.Settlement, error) {
	defer s.lock(id)()
	return s.protocol.SetFeeBpsForFund(ctx, id, bps)
}

// BuyResult describes a committed share purchase.
type BuyResult struct {
	FundID         domain.FundID          `json:"fundId"`
	Investor       string                 `json:"investor"`
	Investment     sdkmath.Int            `json:"investment"`
	SharesIssued   sdkmath.Int            `json:"sharesIssued"`
	SharesReceived sdkmath.Int            `json:"sharesReceived"`
	ProtocolFee    protocolfee.Settlement `json:"protocolFee"`
	Settlements    []feemanager.Result    `json:"settlements"`
}

// Buy issues shares for an investment in the denomination asset. The protocol fee and
// PreBuyShares fees settle before the share price is taken; PostBuyShares fees settle on the issued shares.
// The purchase is rejected when the fund cannot be valued.
func (s *Service) Buy(ctx context.Context, id domain.FundID, investor string, investment sdkmath.Int) (BuyResult, error) {
	if investor == "" {
		return BuyResult{}, fmt.Errorf("%w: investor is empty", ErrInvalidAmount)
	}
	if investment.IsNil() || !investment.IsPositive() {
		return BuyResult{}, fmt.Errorf("%w: investment must be positive", ErrInvalidAmount)
	}
	defer s.lock(id)()

	res := BuyResult{FundID: id, Investor: investor, Investment: investment}
	err := s.store.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		before, err := tx.Vault().BalanceOf(ctx, investor)
		if err != nil {
			return err
		}

		if res.ProtocolFee, err = s.protocol.SettleTx(ctx, tx); err != nil {
			return err
		}

		pre, err := s.fees.DispatchTx(ctx, tx, domain.HookPreBuyShares, domain.Payload{Investor: investor, InvestmentAmount: investment})
		if err != nil {
			return err
		}
		res.Settlements = append(res.Settlements, pre)

		f, err := tx.Fund(ctx)
		if err != nil {
			return err
		}
		shares, err := s.sharesFor(f, investment)
		if err != nil {
			return err
		}
		if err := tx.Vault().MintShares(ctx, investor, shares); err != nil {
			return err
		}
		res.SharesIssued = shares

		if f.Account == "" {
			holdings := f.Clone().Holdings
			if holdings == nil {
				holdings = make(map[domain.AssetID]sdkmath.Int)
			}
			held, ok := holdings[f.Denomination]
			if !ok {
				held = sdkmath.ZeroInt()
			}
			if holdings[f.Denomination], err = domain.SafeSum(held, investment); err != nil {
				return err
			}
			if err := tx.SetHoldings(ctx, holdings); err != nil {
				return err
			}
		}

		post, err := s.fees.DispatchTx(ctx, tx, domain.HookPostBuyShares, domain.Payload{
			Investor:         investor,
			InvestmentAmount: investment,
			SharesBought:     shares,
		})
		if err != nil {
			return err
		}
		res.Settlements = append(res.Settlements, post)

		after, err := tx.Vault().BalanceOf(ctx, investor)
		if err != nil {
			return err
		}
		res.SharesReceived = after.Sub(before)
		return nil
	})
	if err != nil {
		return BuyResult{}, err
	}
	slog.Info("shares bought", "fund", id, "investor", investor, "shares", res.SharesIssued.String())
	return res, nil
}

// sharesFor prices an investment: investment * supply / gav, or at one share per whole
// denomination unit for an empty fund.
func (s *Service) sharesFor(f domain.Fund, investment sdkmath.Int) (sdkmath.Int, error) {
	vctx := s.valuer.Context(s.now())

	var shares sdkmath.Int
	if f.SharesSupply.IsZero() {
		precision, err := denominationPrecision(vctx, f.Denomination)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		shares, err = domain.MulDivFloor(investment, f.ShareUnit(), domain.Pow10(precision))
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
	} else {
		gav, err := vctx.CalcGAV(f)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("pricing purchase: %w", err)
		}
		if gav.IsZero() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: fund %s has shares but no value", domain.ErrInvariant, f.ID)
		}
		shares, err = domain.MulDivFloor(investment, f.SharesSupply, gav)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: investment %s buys no shares", ErrInvalidAmount, investment)
	}
	return shares, nil
}

func denominationPrecision(vctx valuation.Context, denomination domain.AssetID) (uint8, error) {
	if vctx.Assets == nil {
		return domain.StellarPrecision, nil
	}
	_, _, precision := vctx.Assets.Classify(denomination)
	if precision == 0 {
		return domain.StellarPrecision, nil
	}
	return precision, nil
}

// RedeemResult describes a committed redemption.
type RedeemResult struct {
	FundID          domain.FundID                  `json:"fundId"`
	Investor        string                         `json:"investor"`
	SharesRequested sdkmath.Int                    `json:"sharesRequested"`
	SharesRedeemed  sdkmath.Int                    `json:"sharesRedeemed"`
	Payout          map[domain.AssetID]sdkmath.Int `json:"payout"`
	ProtocolFee     protocolfee.Settlement         `json:"protocolFee"`
	Settlements     []feemanager.Result            `json:"settlements"`
}

// Redeem burns shares for a pro-rata share of every holding. The protocol fee is
// settled first; shares taken by PreRedeemShares fees reduce the shares redeemed.
func (s *Service) Redeem(ctx context.Context, id domain.FundID, investor string, shares sdkmath.Int) (RedeemResult, error) {
	if investor == "" {
		return RedeemResult{}, fmt.Errorf("%w: investor is empty", ErrInvalidAmount)
	}
	if shares.IsNil() || !shares.IsPositive() {
		return RedeemResult{}, fmt.Errorf("%w: shares must be positive", ErrInvalidAmount)
	}
	defer s.lock(id)()

	res := RedeemResult{FundID: id, Investor: investor, SharesRequested: shares}
	err := s.store.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		before, err := tx.Vault().BalanceOf(ctx, investor)
		if err != nil {
			return err
		}
		if before.LT(shares) {
			return fmt.Errorf("%w: %s holds %s, redeeming %s", vault.ErrInsufficientShares, investor, before, shares)
		}

		if res.ProtocolFee, err = s.protocol.SettleTx(ctx, tx); err != nil {
			return err
		}

		pre, err := s.fees.DispatchTx(ctx, tx, domain.HookPreRedeemShares, domain.Payload{Investor: investor, SharesToRedeem: shares})
		if err != nil {
			return err
		}
		res.Settlements = append(res.Settlements, pre)

		after, err := tx.Vault().BalanceOf(ctx, investor)
		if err != nil {
			return err
		}
		redeemed := shares
		if taken := before.Sub(after); taken.IsPositive() {
			redeemed = redeemed.Sub(taken)
		}
		if redeemed.GT(after) {
			redeemed = after
		}
		if !redeemed.IsPositive() {
			return fmt.Errorf("%w: fees consume the whole redemption", ErrInvalidAmount)
		}

		f, err := tx.Fund(ctx)
		if err != nil {
			return err
		}
		res.Payout, err = proRata(f.Holdings, redeemed, f.SharesSupply)
		if err != nil {
			return err
		}
		if err := tx.Vault().BurnShares(ctx, investor, redeemed); err != nil {
			return err
		}
		res.SharesRedeemed = redeemed

		if f.Account == "" {
			holdings := make(map[domain.AssetID]sdkmath.Int, len(f.Holdings))
			for asset, amount := range f.Holdings {
				holdings[asset] = amount.Sub(res.Payout[asset])
			}
			if err := tx.SetHoldings(ctx, holdings); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RedeemResult{}, err
	}
	slog.Info("shares redeemed", "fund", id, "investor", investor, "shares", res.SharesRedeemed.String())
	return res, nil
}

// proRata returns floor(amount * shares / supply) of every holding.
func proRata(holdings map[domain.AssetID]sdkmath.Int, shares, supply sdkmath.Int) (map[domain.AssetID]sdkmath.Int, error) {
	out := make(map[domain.AssetID]sdkmath.Int, len(holdings))
	for asset, amount := range holdings {
		v, err := domain.MulDivFloor(amount, shares, supply)
		if err != nil {
			return nil, fmt.Errorf("redeeming %s: %w", asset, err)
		}
		out[asset] = v
	}
	return out, nil
}

// SyncHoldings replaces the holdings of an account-backed fund with the account's
// current balances.
func (s *Service) SyncHoldings(ctx context.Context, id domain.FundID) error {
	defer s.lock(id)()
	return s.syncHoldings(ctx, id)
}

func (s *Service) syncHoldings(ctx context.Context, id domain.FundID) error {
	f, err := s.store.Fund(ctx, id)
	if err != nil {
		return err
	}
	if f.Account == "" {
		return fmt.Errorf("%w: %s", ErrNoAccount, id)
	}
	if s.accounts == nil {
		return fmt.Errorf("syncing %s: no account source configured", id)
	}

	acc, err := s.accounts.FetchAccount(ctx, f.Account)
	if err != nil {
		return fmt.Errorf("fetching account of %s: %w", id, err)
	}
	holdings, err := acc.Holdings()
	if err != nil {
		return fmt.Errorf("reading holdings of %s: %w", id, err)
	}
	return s.store.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		return tx.SetHoldings(ctx, holdings)
	})
}

// TickResult is the outcome of one continuous tick on a fund.
type TickResult struct {
	FundID     domain.FundID           `json:"fundId"`
	Continuous *feemanager.Result      `json:"continuous,omitempty"`
	Protocol   *protocolfee.Settlement `json:"protocol,omitempty"`
	Payout     *feemanager.Result      `json:"payout,omitempty"`
}

// Tick syncs holdings, settles Continuous fees, the protocol fee and due payouts. Steps
// are independent: a failed step is reported and the remaining steps still run.
func (s *Service) Tick(ctx context.Context, id domain.FundID) (TickResult, error) {
	defer s.lock(id)()

	res := TickResult{FundID: id}
	var errs []error

	f, err := s.store.Fund(ctx, id)
	if err != nil {
		return res, err
	}
	if f.Account != "" {
		if err := s.syncHoldings(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	if r, err := s.fees.Dispatch(ctx, domain.HookContinuous, id, domain.Payload{}); err != nil {
		errs = append(errs, fmt.Errorf("continuous fees: %w", err))
	} else {
		res.Continuous = &r
	}
	if p, err := s.protocol.Settle(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("protocol fee: %w", err))
	} else {
		res.Protocol = &p
	}
	if r, err := s.fees.PayoutSharesOutstanding(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("payout: %w", err))
	} else {
		res.Payout = &r
	}
	return res, errors.Join(errs...)
}
