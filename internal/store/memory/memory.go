// Package memory is an in-process implementation of store.Store. Transactions work on a
// private copy of the fund and replace the shared state on commit.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/vault"
)

type fundState struct {
	fund     domain.Fund
	ledger   *vault.Ledger
	fees     []store.FeeRecord
	protocol store.ProtocolFeeState
	version  uint64
}

func (s *fundState) clone() *fundState {
	fees := make([]store.FeeRecord, len(s.fees))
	for i, r := range s.fees {
		fees[i] = store.FeeRecord{Type: r.Type, Data: slices.Clone(r.Data)}
	}
	return &fundState{
		fund:     s.fund.Clone(),
		ledger:   s.ledger.Clone(),
		fees:     fees,
		protocol: s.protocol,
		version:  s.version,
	}
}

func (s *fundState) view() domain.Fund {
	f := s.fund.Clone()
	f.SharesSupply = s.ledger.Supply()
	return f
}

type pair struct {
	base, quote domain.AssetID
}

// Store keeps everything in memory. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	funds       map[domain.FundID]*fundState
	settlements map[domain.FundID][]store.Batch
	assets      map[domain.AssetID]store.AssetRecord
	feeds       []oracle.Feed
	rates       map[pair]oracle.Quote
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		funds:       make(map[domain.FundID]*fundState),
		settlements: make(map[domain.FundID][]store.Batch),
		assets:      make(map[domain.AssetID]store.AssetRecord),
		rates:       make(map[pair]oracle.Quote),
	}
}

// CreateFund stores a new fund with an empty share ledger.
func (s *Store) CreateFund(_ context.Context, fund domain.Fund) error {
	if err := fund.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.funds[fund.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrFundExists, fund.ID)
	}
	f := fund.Clone()
	if f.Holdings == nil {
		f.Holdings = make(map[domain.AssetID]sdkmath.Int)
	}
	f.SharesSupply = sdkmath.ZeroInt()
	s.funds[fund.ID] = &fundState{fund: f, ledger: vault.NewLedger()}
	return nil
}

func (s *Store) Fund(_ context.Context, id domain.FundID) (domain.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.funds[id]
	if !ok {
		return domain.Fund{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return st.view(), nil
}

func (s *Store) ListFunds(_ context.Context) ([]domain.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := lo.Keys(s.funds)
	slices.Sort(ids)
	return lo.Map(ids, func(id domain.FundID, _ int) domain.Fund { return s.funds[id].view() }), nil
}

func (s *Store) ShareBalances(_ context.Context, id domain.FundID) (map[string]sdkmath.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.funds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return st.ledger.Balances(), nil
}

// Settlements returns the newest batches first.
func (s *Store) Settlements(_ context.Context, id domain.FundID, limit int) ([]store.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.funds[id]; !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	batches := slices.Clone(s.settlements[id])
	slices.Reverse(batches)
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

// WithinFund runs fn on a private copy of the fund. The copy replaces the shared state
// only if fn succeeds and no other transaction committed to the fund meanwhile.
func (s *Store) WithinFund(ctx context.Context, id domain.FundID, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	st, ok := s.funds[id]
	var work *fundState
	if ok {
		work = st.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}

	tx := &tx{state: work}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.funds[id]; current == nil || current.version != work.version {
		return fmt.Errorf("%w: %s", store.ErrConflict, id)
	}
	work.version++
	s.funds[id] = work
	s.settlements[id] = append(s.settlements[id], tx.batches...)
	return nil
}

func (s *Store) SaveAsset(_ context.Context, rec store.AssetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.assets[rec.Asset.ID]; ok && existing.Asset.Precision != rec.Asset.Precision {
		return fmt.Errorf("asset %s: precision %d cannot change to %d", rec.Asset.ID, existing.Asset.Precision, rec.Asset.Precision)
	}
	rec.Components = slices.Clone(rec.Components)
	s.assets[rec.Asset.ID] = rec
	return nil
}

func (s *Store) LoadAssets(_ context.Context) ([]store.AssetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := lo.Values(s.assets)
	slices.SortFunc(recs, func(a, b store.AssetRecord) int { return cmp.Compare(a.Asset.ID, b.Asset.ID) })
	return recs, nil
}

func (s *Store) SaveFeed(_ context.Context, feed oracle.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feeds = lo.Reject(s.feeds, func(f oracle.Feed, _ int) bool {
		return f.Base.ID == feed.Base.ID && f.Quote.ID == feed.Quote.ID
	})
	s.feeds = append(s.feeds, feed)
	return nil
}

func (s *Store) LoadFeeds(_ context.Context) ([]oracle.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.feeds), nil
}

func (s *Store) SaveRates(_ context.Context, quotes []oracle.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		s.rates[pair{q.Base, q.Quote}] = q
	}
	return nil
}

func (s *Store) LoadRates(_ context.Context) ([]oracle.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Values(s.rates), nil
}

type tx struct {
	state   *fundState
	batches []store.Batch
}

func (t *tx) Fund(context.Context) (domain.Fund, error) {
	return t.state.view(), nil
}

func (t *tx) Vault() vault.Vault {
	return t.state.ledger
}

func (t *tx) SetHoldings(_ context.Context, holdings map[domain.AssetID]sdkmath.Int) error {
	for id, amount := range holdings {
		if amount.IsNil() || amount.IsNegative() {
			return fmt.Errorf("%w: negative holding of %s", domain.ErrInvariant, id)
		}
	}
	t.state.fund.Holdings = maps.Clone(holdings)
	return nil
}

func (t *tx) FeeRecords(context.Context) ([]store.FeeRecord, error) {
	return slices.Clone(t.state.fees), nil
}

func (t *tx) PutFeeRecords(_ context.Context, records []store.FeeRecord) error {
	t.state.fees = slices.Clone(records)
	return nil
}

func (t *tx) ProtocolFeeState(context.Context) (store.ProtocolFeeState, error) {
	return t.state.protocol, nil
}

func (t *tx) PutProtocolFeeState(_ context.Context, state store.ProtocolFeeState) error {
	t.state.protocol = state
	return nil
}

func (t *tx) AppendSettlement(_ context.Context, batch store.Batch) error {
	t.batches = append(t.batches, batch)
	return nil
}
