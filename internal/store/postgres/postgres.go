// Package postgres implements store.Store with PostgreSQL. Amounts are NUMERIC(78,0)
// columns read back as text so no precision is lost.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/vault"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a new PostgreSQL store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateFund(ctx context.Context, fund domain.Fund) error {
	if err := fund.Validate(); err != nil {
		return err
	}
	createdAt := fund.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO funds (id, denomination, owner, account, share_precision, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			fund.ID, fund.Denomination, fund.Owner, fund.Account, int16(fund.SharePrecision), createdAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", store.ErrFundExists, fund.ID)
			}
			return fmt.Errorf("creating fund %s: %w", fund.ID, err)
		}
		return writeHoldings(ctx, tx, fund.ID, fund.Holdings)
	})
}

func (s *Store) Fund(ctx context.Context, id domain.FundID) (domain.Fund, error) {
	return loadFund(ctx, s.pool, id, false)
}

func (s *Store) ListFunds(ctx context.Context) ([]domain.Fund, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM funds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing funds: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning fund ids: %w", err)
	}

	funds := make([]domain.Fund, 0, len(ids))
	for _, id := range ids {
		f, err := loadFund(ctx, s.pool, domain.FundID(id), false)
		if err != nil {
			return nil, err
		}
		funds = append(funds, f)
	}
	return funds, nil
}

func (s *Store) ShareBalances(ctx context.Context, id domain.FundID) (map[string]sdkmath.Int, error) {
	if _, err := loadFund(ctx, s.pool, id, false); err != nil {
		return nil, err
	}
	return loadBalances(ctx, s.pool, id)
}

func (s *Store) Settlements(ctx context.Context, id domain.FundID, limit int) ([]store.Batch, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, fund_id, source, created_at, instructions
		 FROM settlements
		 WHERE fund_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}
	defer rows.Close()

	var batches []store.Batch
	for rows.Next() {
		var (
			b    store.Batch
			data []byte
		)
		if err := rows.Scan(&b.ID, &b.FundID, &b.Source, &b.CreatedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning settlement: %w", err)
		}
		if err := json.Unmarshal(data, &b.Instructions); err != nil {
			return nil, fmt.Errorf("decoding settlement %s: %w", b.ID, err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settlements: %w", err)
	}
	return batches, nil
}

// WithinFund locks the fund row for the duration of fn. Share balances are loaded into
// a vault.Ledger and written back before commit.
func (s *Store) WithinFund(ctx context.Context, id domain.FundID, fn func(ctx context.Context, tx store.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgTx pgx.Tx) error {
		fund, err := loadFund(ctx, pgTx, id, true)
		if err != nil {
			return err
		}
		balances, err := loadBalances(ctx, pgTx, id)
		if err != nil {
			return err
		}
		ledger, err := vault.LoadLedger(balances)
		if err != nil {
			return fmt.Errorf("loading share ledger of %s: %w", id, err)
		}

		t := &tx{tx: pgTx, fund: fund, ledger: ledger}
		if err := fn(ctx, t); err != nil {
			return err
		}
		return t.flush(ctx)
	})
}

func (s *Store) SaveAsset(ctx context.Context, rec store.AssetRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var precision int16
		err := tx.QueryRow(ctx,
			`INSERT INTO assets (id, precision, kind) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET kind = $3
			 RETURNING precision`,
			rec.Asset.ID, int16(rec.Asset.Precision), rec.Kind.String()).Scan(&precision)
		if err != nil {
			return fmt.Errorf("saving asset %s: %w", rec.Asset.ID, err)
		}
		if uint8(precision) != rec.Asset.Precision {
			return fmt.Errorf("%w: %s registered with %d, got %d",
				classifier.ErrPrecisionChanged, rec.Asset.ID, precision, rec.Asset.Precision)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM asset_components WHERE asset_id = $1`, rec.Asset.ID); err != nil {
			return fmt.Errorf("clearing components of %s: %w", rec.Asset.ID, err)
		}
		for _, c := range rec.Components {
			if _, err := tx.Exec(ctx,
				`INSERT INTO asset_components (asset_id, component, amount_per_unit) VALUES ($1, $2, $3::numeric)`,
				rec.Asset.ID, c.Asset, c.AmountPerUnit.String()); err != nil {
				return fmt.Errorf("saving component %s of %s: %w", c.Asset, rec.Asset.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) LoadAssets(ctx context.Context) ([]store.AssetRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.precision, a.kind, c.component, c.amount_per_unit::text
		 FROM assets a
		 LEFT JOIN asset_components c ON c.asset_id = a.id
		 ORDER BY a.id, c.component`)
	if err != nil {
		return nil, fmt.Errorf("loading assets: %w", err)
	}
	defer rows.Close()

	var recs []store.AssetRecord
	for rows.Next() {
		var (
			id, kind          string
			precision         int16
			component, amount *string
		)
		if err := rows.Scan(&id, &precision, &kind, &component, &amount); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		if len(recs) == 0 || string(recs[len(recs)-1].Asset.ID) != id {
			k, err := classifier.ParseKind(kind)
			if err != nil {
				return nil, fmt.Errorf("asset %s: %w", id, err)
			}
			recs = append(recs, store.AssetRecord{
				Asset: domain.Asset{ID: domain.AssetID(id), Precision: uint8(precision)},
				Kind:  k,
			})
		}
		if component == nil || amount == nil {
			continue
		}
		perUnit, err := parseAmount(*amount)
		if err != nil {
			return nil, fmt.Errorf("asset %s component %s: %w", id, *component, err)
		}
		last := &recs[len(recs)-1]
		last.Components = append(last.Components, classifier.Component{Asset: domain.AssetID(*component), AmountPerUnit: perUnit})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assets: %w", err)
	}
	return recs, nil
}

func (s *Store) SaveFeed(ctx context.Context, feed oracle.Feed) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rate_feeds (base, quote, base_precision, quote_precision, source)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (base, quote)
		 DO UPDATE SET base_precision = $3, quote_precision = $4, source = $5`,
		feed.Base.ID, feed.Quote.ID, int16(feed.Base.Precision), int16(feed.Quote.Precision), feed.Source)
	if err != nil {
		return fmt.Errorf("saving feed %s: %w", feed, err)
	}
	return nil
}

func (s *Store) LoadFeeds(ctx context.Context) ([]oracle.Feed, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT base, quote, base_precision, quote_precision, source FROM rate_feeds ORDER BY base, quote`)
	if err != nil {
		return nil, fmt.Errorf("loading feeds: %w", err)
	}
	defer rows.Close()

	var feeds []oracle.Feed
	for rows.Next() {
		var (
			f          oracle.Feed
			bp, qp     int16
			base, quot string
		)
		if err := rows.Scan(&base, &quot, &bp, &qp, &f.Source); err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		f.Base = domain.Asset{ID: domain.AssetID(base), Precision: uint8(bp)}
		f.Quote = domain.Asset{ID: domain.AssetID(quot), Precision: uint8(qp)}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feeds: %w", err)
	}
	return feeds, nil
}

func (s *Store) SaveRates(ctx context.Context, quotes []oracle.Quote) error {
	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(
			`INSERT INTO rates (base, quote, quote_amount, base_amount, observed_at)
			 VALUES ($1, $2, $3::numeric, $4::numeric, $5)
			 ON CONFLICT (base, quote)
			 DO UPDATE SET quote_amount = $3::numeric, base_amount = $4::numeric, observed_at = $5`,
			q.Base, q.Quote, q.Rate.Quote.String(), q.Rate.Base.String(), q.Rate.Timestamp)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving rates: %w", err)
	}
	return nil
}

func (s *Store) LoadRates(ctx context.Context) ([]oracle.Quote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT base, quote, quote_amount::text, base_amount::text, observed_at FROM rates`)
	if err != nil {
		return nil, fmt.Errorf("loading rates: %w", err)
	}
	defer rows.Close()

	var quotes []oracle.Quote
	for rows.Next() {
		var (
			base, quote, quoteAmt, baseAmt string
			observedAt                     time.Time
		)
		if err := rows.Scan(&base, &quote, &quoteAmt, &baseAmt, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning rate: %w", err)
		}
		q, err := parseAmount(quoteAmt)
		if err != nil {
			return nil, fmt.Errorf("rate %s/%s: %w", base, quote, err)
		}
		b, err := parseAmount(baseAmt)
		if err != nil {
			return nil, fmt.Errorf("rate %s/%s: %w", base, quote, err)
		}
		quotes = append(quotes, oracle.Quote{
			Base:  domain.AssetID(base),
			Quote: domain.AssetID(quote),
			Rate:  domain.Rate{Quote: q, Base: b, Timestamp: observedAt},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rates: %w", err)
	}
	return quotes, nil
}

func loadFund(ctx context.Context, q querier, id domain.FundID, forUpdate bool) (domain.Fund, error) {
	sql := `SELECT id, denomination, owner, account, share_precision, created_at FROM funds WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		f         domain.Fund
		precision int16
	)
	err := q.QueryRow(ctx, sql, id).Scan(&f.ID, &f.Denomination, &f.Owner, &f.Account, &precision, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fund{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return domain.Fund{}, fmt.Errorf("loading fund %s: %w", id, err)
	}
	f.SharePrecision = uint8(precision)

	if f.Holdings, err = loadHoldings(ctx, q, id); err != nil {
		return domain.Fund{}, err
	}

	var supply string
	if err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM share_balances WHERE fund_id = $1`, id).Scan(&supply); err != nil {
		return domain.Fund{}, fmt.Errorf("loading share supply of %s: %w", id, err)
	}
	if f.SharesSupply, err = parseAmount(supply); err != nil {
		return domain.Fund{}, fmt.Errorf("share supply of %s: %w", id, err)
	}
	return f, nil
}

func loadHoldings(ctx context.Context, q querier, id domain.FundID) (map[domain.AssetID]sdkmath.Int, error) {
	amounts, err := loadAmounts(ctx, q, `SELECT asset_id, amount::text FROM fund_holdings WHERE fund_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("loading holdings of %s: %w", id, err)
	}
	holdings := make(map[domain.AssetID]sdkmath.Int, len(amounts))
	for k, v := range amounts {
		holdings[domain.AssetID(k)] = v
	}
	return holdings, nil
}

func loadBalances(ctx context.Context, q querier, id domain.FundID) (map[string]sdkmath.Int, error) {
	balances, err := loadAmounts(ctx, q, `SELECT holder, amount::text FROM share_balances WHERE fund_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("loading share balances of %s: %w", id, err)
	}
	return balances, nil
}

func loadAmounts(ctx context.Context, q querier, sql string, id domain.FundID) (map[string]sdkmath.Int, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sdkmath.Int)
	for rows.Next() {
		var key, amount string
		if err := rows.Scan(&key, &amount); err != nil {
			return nil, err
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

func writeHoldings(ctx context.Context, q querier, id domain.FundID, holdings map[domain.AssetID]sdkmath.Int) error {
	if _, err := q.Exec(ctx, `DELETE FROM fund_holdings WHERE fund_id = $1`, id); err != nil {
		return fmt.Errorf("clearing holdings of %s: %w", id, err)
	}
	for asset, amount := range holdings {
		if amount.IsNil() || amount.IsNegative() {
			return fmt.Errorf("%w: negative holding of %s", domain.ErrInvariant, asset)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO fund_holdings (fund_id, asset_id, amount) VALUES ($1, $2, $3::numeric)`,
			id, asset, amount.String()); err != nil {
			return fmt.Errorf("saving holding %s of %s: %w", asset, id, err)
		}
	}
	return nil
}

func parseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
