package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jackc/pgx/v5"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/vault"
)

// tx buffers share balance changes in a Ledger. Everything else is written through to
// the surrounding database transaction.
type tx struct {
	tx     pgx.Tx
	fund   domain.Fund
	ledger *vault.Ledger
}

func (t *tx) Fund(context.Context) (domain.Fund, error) {
	f := t.fund.Clone()
	f.SharesSupply = t.ledger.Supply()
	return f, nil
}

func (t *tx) Vault() vault.Vault {
	return t.ledger
}

func (t *tx) SetHoldings(ctx context.Context, holdings map[domain.AssetID]sdkmath.Int) error {
	if err := writeHoldings(ctx, t.tx, t.fund.ID, holdings); err != nil {
		return err
	}
	t.fund.Holdings = maps.Clone(holdings)
	return nil
}

func (t *tx) FeeRecords(ctx context.Context) ([]store.FeeRecord, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT fee_type, data FROM fee_records WHERE fund_id = $1 ORDER BY position`, t.fund.ID)
	if err != nil {
		return nil, fmt.Errorf("loading fee records of %s: %w", t.fund.ID, err)
	}
	defer rows.Close()

	var records []store.FeeRecord
	for rows.Next() {
		var (
			feeType string
			data    []byte
		)
		if err := rows.Scan(&feeType, &data); err != nil {
			return nil, fmt.Errorf("scanning fee record: %w", err)
		}
		records = append(records, store.FeeRecord{Type: domain.FeeType(feeType), Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fee records: %w", err)
	}
	return records, nil
}

func (t *tx) PutFeeRecords(ctx context.Context, records []store.FeeRecord) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM fee_records WHERE fund_id = $1`, t.fund.ID); err != nil {
		return fmt.Errorf("clearing fee records of %s: %w", t.fund.ID, err)
	}
	for i, r := range records {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO fee_records (fund_id, fee_type, position, data) VALUES ($1, $2, $3, $4)`,
			t.fund.ID, r.Type, i, r.Data); err != nil {
			return fmt.Errorf("saving %s fee record of %s: %w", r.Type, t.fund.ID, err)
		}
	}
	return nil
}

func (t *tx) ProtocolFeeState(ctx context.Context) (store.ProtocolFeeState, error) {
	var (
		st       store.ProtocolFeeState
		bps      int32
		lastPaid *time.Time
	)
	err := t.tx.QueryRow(ctx,
		`SELECT bps, last_paid FROM protocol_fee_state WHERE fund_id = $1`, t.fund.ID).Scan(&bps, &lastPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ProtocolFeeState{}, nil
		}
		return store.ProtocolFeeState{}, fmt.Errorf("loading protocol fee state of %s: %w", t.fund.ID, err)
	}
	st.Bps = uint32(bps)
	if lastPaid != nil {
		st.LastPaid = *lastPaid
	}
	return st, nil
}

func (t *tx) PutProtocolFeeState(ctx context.Context, state store.ProtocolFeeState) error {
	var lastPaid *time.Time
	if !state.LastPaid.IsZero() {
		lastPaid = &state.LastPaid
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO protocol_fee_state (fund_id, bps, last_paid) VALUES ($1, $2, $3)
		 ON CONFLICT (fund_id) DO UPDATE SET bps = $2, last_paid = $3`,
		t.fund.ID, int32(state.Bps), lastPaid)
	if err != nil {
		return fmt.Errorf("saving protocol fee state of %s: %w", t.fund.ID, err)
	}
	return nil
}

func (t *tx) AppendSettlement(ctx context.Context, batch store.Batch) error {
	data, err := json.Marshal(batch.Instructions)
	if err != nil {
		return fmt.Errorf("encoding settlement %s: %w", batch.ID, err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO settlements (id, fund_id, source, created_at, instructions) VALUES ($1, $2, $3, $4, $5::jsonb)`,
		batch.ID, batch.FundID, batch.Source, batch.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("saving settlement %s: %w", batch.ID, err)
	}
	return nil
}

// flush writes the ledger back.
func (t *tx) flush(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM share_balances WHERE fund_id = $1`, t.fund.ID); err != nil {
		return fmt.Errorf("clearing share balances of %s: %w", t.fund.ID, err)
	}
	for holder, amount := range t.ledger.Balances() {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO share_balances (fund_id, holder, amount) VALUES ($1, $2, $3::numeric)`,
			t.fund.ID, holder, amount.String()); err != nil {
			return fmt.Errorf("saving share balance of %s in %s: %w", holder, t.fund.ID, err)
		}
	}
	return nil
}
