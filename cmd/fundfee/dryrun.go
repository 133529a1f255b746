package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/store/memory"
)

var errReadOnly = errors.New("read only")

// copyFund copies a fund with its share ledger, fee records and protocol fee state
// into dst. The source transaction is always rolled back.
func copyFund(ctx context.Context, src store.Store, dst *memory.Store, id domain.FundID) error {
	f, err := src.Fund(ctx, id)
	if err != nil {
		return err
	}
	balances, err := src.ShareBalances(ctx, id)
	if err != nil {
		return err
	}

	var records []store.FeeRecord
	var protocol store.ProtocolFeeState
	err = src.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		var err error
		if records, err = tx.FeeRecords(ctx); err != nil {
			return err
		}
		if protocol, err = tx.ProtocolFeeState(ctx); err != nil {
			return err
		}
		return errReadOnly
	})
	if !errors.Is(err, errReadOnly) {
		return fmt.Errorf("reading fund %s: %w", id, err)
	}

	if err := dst.CreateFund(ctx, f); err != nil {
		return err
	}
	return dst.WithinFund(ctx, id, func(ctx context.Context, tx store.Tx) error {
		for holder, amount := range balances {
			if err := tx.Vault().MintShares(ctx, holder, amount); err != nil {
				return err
			}
		}
		if err := tx.PutFeeRecords(ctx, records); err != nil {
			return err
		}
		return tx.PutProtocolFeeState(ctx, protocol)
	})
}
