// Package export writes settlement ledgers and fund valuations to spreadsheets.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/feemanager"
	"github.com/mtlprog/fundfee/internal/fund"
	"github.com/mtlprog/fundfee/internal/protocolfee"
	"github.com/mtlprog/fundfee/internal/store"
)

// SettlementRow is one executed fee instruction.
type SettlementRow struct {
	At         time.Time
	FundID     domain.FundID
	BatchID    string
	Source     string
	FeeType    domain.FeeType
	Settlement domain.SettlementType
	Payer      string
	Payee      string
	Shares     decimal.Decimal
}

// FundRow is the valuation of one fund at export time.
type FundRow struct {
	At           time.Time
	FundID       domain.FundID
	Denomination domain.AssetID
	GAV          decimal.Decimal
	SharesSupply decimal.Decimal
	SharePrice   decimal.Decimal
	Valid        bool
}

// Report is everything written by one export run.
type Report struct {
	At          time.Time
	Settlements []SettlementRow
	Funds       []FundRow
}

// Writer writes a report to a spreadsheet destination.
type Writer interface {
	Write(ctx context.Context, report Report) error
}

// FundReader reads funds, their valuations and their settlement history.
type FundReader interface {
	Get(ctx context.Context, id domain.FundID) (domain.Fund, error)
	Value(ctx context.Context, id domain.FundID) (fund.Valuation, error)
	Settlements(ctx context.Context, id domain.FundID, limit int) ([]store.Batch, error)
}

// PrecisionFunc returns the decimal precision of an asset.
type PrecisionFunc func(domain.AssetID) uint8

// Service builds reports and delegates writing to a Writer.
type Service struct {
	funds     FundReader
	precision PrecisionFunc
	writer    Writer
	now       func() time.Time
}

// NewService creates a new export Service. A nil precision treats every denomination
// as a Stellar asset.
func NewService(funds FundReader, precision PrecisionFunc, writer Writer) *Service {
	if precision == nil {
		precision = func(domain.AssetID) uint8 { return domain.StellarPrecision }
	}
	return &Service{funds: funds, precision: precision, writer: writer, now: time.Now}
}

// Export writes the settlements of one tick round and the current fund valuations.
// Implements worker.AfterTickHook.
func (s *Service) Export(ctx context.Context, results []fund.TickResult) error {
	report := Report{At: s.now().UTC()}
	for _, res := range results {
		f, err := s.funds.Get(ctx, res.FundID)
		if err != nil {
			slog.Warn("export: fund unavailable", "fund", res.FundID, "error", err)
			continue
		}
		report.Settlements = append(report.Settlements, tickRows(f, res, report.At)...)
		if row, ok := s.fundRow(ctx, f); ok {
			report.Funds = append(report.Funds, row)
		}
	}
	return s.writer.Write(ctx, report)
}

// ExportHistory writes up to limit recent settlement batches of each fund.
func (s *Service) ExportHistory(ctx context.Context, ids []domain.FundID, limit int) (Report, error) {
	report := Report{At: s.now().UTC()}
	for _, id := range ids {
		f, err := s.funds.Get(ctx, id)
		if err != nil {
			return Report{}, fmt.Errorf("loading fund %s: %w", id, err)
		}
		batches, err := s.funds.Settlements(ctx, id, limit)
		if err != nil {
			return Report{}, fmt.Errorf("loading settlements of %s: %w", id, err)
		}
		// Oldest first reads naturally in a ledger.
		slices.Reverse(batches)
		for _, b := range batches {
			report.Settlements = append(report.Settlements, batchRows(f, b)...)
		}
		if row, ok := s.fundRow(ctx, f); ok {
			report.Funds = append(report.Funds, row)
		}
	}
	if err := s.writer.Write(ctx, report); err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Service) fundRow(ctx context.Context, f domain.Fund) (FundRow, bool) {
	v, err := s.funds.Value(ctx, f.ID)
	if err != nil {
		slog.Warn("export: valuation unavailable", "fund", f.ID, "error", err)
		return FundRow{}, false
	}
	denom := s.precision(f.Denomination)
	return FundRow{
		At:           v.At.UTC(),
		FundID:       f.ID,
		Denomination: f.Denomination,
		GAV:          toDecimal(v.GAV, denom),
		SharesSupply: toDecimal(v.SharesSupply, f.SharePrecision),
		SharePrice:   toDecimal(v.SharePrice, denom),
		Valid:        v.Valid,
	}, true
}

func batchRows(f domain.Fund, b store.Batch) []SettlementRow {
	return instructionRows(f, b.CreatedAt, b.ID.String(), b.Source, b.Instructions)
}

func tickRows(f domain.Fund, res fund.TickResult, at time.Time) []SettlementRow {
	var rows []SettlementRow
	for _, r := range lo.Compact([]*feemanager.Result{res.Continuous, res.Payout}) {
		rows = append(rows, instructionRows(f, at, batchID(r.BatchID), r.Source, r.Instructions)...)
	}
	if p := res.Protocol; p != nil && p.Shares.IsPositive() {
		rows = append(rows, SettlementRow{
			At:         at,
			FundID:     f.ID,
			BatchID:    batchID(p.BatchID),
			Source:     protocolfee.Source,
			FeeType:    protocolfee.FeeType,
			Settlement: domain.SettlementMint,
			Shares:     toDecimal(p.Shares, f.SharePrecision),
		})
	}
	return rows
}

func instructionRows(f domain.Fund, at time.Time, batch, source string, ins []domain.Instruction) []SettlementRow {
	return lo.Map(ins, func(in domain.Instruction, _ int) SettlementRow {
		return SettlementRow{
			At:         at,
			FundID:     f.ID,
			BatchID:    batch,
			Source:     source,
			FeeType:    in.FeeType,
			Settlement: in.Type,
			Payer:      in.Payer,
			Payee:      in.Payee,
			Shares:     toDecimal(in.Shares, f.SharePrecision),
		}
	})
}

func batchID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// toDecimal scales an integer amount by its precision.
func toDecimal(amount sdkmath.Int, precision uint8) decimal.Decimal {
	if amount.IsNil() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.BigInt(), -int32(precision))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
