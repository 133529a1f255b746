package oracle

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/horizon"
)

// pathPrice prices one whole unit via path finding.
// Primary: strictSend. Fallback: strictReceive.
func (s *HorizonSource) pathPrice(ctx context.Context, base, quote domain.AssetID) (decimal.Decimal, error) {
	paths, err := s.client.FetchStrictSendPaths(ctx, base, "1", quote)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		slog.Warn("strictSend failed, trying strictReceive",
			"base", base, "quote", quote, "error", err)
	} else if len(paths) > 0 {
		if price, ok := pathRecordPrice(paths[0], base, quote); ok {
			return price, nil
		}
	}

	paths, err = s.client.FetchStrictReceivePaths(ctx, base, quote, "1")
	if err != nil {
		return decimal.Zero, err
	}
	if len(paths) == 0 {
		return decimal.Zero, ErrNoPrice
	}

	price, ok := pathRecordPrice(paths[0], base, quote)
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

func pathRecordPrice(record horizon.HorizonPathRecord, base, quote domain.AssetID) (decimal.Decimal, bool) {
	srcAmount, err := decimal.NewFromString(record.SourceAmount)
	if err != nil {
		slog.Warn("unparseable path source amount",
			"base", base, "quote", quote, "value", record.SourceAmount, "error", err)
		return decimal.Zero, false
	}
	if srcAmount.IsZero() {
		slog.Warn("zero path source amount", "base", base, "quote", quote)
		return decimal.Zero, false
	}

	destAmount, err := decimal.NewFromString(record.DestinationAmount)
	if err != nil {
		slog.Warn("unparseable path destination amount",
			"base", base, "quote", quote, "value", record.DestinationAmount, "error", err)
		return decimal.Zero, false
	}

	return destAmount.Div(srcAmount), true
}
