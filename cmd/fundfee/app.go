package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/config"
	"github.com/mtlprog/fundfee/internal/database"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/export"
	"github.com/mtlprog/fundfee/internal/feemanager"
	"github.com/mtlprog/fundfee/internal/fund"
	"github.com/mtlprog/fundfee/internal/horizon"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/protocolfee"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/store/postgres"
	"github.com/mtlprog/fundfee/internal/valuation"
)

// app holds the long-lived components shared by all commands.
type app struct {
	cfg       config.Config
	pool      *pgxpool.Pool
	store     *postgres.Store
	assets    *classifier.Registry
	horizon   *horizon.Client
	refresher *oracle.Refresher
	provider  *valuation.Provider
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		pool:    pool,
		store:   postgres.New(pool),
		assets:  classifier.NewRegistry(),
		horizon: horizon.NewClient(cfg.HorizonURL, cfg.HorizonRetryMax, cfg.HorizonRetryBaseDelay),
	}

	n, err := store.LoadRegistry(ctx, a.store, a.assets)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading assets: %w", err)
	}
	for _, base := range []domain.AssetID{domain.EURMTLAssetID, domain.NativeAssetID} {
		if _, ok := a.assets.Asset(base); !ok {
			if err := a.assets.RegisterPrimitive(domain.Asset{ID: base, Precision: domain.StellarPrecision}); err != nil {
				pool.Close()
				return nil, err
			}
		}
	}
	slog.Info("assets loaded", "count", n)

	feeds, err := a.store.LoadFeeds(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading feeds: %w", err)
	}
	adapters, err := oracle.Adapters(feeds, a.sources()...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.refresher = oracle.NewRefresher(adapters, a.store, cfg.RateStaleThreshold)
	if err := a.refresher.Load(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	a.provider = &valuation.Provider{
		Assets:       a.assets,
		Rates:        a.refresher,
		Intermediate: domain.AssetID(cfg.IntermediateAsset),
		StaleAfter:   cfg.RateStaleThreshold,
	}
	return a, nil
}

func (a *app) close() {
	a.pool.Close()
}

func (a *app) sources() []oracle.Source {
	coingecko := oracle.NewCoinGeckoSource(a.cfg.CoinGeckoURL, a.cfg.CoinGeckoDelay, a.cfg.CoinGeckoRetryMax, domain.EURMTLAssetID)
	sources := []oracle.Source{oracle.NewHorizonSource(a.horizon), coingecko}
	if a.cfg.DataEntryAccount != "" {
		sources = append(sources, oracle.NewDataEntrySource(a.horizon, a.cfg.DataEntryAccount, domain.EURMTLAssetID, coingecko))
	}
	return sources
}

// syncPools refreshes the decomposition of every registered liquidity pool share.
func (a *app) syncPools(ctx context.Context) (int, error) {
	ids := lo.FilterMap(a.assets.Assets(), func(asset domain.Asset, _ int) (domain.AssetID, bool) {
		return asset.ID, strings.HasPrefix(string(asset.ID), oracle.PoolAssetPrefix)
	})
	return oracle.SyncPools(ctx, a.horizon, a.assets, ids)
}

// fundService wires the engine over st.
func (a *app) fundService(st store.FundStore) *fund.Service {
	if a.cfg.ProtocolFeeRecipient == "" {
		slog.Warn("PROTOCOL_FEE_RECIPIENT not set, protocol fee settlement will fail once a rate is set")
	}
	return fund.NewService(
		st,
		feemanager.New(st, a.provider),
		protocolfee.New(st, a.cfg.ProtocolFeeRecipient),
		a.provider,
		a.horizon,
	)
}

func (a *app) precision(id domain.AssetID) uint8 {
	if asset, ok := a.assets.Asset(id); ok && asset.Precision > 0 {
		return asset.Precision
	}
	return domain.StellarPrecision
}

// sheetsExporter returns an export service writing to Google Sheets, or nil when
// Sheets is not configured.
func (a *app) sheetsExporter(ctx context.Context, funds export.FundReader) (*export.Service, error) {
	if a.cfg.GoogleSheetsID == "" || a.cfg.GoogleCredentialsJSON == "" {
		return nil, nil
	}
	w, err := export.NewSheetsWriter(ctx, a.cfg.GoogleSheetsID, a.cfg.GoogleCredentialsJSON)
	if err != nil {
		return nil, err
	}
	return export.NewService(funds, a.precision, w), nil
}
