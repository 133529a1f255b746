package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/fundfee/internal/classifier"
	"github.com/mtlprog/fundfee/internal/config"
	"github.com/mtlprog/fundfee/internal/database"
	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/export"
	"github.com/mtlprog/fundfee/internal/fund"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/store/memory"
	"github.com/mtlprog/fundfee/internal/worker"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending database migrations",
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := database.Connect(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrations, err := migrationsSub()
			if err != nil {
				return err
			}
			n, err := database.RunMigrations(c.Context, pool, migrations)
			if err != nil {
				return err
			}
			slog.Info("migrations complete", "applied", n)
			return nil
		},
	}
}

func tickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "run one continuous settlement round",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "fund", Usage: "fund to tick (default: all)"},
			&cli.BoolFlag{Name: "refresh", Usage: "refresh rates before ticking"},
			&cli.BoolFlag{Name: "dry-run", Usage: "settle against an in-memory copy and print the result"},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c.Context)
			if err != nil {
				return err
			}
			defer a.close()

			if c.Bool("refresh") {
				worker.NewRateWorker(a.refresher, a.syncPools, 0).RunOnce(c.Context)
			}

			ids, err := fundIDs(c, a.store)
			if err != nil {
				return err
			}

			var st store.FundStore = a.store
			if c.Bool("dry-run") {
				mem := memory.New()
				for _, id := range ids {
					if err := copyFund(c.Context, a.store, mem, id); err != nil {
						return err
					}
				}
				st = mem
			}

			funds := a.fundService(st)
			results := make([]fund.TickResult, 0, len(ids))
			var errs []error
			for _, id := range ids {
				res, err := funds.Tick(c.Context, id)
				if err != nil {
					errs = append(errs, fmt.Errorf("fund %s: %w", id, err))
				}
				results = append(results, res)
			}
			if err := printJSON(results); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func fundIDs(c *cli.Context, st store.FundStore) ([]domain.FundID, error) {
	if names := c.StringSlice("fund"); len(names) > 0 {
		ids := make([]domain.FundID, len(names))
		for i, n := range names {
			ids[i] = domain.FundID(n)
		}
		return ids, nil
	}
	funds, err := st.ListFunds(c.Context)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.FundID, len(funds))
	for i, f := range funds {
		ids[i] = f.ID
	}
	return ids, nil
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "export settlement history and valuations",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "fund", Usage: "fund to export (default: all)"},
			&cli.StringFlag{Name: "out", Usage: "write an .xlsx workbook to this path"},
			&cli.BoolFlag{Name: "sheets", Usage: "append to the configured Google spreadsheet"},
			&cli.IntFlag{Name: "limit", Value: 1000, Usage: "settlement batches per fund"},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c.Context)
			if err != nil {
				return err
			}
			defer a.close()

			funds := a.fundService(a.store)
			var svc *export.Service
			switch {
			case c.String("out") != "":
				svc = export.NewService(funds, a.precision, export.NewXLSXWriter(c.String("out")))
			case c.Bool("sheets"):
				if svc, err = a.sheetsExporter(c.Context, funds); err != nil {
					return err
				}
				if svc == nil {
					return errors.New("GOOGLE_SHEETS_ID and GOOGLE_CREDENTIALS_JSON are required for --sheets")
				}
			default:
				return errors.New("one of --out or --sheets is required")
			}

			ids, err := fundIDs(c, a.store)
			if err != nil {
				return err
			}
			report, err := svc.ExportHistory(c.Context, ids, c.Int("limit"))
			if err != nil {
				return err
			}
			slog.Info("export complete", "funds", len(report.Funds), "settlements", len(report.Settlements))
			return nil
		},
	}
}

func assetCommand() *cli.Command {
	return &cli.Command{
		Name:  "asset",
		Usage: "manage the asset classification table",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "register an asset",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Usage: `asset id: "native", CODE:ISSUER or a symbol`},
					&cli.UintFlag{Name: "precision", Value: uint(domain.StellarPrecision)},
					&cli.StringFlag{Name: "kind", Value: classifier.Primitive.String(), Usage: "primitive, derivative or unsupported"},
					&cli.StringSliceFlag{Name: "component", Usage: "ASSET=AMOUNT_PER_UNIT for derivatives"},
				},
				Action: func(c *cli.Context) error {
					rec, err := assetRecord(c)
					if err != nil {
						return err
					}
					a, err := openApp(c.Context)
					if err != nil {
						return err
					}
					defer a.close()

					// Validate against the loaded table before persisting.
					if err := rec.Register(a.assets); err != nil {
						return err
					}
					if err := a.store.SaveAsset(c.Context, rec); err != nil {
						return err
					}
					return printJSON(rec)
				},
			},
			{
				Name:  "list",
				Usage: "list registered assets",
				Action: func(c *cli.Context) error {
					a, err := openApp(c.Context)
					if err != nil {
						return err
					}
					defer a.close()

					recs, err := a.store.LoadAssets(c.Context)
					if err != nil {
						return err
					}
					return printJSON(recs)
				},
			},
		},
	}
}

func assetRecord(c *cli.Context) (store.AssetRecord, error) {
	if c.Uint("precision") > 36 {
		return store.AssetRecord{}, fmt.Errorf("precision %d above 36", c.Uint("precision"))
	}
	kind, err := classifier.ParseKind(c.String("kind"))
	if err != nil {
		return store.AssetRecord{}, err
	}
	rec := store.AssetRecord{
		Asset: domain.Asset{ID: domain.AssetID(c.String("id")), Precision: uint8(c.Uint("precision"))},
		Kind:  kind,
	}
	for _, raw := range c.StringSlice("component") {
		asset, amount, ok := strings.Cut(raw, "=")
		if !ok {
			return store.AssetRecord{}, fmt.Errorf("component %q: want ASSET=AMOUNT", raw)
		}
		perUnit, ok := sdkmath.NewIntFromString(amount)
		if !ok {
			return store.AssetRecord{}, fmt.Errorf("component %q: invalid amount", raw)
		}
		rec.Components = append(rec.Components, classifier.Component{Asset: domain.AssetID(asset), AmountPerUnit: perUnit})
	}
	return rec, nil
}

func feedCommand() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "manage rate feeds",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "configure the source of one rate",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "base", Required: true},
					&cli.StringFlag{Name: "quote", Value: string(domain.EURMTLAssetID)},
					&cli.StringFlag{Name: "source", Value: "horizon", Usage: "horizon, coingecko or dataentry"},
				},
				Action: func(c *cli.Context) error {
					a, err := openApp(c.Context)
					if err != nil {
						return err
					}
					defer a.close()

					base, ok := a.assets.Asset(domain.AssetID(c.String("base")))
					if !ok {
						return fmt.Errorf("base asset %s is not registered", c.String("base"))
					}
					quote, ok := a.assets.Asset(domain.AssetID(c.String("quote")))
					if !ok {
						return fmt.Errorf("quote asset %s is not registered", c.String("quote"))
					}
					feed := oracle.Feed{Base: base, Quote: quote, Source: c.String("source")}
					if _, err := oracle.Adapters([]oracle.Feed{feed}, a.sources()...); err != nil {
						return err
					}
					if err := a.store.SaveFeed(c.Context, feed); err != nil {
						return err
					}
					return printJSON(feed)
				},
			},
			{
				Name:  "list",
				Usage: "list rate feeds",
				Action: func(c *cli.Context) error {
					a, err := openApp(c.Context)
					if err != nil {
						return err
					}
					defer a.close()

					feeds, err := a.store.LoadFeeds(c.Context)
					if err != nil {
						return err
					}
					return printJSON(feeds)
				},
			},
		},
	}
}
