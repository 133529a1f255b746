package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/fundfee/internal/api"
	"github.com/mtlprog/fundfee/internal/database"
	"github.com/mtlprog/fundfee/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API with the rate and continuous workers",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-workers", Usage: "serve the API only"},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	ctx, stop := context.WithCancel(c.Context)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	migrations, err := migrationsSub()
	if err != nil {
		return err
	}
	if _, err := database.RunMigrations(ctx, a.pool, migrations); err != nil {
		return err
	}

	funds := a.fundService(a.store)

	var wg sync.WaitGroup
	if !c.Bool("no-workers") {
		rates := worker.NewRateWorker(a.refresher, a.syncPools, a.cfg.RateWorkerInterval)
		wg.Go(func() { rates.Run(ctx) })

		var hook worker.AfterTickHook
		exporter, err := a.sheetsExporter(ctx, funds)
		if err != nil {
			slog.Error("Google Sheets export disabled", "error", err)
		} else if exporter != nil {
			hook = exporter
		}
		continuous := worker.NewContinuousWorker(funds, a.cfg.ContinuousSchedule, hook)
		wg.Go(func() {
			if err := continuous.Run(ctx); err != nil {
				slog.Error("continuous worker stopped", "error", err)
				stop()
			}
		})
	}

	if a.cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, mutating endpoints are unprotected")
	}

	srv := api.NewServer(a.cfg.HTTPPort, funds, a.refresher, a.cfg.AdminAPIKey)
	go func() {
		slog.Info("HTTP server listening", "port", a.cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}
