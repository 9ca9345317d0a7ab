package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"certledger/internal/app"
	"certledger/internal/platform/config"
	"certledger/internal/platform/httpserver"
	"certledger/internal/platform/logger"
)

// main wires configuration into the application, serves the HTTP API and,
// when enabled, runs the ledger event watcher until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("certledger stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	// The server starts with an empty listing if the ledger is down; the next
	// refresh or issuance fills it.
	if err := a.Warm(ctx); err != nil {
		log.WarnContext(ctx, "initial certificate load failed", "error", err)
	}

	srv := httpserver.New(cfg.Server, a.Router())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting certledger", "addr", cfg.Server.Addr, "ledger_backend", cfg.Ledger.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if w := a.Watcher(); w != nil {
		g.Go(func() error {
			// Explicit refreshes still work without notifications.
			if err := w.Run(gctx); err != nil {
				log.WarnContext(gctx, "ledger event watch stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down certledger")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
