package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "valuation_kernel/pkg/api/valuation"
	"valuation_kernel/pkg/core/config"
	"valuation_kernel/pkg/core/logging"
	"valuation_kernel/pkg/core/scenario"
	"valuation_kernel/pkg/core/store"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The run audit store is optional.
	var runs api.RunStore
	if cfg.Database.URL != "" {
		if err := store.InitDB(ctx, cfg.Database.URL, cfg.Database.MaxConns); err != nil {
			return err
		}
		defer store.Close()
		repo := store.NewRunRepo(store.GetPool())
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		runs = repo
		logger.Info("run store enabled")
	} else {
		logger.Info("run store disabled, DATABASE_URL not set")
	}

	engine := scenario.NewEngine(cfg.Scenario.Workers)
	handler := api.NewHandler(engine, runs, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("scenario_workers", engine.Workers()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
