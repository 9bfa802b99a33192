// Command marketd is the production entry point for the room-auction
// market: it loads configuration, opens the store, wires every engine
// through internal/service, starts the optional read-only dashboard, and
// reprices future auctions once an hour against the wall clock until told
// to stop.
//
// Architecture:
//
//	main.go                  — entry point: loads config, wires service, waits for SIGINT/SIGTERM
//	internal/service         — external-interfaces façade (spec §6): Admin/Market/Agents/Booking/Simulation/GridSearch
//	internal/auction         — Dutch auction state machine, bid admission, tick scheduling
//	internal/pricing         — periodic repricing of future auctions from learned demand
//	internal/limitorder      — standing buy orders that fire when price crosses their threshold
//	internal/booking         — atomic settlement, capacity/duplicate/overlap checks, split/sell-back
//	internal/catalogue       — resources, time slots, AdminConfig singleton, CSV ingest
//	internal/ledger          — token balances and the append-only transaction log
//	internal/store           — gorm-backed transactional persistence (sqlite or postgres)
//	internal/api             — read-only HTTP/WebSocket dashboard over internal/service
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomauction/internal/api"
	"roomauction/internal/clock"
	"roomauction/internal/config"
	"roomauction/internal/service"
	"roomauction/internal/store"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ROOMAUCTION_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(newHandler(cfg.Logging))

	db, err := store.Open(cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	clk := clock.Real{}
	svc := service.New(db.DB(), clk, logger)

	ctx := context.Background()
	if _, err := svc.Admin.GetConfig(ctx, cfg.Defaults()); err != nil {
		logger.Error("failed to seed admin config", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, svc, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	stop := make(chan struct{})
	go runRepricingLoop(ctx, svc, cfg, logger, stop)

	logger.Info("roomauction market started",
		"dsn", cfg.Store.DSN,
		"max_bookings_per_agent", cfg.Market.MaxBookingsPerAgent,
		"dashboard", cfg.Dashboard.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	close(stop)
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}
}

// runRepricingLoop recomputes auction prices from learned demand once an
// hour on a real-time ticker. The simulator has no counterpart: its
// auctions open at the configured Dutch start price and are not repriced.
func runRepricingLoop(ctx context.Context, svc *service.Service, cfg *config.Config, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := svc.Admin.Reprice(ctx, time.Now(), cfg.Pricing.HorizonDays); err != nil {
				logger.Error("reprice failed", "error", err)
			}
		}
	}
}

func newHandler(cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
