package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/changeonly/changeonly/internal/alerts"
	"github.com/changeonly/changeonly/internal/api"
	"github.com/changeonly/changeonly/internal/config"
	"github.com/changeonly/changeonly/internal/edgar"
	"github.com/changeonly/changeonly/internal/scheduler"
	"github.com/changeonly/changeonly/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("changeonly starting", "port", cfg.Port)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready")

	// EDGAR client behind the shared throttle
	throttle := edgar.NewThrottle(cfg.RateCapacity, cfg.RateRefillPerSec)
	client, err := edgar.NewClient(edgar.ClientConfig{
		UserAgent:   cfg.SECUserAgent,
		Timeout:     cfg.FetchTimeout,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		MaxAttempts: cfg.MaxAttempts,
	}, throttle, slog.Default())
	if err != nil {
		slog.Error("failed to build EDGAR client", "error", err)
		os.Exit(1)
	}
	slog.Info("EDGAR client ready", "capacity", cfg.RateCapacity, "refill_per_sec", cfg.RateRefillPerSec)

	// NATS alert publisher
	publisher, err := alerts.NewPublisher(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Poll scheduler — the main pipeline
	sched := scheduler.New(scheduler.Config{
		PollInterval:   cfg.PollInterval,
		Tick:           cfg.Tick,
		BackoffBase:    cfg.PollBackoffBase,
		BackoffCap:     cfg.PollBackoffCap,
		Workers:        cfg.Workers,
		FilingsPerPoll: cfg.FilingsPerPoll,
	}, db, client, publisher, slog.Default())
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	// HTTP API
	srv := api.NewServer(cfg.Port, db, client)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("changeonly ready", "port", cfg.Port, "poll_interval", cfg.PollInterval)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
		cancel()
		<-schedDone
	case err := <-schedDone:
		if err != nil {
			slog.Error("scheduler stopped", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("changeonly stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
