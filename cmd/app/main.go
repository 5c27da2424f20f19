package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unlisted_go/internal/app"
	"unlisted_go/internal/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", infra.DefaultConfigPath, "path to config.yaml")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Metrics + Pprof Server (localhost by default)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(bootstrap.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("🕵️ Metrics/pprof server started", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// 4. Background company sync
	go bootstrap.SyncCompanies(ctx)

	// 5. Sequencer (per-proposal serialization)
	seqDone := make(chan struct{})
	go func() {
		bootstrap.Sequencer.Run(ctx)
		close(seqDone)
	}()
	slog.InfoContext(ctx, "✅ Sequencer started", slog.Int("shards", cfg.Negotiation.Shards))

	// 6. Expiry sweeper
	go bootstrap.Sweeper.Run(ctx)
	slog.InfoContext(ctx, "✅ Expiry sweeper started", slog.Duration("ttl", cfg.ProposalTTL()))

	// 7. Fee rate polling
	if bootstrap.FeeClient != nil {
		if err := bootstrap.FeeClient.Start(ctx); err != nil {
			slog.Error("Failed to start fee rate client", slog.Any("error", err))
		}
	}

	slog.InfoContext(ctx, "✨ Negotiation desk fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Metrics server shutdown", slog.Any("error", err))
	}
	<-seqDone
}
