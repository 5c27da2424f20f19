package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/engine"
	"unlisted_go/internal/infra"
	"unlisted_go/internal/infra/storage"
	"unlisted_go/internal/policy"
	"unlisted_go/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.LogoDownloader // nil when no logo URL is configured
	FeeClient  *infra.FeeRateClient  // nil when the fee rate is static

	Sequencer *engine.Sequencer
	Sweeper   *engine.Sweeper
	Desk      *service.Desk
	Listings  *service.ListingService
	Registry  *prometheus.Registry
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logging, DB, services)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Unlisted Negotiation Desk...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	return b.InitializeWith(cfg)
}

// InitializeWith wires everything from an already loaded config.
func (b *Bootstrap) InitializeWith(cfg *infra.Config) error {
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(storage.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("driver", cfg.Storage.Driver))

	// 4. Fee rate source
	var fees domain.FeeRateSource = infra.StaticFeeRate(cfg.Pricing.FeeRate)
	if cfg.FeeSource.URL != "" {
		b.FeeClient = infra.NewFeeRateClient(cfg.Pricing.FeeRate, cfg.FeeSource.URL, cfg.FeeSource.PollIntervalSec, nil).
			WithSigner(infra.NewSigner(cfg.FeeSource.AccessKey, cfg.FeeSource.SecretKey))
		fees = b.FeeClient
	}
	slog.Info("✅ Fee rate ready", slog.String("rate", fees.GetRate().String()), slog.Bool("polled", b.FeeClient != nil))

	// 5. Negotiation core
	b.Sequencer = engine.NewSequencer(cfg.Negotiation.Shards, cfg.Negotiation.InboxSize)
	b.Desk = service.NewDesk(store, store, fees, b.Sequencer, service.DeskOptions{
		Places:        cfg.Pricing.MinorUnits,
		MaxMessageLen: cfg.Negotiation.MaxMessageLen,
		Metrics:       infra.GlobalMetrics,
	})
	var companies service.CompanyDirectory
	if len(cfg.Companies.Symbols) > 0 {
		companies = store
	}
	b.Listings = service.NewListingService(store, companies, b.Sequencer, cfg.BoostDuration())
	b.Sweeper = engine.NewSweeper(store, b.Desk, policy.NewTTLPolicy(cfg.ProposalTTL()), cfg.SweepInterval())

	// 6. Metrics registry
	b.Registry = prometheus.NewRegistry()
	if err := b.Registry.Register(infra.NewMetricsCollector(infra.GlobalMetrics, b.Sequencer)); err != nil {
		return err
	}

	// 7. Logo Downloader
	if cfg.Companies.LogoURLTemplate != "" {
		downloader, err := infra.NewLogoDownloader(cfg.Companies.LogoDir, cfg.Companies.LogoURLTemplate)
		if err != nil {
			return err
		}
		b.Downloader = downloader
		slog.Info("✅ Logo downloader ready")
	}

	return nil
}

// SyncCompanies registers the configured companies and caches their logos
// in the background.
func (b *Bootstrap) SyncCompanies(ctx context.Context) {
	slog.Info("🔄 Starting company synchronization...", slog.Int("companies", len(b.Config.Companies.Symbols)))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent downloads

	for _, symbol := range b.Config.Companies.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			// 1. Upsert to DB
			company := &domain.CompanyInfo{
				Symbol:   sym,
				Name:     sym, // Default to symbol until an admin names it
				IsActive: true,
			}

			// Keep admin edits and the cached logo
			if existing, _ := b.Storage.GetCompany(sym); existing != nil {
				company.Name = existing.Name
				company.IsActive = existing.IsActive
				company.LogoPath = existing.LogoPath
				company.LastSyncedAt = existing.LastSyncedAt
				company.CreatedAt = existing.CreatedAt
			}

			if err := b.Storage.UpsertCompany(company); err != nil {
				slog.Error("Failed to upsert company", slog.String("symbol", sym), slog.Any("error", err))
				return
			}

			if b.Downloader == nil {
				return
			}

			// 2. Download Logo (if missing)
			path, err := b.Downloader.DownloadLogo(ctx, sym)
			if err != nil {
				slog.Warn("Failed to download logo", slog.String("symbol", sym), slog.Any("error", err))
				return
			}
			company.LogoPath = path
			company.LastSyncedAt = time.Now()
			if err := b.Storage.UpsertCompany(company); err != nil {
				slog.Error("Failed to save logo path", slog.String("symbol", sym), slog.Any("error", err))
			}
		}(symbol)
	}

	wg.Wait()
	slog.Info("✨ Company synchronization completed")
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() {
	if b.FeeClient != nil {
		b.FeeClient.Stop()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}
