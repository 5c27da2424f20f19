package app

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/infra"
	"unlisted_go/internal/service"

	"github.com/shopspring/decimal"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := infra.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "data", "app.db")
	cfg.Logging.Dir = filepath.Join(dir, "logs")
	cfg.Companies.LogoDir = filepath.Join(dir, "logos")
	return cfg
}

func TestBootstrap_InitializeWith(t *testing.T) {
	b := NewBootstrap()
	if err := b.InitializeWith(testConfig(t)); err != nil {
		t.Fatalf("InitializeWith failed: %v", err)
	}
	defer b.Close()

	if b.Desk == nil || b.Listings == nil || b.Sweeper == nil || b.Sequencer == nil {
		t.Fatal("Expected negotiation core to be wired")
	}
	if b.FeeClient != nil || b.Downloader != nil {
		t.Error("Fee polling and logo download should be off by default")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Sequencer.Run(ctx)

	l, err := b.Listings.Create(ctx, service.CreateListingRequest{
		Type: domain.ListingSell, CompanySymbol: "NSE", OwnerID: "seller-1",
		Price: decimal.NewFromInt(100), Quantity: 500, MinLot: 10,
	})
	if err != nil {
		t.Fatalf("Create listing failed: %v", err)
	}
	_, res, err := b.Desk.Submit(ctx, service.SubmitRequest{
		ListingID: l.ID, ProposerID: "buyer-1", Price: decimal.NewFromInt(110), Quantity: 50,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Pricing.Total.Equal(decimal.NewFromInt(5610)) {
		t.Errorf("Expected total 5610, got %s", res.Pricing.Total)
	}

	if _, err := b.Registry.Gather(); err != nil {
		t.Errorf("Gather failed: %v", err)
	}
}

func TestBootstrap_SyncCompanies(t *testing.T) {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 48, 48)))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.Companies.Symbols = []string{"NSE", "TATA"}
	cfg.Companies.LogoURLTemplate = server.URL + "/%s.png"

	b := NewBootstrap()
	if err := b.InitializeWith(cfg); err != nil {
		t.Fatalf("InitializeWith failed: %v", err)
	}
	defer b.Close()

	b.SyncCompanies(context.Background())

	all, err := b.Storage.GetAllCompanies()
	if err != nil {
		t.Fatalf("GetAllCompanies failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 companies, got %d", len(all))
	}
	for _, c := range all {
		if !c.IsActive || c.LogoPath == "" {
			t.Errorf("Expected active company with logo, got %+v", c)
			continue
		}
		if _, err := os.Stat(c.LogoPath); err != nil {
			t.Errorf("Logo file missing for %s: %v", c.Symbol, err)
		}
	}
}
