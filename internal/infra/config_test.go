package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"unlisted_go/internal/domain"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("UNLISTED_FEE_RATE", "")
	t.Setenv("UNLISTED_DATABASE_DSN", "")
	t.Setenv("UNLISTED_LOG_LEVEL", "")

	path := writeConfig(t, `
app:
  name: "desk"
pricing:
  fee_rate: "0.025"
  minor_units: 2
negotiation:
  proposal_ttl_hours: 24
storage:
  driver: sqlite
  path: "/tmp/x.db"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "desk" {
		t.Errorf("Expected name desk, got %s", cfg.App.Name)
	}
	if !cfg.Pricing.FeeRate.Equal(decimal.RequireFromString("0.025")) {
		t.Errorf("Expected fee rate 0.025, got %s", cfg.Pricing.FeeRate)
	}
	if cfg.ProposalTTL().Hours() != 24 {
		t.Errorf("Expected ttl 24h, got %v", cfg.ProposalTTL())
	}
	// Unset keys keep their defaults
	if cfg.Negotiation.MaxMessageLen != 200 || cfg.Negotiation.Shards != 8 {
		t.Errorf("Expected defaults, got %+v", cfg.Negotiation)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("UNLISTED_FEE_RATE", "0.015")
	t.Setenv("UNLISTED_DATABASE_DSN", "host=db user=u dbname=unlisted")
	t.Setenv("UNLISTED_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, "app:\n  name: desk\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Pricing.FeeRate.Equal(decimal.RequireFromString("0.015")) {
		t.Errorf("Expected env fee rate, got %s", cfg.Pricing.FeeRate)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
		t.Errorf("Expected postgres from env, got %s", cfg.Storage.Driver)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("UNLISTED_DATABASE_DSN", "")
	t.Setenv("UNLISTED_LOG_LEVEL", "")

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("UNLISTED_FEE_RATE", "")
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, domain.ErrConfigNotFound) {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("negative fee rate", func(t *testing.T) {
		t.Setenv("UNLISTED_FEE_RATE", "")
		_, err := LoadConfig(writeConfig(t, "pricing:\n  fee_rate: \"-0.01\"\n"))
		if !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
		}
		if domain.IsRetriable(err) {
			t.Error("Config errors are never retriable")
		}
	})

	t.Run("bad env fee rate", func(t *testing.T) {
		t.Setenv("UNLISTED_FEE_RATE", "two percent")
		_, err := LoadConfig(writeConfig(t, "app:\n  name: desk\n"))
		if !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"minor units", func(c *Config) { c.Pricing.MinorUnits = 9 }, "pricing.minor_units"},
		{"ttl", func(c *Config) { c.Negotiation.ProposalTTLHours = 0 }, "negotiation.proposal_ttl_hours"},
		{"shards", func(c *Config) { c.Negotiation.Shards = 0 }, "negotiation.shards"},
		{"message", func(c *Config) { c.Negotiation.MaxMessageLen = -1 }, "negotiation.max_message_len"},
		{"driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"fee source url", func(c *Config) { c.FeeSource.URL = "ftp://x" }, "fee_source.url"},
		{"logo template", func(c *Config) { c.Companies.LogoURLTemplate = "https://cdn/logo.png" }, "companies.logo_url_template"},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}
