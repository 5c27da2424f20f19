package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"unlisted_go/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent on outbound HTTP calls (fee config endpoint, logo CDN)
	DefaultUserAgent = "unlisted-negotiation/1.0 (+https://unlisted.example)"

	DefaultConfigPath = "configs/config.yaml"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Pricing struct {
		FeeRate    decimal.Decimal `yaml:"fee_rate"`
		MinorUnits int32           `yaml:"minor_units"`
		Currency   string          `yaml:"currency"`
	} `yaml:"pricing"`

	// FeeSource optionally refreshes the fee rate from a configuration endpoint.
	// Empty URL keeps Pricing.FeeRate for the life of the process.
	FeeSource struct {
		URL             string `yaml:"url"`
		PollIntervalSec int    `yaml:"poll_interval_sec"`
		AccessKey       string `yaml:"access_key"`
		SecretKey       string `yaml:"secret_key"`
	} `yaml:"fee_source"`

	Negotiation struct {
		ProposalTTLHours int `yaml:"proposal_ttl_hours"`
		SweepIntervalSec int `yaml:"sweep_interval_sec"`
		Shards           int `yaml:"shards"`
		InboxSize        int `yaml:"inbox_size"`
		MaxMessageLen    int `yaml:"max_message_len"`
	} `yaml:"negotiation"`

	Listing struct {
		BoostHours int `yaml:"boost_hours"`
	} `yaml:"listing"`

	Storage struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Companies struct {
		LogoURLTemplate string   `yaml:"logo_url_template"`
		LogoDir         string   `yaml:"logo_dir"`
		Symbols         []string `yaml:"symbols"`
	} `yaml:"companies"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used for anything the file leaves out.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "unlisted-negotiation"
	cfg.App.Version = "dev"
	cfg.Pricing.FeeRate = decimal.RequireFromString("0.02")
	cfg.Pricing.MinorUnits = 2
	cfg.Pricing.Currency = "INR"
	cfg.FeeSource.PollIntervalSec = 300
	cfg.Negotiation.ProposalTTLHours = 72
	cfg.Negotiation.SweepIntervalSec = 60
	cfg.Negotiation.Shards = 8
	cfg.Negotiation.InboxSize = 256
	cfg.Negotiation.MaxMessageLen = 200
	cfg.Listing.BoostHours = 24
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = "data/unlisted.db"
	cfg.Companies.LogoDir = "logos"
	cfg.Server.Addr = "127.0.0.1:6060"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// .env가 있으면 먼저 읽고, 환경 변수로 덮어쓴 뒤 유효성을 검사합니다.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables always win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ParseConfig decodes yaml over DefaultConfig without env overrides or validation.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Pricing.FeeRate.IsNegative() {
		return &domain.ConfigError{Field: "pricing.fee_rate", Err: fmt.Errorf("must be >= 0, got %s", c.Pricing.FeeRate)}
	}
	if c.Pricing.MinorUnits < 0 || c.Pricing.MinorUnits > 8 {
		return &domain.ConfigError{Field: "pricing.minor_units", Err: fmt.Errorf("must be within 0..8, got %d", c.Pricing.MinorUnits)}
	}
	if c.FeeSource.URL != "" {
		if !hasPrefix(c.FeeSource.URL, "http://") && !hasPrefix(c.FeeSource.URL, "https://") {
			return &domain.ConfigError{Field: "fee_source.url", Err: fmt.Errorf("invalid URL: %s", c.FeeSource.URL)}
		}
		if c.FeeSource.PollIntervalSec <= 0 {
			return &domain.ConfigError{Field: "fee_source.poll_interval_sec", Err: errors.New("must be positive")}
		}
	}

	n := c.Negotiation
	switch {
	case n.ProposalTTLHours <= 0:
		return &domain.ConfigError{Field: "negotiation.proposal_ttl_hours", Err: errors.New("must be positive")}
	case n.SweepIntervalSec <= 0:
		return &domain.ConfigError{Field: "negotiation.sweep_interval_sec", Err: errors.New("must be positive")}
	case n.Shards <= 0:
		return &domain.ConfigError{Field: "negotiation.shards", Err: errors.New("must be positive")}
	case n.InboxSize < 0:
		return &domain.ConfigError{Field: "negotiation.inbox_size", Err: errors.New("must not be negative")}
	case n.MaxMessageLen <= 0:
		return &domain.ConfigError{Field: "negotiation.max_message_len", Err: errors.New("must be positive")}
	}

	if c.Listing.BoostHours <= 0 {
		return &domain.ConfigError{Field: "listing.boost_hours", Err: errors.New("must be positive")}
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return &domain.ConfigError{Field: "storage.path", Err: errors.New("required for sqlite")}
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("required for postgres")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
	}

	if c.Companies.LogoURLTemplate != "" && !strings.Contains(c.Companies.LogoURLTemplate, "%s") {
		return &domain.ConfigError{Field: "companies.logo_url_template", Err: errors.New("must contain %s for the symbol")}
	}

	return nil
}

// ProposalTTL returns the configured expiry window.
func (c *Config) ProposalTTL() time.Duration {
	return time.Duration(c.Negotiation.ProposalTTLHours) * time.Hour
}

// SweepInterval returns how often open proposals are checked for expiry.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Negotiation.SweepIntervalSec) * time.Second
}

// BoostDuration returns how long one boost extends a listing's visibility.
func (c *Config) BoostDuration() time.Duration {
	return time.Duration(c.Listing.BoostHours) * time.Hour
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if rate := os.Getenv("UNLISTED_FEE_RATE"); rate != "" {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return &domain.ConfigError{Field: "UNLISTED_FEE_RATE", Err: err}
		}
		cfg.Pricing.FeeRate = d
	}
	if dsn := os.Getenv("UNLISTED_DATABASE_DSN"); dsn != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DSN = dsn
	}
	if key := os.Getenv("UNLISTED_FEE_ACCESS_KEY"); key != "" {
		cfg.FeeSource.AccessKey = key
	}
	if secret := os.Getenv("UNLISTED_FEE_SECRET_KEY"); secret != "" {
		cfg.FeeSource.SecretKey = secret
	}
	if level := os.Getenv("UNLISTED_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	return nil
}
