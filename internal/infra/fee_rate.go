package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"unlisted_go/internal/domain"

	"github.com/shopspring/decimal"
)

// StaticFeeRate is a FeeRateSource that never changes.
type StaticFeeRate decimal.Decimal

func (r StaticFeeRate) GetRate() decimal.Decimal {
	return decimal.Decimal(r)
}

// feeConfigResponse is the body of the platform fee configuration endpoint.
type feeConfigResponse struct {
	FeeRate   *decimal.Decimal `json:"feeRate"`
	UpdatedAt string           `json:"updatedAt,omitempty"`
}

// FeeRateClient polls the platform fee configuration endpoint. Until the
// first successful fetch, and whenever a fetch fails, it keeps serving the
// last good rate (initially the configured one).
type FeeRateClient struct {
	onUpdate     func(decimal.Decimal)
	rate         decimal.Decimal
	mu           sync.RWMutex
	pollInterval time.Duration
	retryDelay   time.Duration
	apiURL       string
	httpClient   *http.Client
	signer       *Signer
	metrics      *Metrics
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewFeeRateClient creates a client that starts out serving initial.
func NewFeeRateClient(initial decimal.Decimal, apiURL string, pollIntervalSec int, onUpdate func(decimal.Decimal)) *FeeRateClient {
	c := &FeeRateClient{
		onUpdate:     onUpdate,
		rate:         initial,
		pollInterval: 5 * time.Minute,
		retryDelay:   time.Second,
		apiURL:       apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		metrics: GlobalMetrics,
	}
	if pollIntervalSec > 0 {
		c.pollInterval = time.Duration(pollIntervalSec) * time.Second
	}
	return c
}

// WithSigner authenticates every fetch with s. A nil s sends unsigned requests.
func (c *FeeRateClient) WithSigner(s *Signer) *FeeRateClient {
	c.signer = s
	return c
}

// Start begins polling for fee rate updates
func (c *FeeRateClient) Start(ctx context.Context) error {
	if c.apiURL == "" {
		return &domain.ConfigError{Field: "fee_source.url", Err: errors.New("empty")}
	}
	ctx, c.cancel = context.WithCancel(ctx)

	// Fetch immediately on start
	if err := c.fetchRate(ctx); err != nil {
		slog.Warn("Initial fee rate fetch failed, keeping configured rate",
			slog.String("rate", c.GetRate().String()), slog.Any("error", err))
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Fee rate polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Fee rate polling stopped")
				return
			case <-ticker.C:
				if err := c.fetchRate(ctx); err != nil {
					slog.Warn("Fee rate fetch failed", slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// fetchRate fetches the current fee rate, retrying only retriable failures.
func (c *FeeRateClient) fetchRate(ctx context.Context) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			// Exponential backoff: 1x, 2x
			delay := c.retryDelay * time.Duration(1<<uint(i-1))
			slog.Info("Retrying fee rate fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doFetch(ctx)
		if err == nil {
			c.metrics.SetFeeSourceStale(false)
			return nil
		}
		lastErr = err
		slog.Warn("Fee rate fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
		if !domain.IsRetriable(err) {
			break
		}
	}
	c.metrics.SetFeeSourceStale(true)
	return lastErr
}

func (c *FeeRateClient) doFetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return domain.NewFatalNetworkError("request", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	c.signer.Sign(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("fetch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.NewNetworkError("fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return domain.NewFatalNetworkError("fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("read", err)
	}

	var data feeConfigResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.NewFatalNetworkError("decode", err)
	}
	if data.FeeRate == nil {
		return domain.NewFatalNetworkError("decode", errors.New("feeRate missing from response"))
	}
	newRate := *data.FeeRate
	if newRate.IsNegative() {
		return &domain.ConfigError{Field: "feeRate", Err: fmt.Errorf("must be >= 0, got %s", newRate)}
	}

	c.mu.Lock()
	oldRate := c.rate
	c.rate = newRate
	c.mu.Unlock()

	if !oldRate.Equal(newRate) {
		slog.Info("Fee rate updated",
			slog.String("rate", newRate.String()),
			slog.String("old_rate", oldRate.String()),
		)
		if c.onUpdate != nil {
			c.onUpdate(newRate)
		}
	}

	return nil
}

// Stop stops the polling
func (c *FeeRateClient) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
}

// GetRate returns the current fee rate
func (c *FeeRateClient) GetRate() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

