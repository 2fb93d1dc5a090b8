// Package exchangerate provides USD/VND rate fetching and caching functionality.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/forecaster/internal/clientdata"
	"github.com/rs/zerolog"
)

// CacheFile is the name of the rate cache file
const CacheFile = "usd_vnd_rate.json"

// Defaults used when Config fields are zero
const (
	DefaultURL      = "https://open.er-api.com/v6/latest/USD"
	DefaultFallback = 25400.0
	DefaultTimeout  = 10 * time.Second
)

// Entry is the structure stored in the cache file
type Entry struct {
	Rate      float64 `json:"rate"`
	Timestamp float64 `json:"timestamp"` // Unix seconds
	Date      string  `json:"date"`      // Local wall time, YYYY-MM-DD HH:MM:SS
}

// Config configures the client
type Config struct {
	URL      string
	Fallback float64
	TTL      time.Duration
	Timeout  time.Duration
}

// Client for the open exchange-rate API
type Client struct {
	url      string
	fallback float64
	ttl      time.Duration
	client   *http.Client
	log      zerolog.Logger
	cache    *clientdata.Store
}

// NewClient creates a new exchange-rate client.
// cache is optional - if nil, caching is disabled
func NewClient(cfg Config, cache *clientdata.Store, log zerolog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Fallback <= 0 {
		cfg.Fallback = DefaultFallback
	}
	if cfg.TTL <= 0 {
		cfg.TTL = clientdata.TTLExchangeRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		url:      cfg.URL,
		fallback: cfg.Fallback,
		ttl:      cfg.TTL,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log.With().Str("client", "exchangerate").Logger(),
		cache:    cache,
	}
}

// GetRate returns the USD/VND rate: a fresh cached value, else a freshly
// fetched one, else the fallback constant. It never fails.
func (c *Client) GetRate(ctx context.Context) float64 {
	if rate, ok := c.fromCache(); ok {
		return rate
	}

	rate, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn().
			Err(err).
			Float64("fallback", c.fallback).
			Msg("Using fallback USD/VND rate")
		return c.fallback
	}

	c.store(rate)

	c.log.Info().Float64("rate", rate).Msg("Fetched USD/VND rate")
	return rate
}

func (c *Client) fromCache() (float64, bool) {
	if c.cache == nil {
		return 0, false
	}

	var entry Entry
	if err := c.cache.Read(CacheFile, &entry); err != nil {
		c.log.Debug().Err(err).Msg("Rate cache miss")
		return 0, false
	}

	stored := time.Unix(0, int64(entry.Timestamp*float64(time.Second)))
	if !clientdata.Fresh(stored, c.cache.Now(), c.ttl) || entry.Rate <= 0 {
		return 0, false
	}

	c.log.Debug().
		Float64("rate", entry.Rate).
		Dur("age", c.cache.Now().Sub(stored)).
		Msg("Cache hit")
	return entry.Rate, true
}

func (c *Client) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, exists := result.Rates["VND"]
	if !exists || rate <= 0 {
		return 0, fmt.Errorf("VND rate not found in response")
	}
	return rate, nil
}

func (c *Client) store(rate float64) {
	if c.cache == nil {
		return
	}

	now := c.cache.Now()
	entry := Entry{
		Rate:      rate,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Date:      now.Format("2006-01-02 15:04:05"),
	}
	if err := c.cache.Write(CacheFile, entry); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cache exchange rate")
	}
}
