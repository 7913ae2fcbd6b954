// Package config holds explicit run configuration. Nothing here reads
// the environment implicitly at use time: credentials and endpoints are
// resolved once and injected into the fetcher, store client, and driver.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/bpaden91/prisync-price-sync/matcher"
)

// MinPageDelay is the smallest allowed pause between remote catalog
// pages; the remote service rate-limits aggressively below this.
const MinPageDelay = 500 * time.Millisecond

// Config holds price sync configuration.
type Config struct {
	// Remote price-monitoring service.
	PrisyncBaseURL  string
	PrisyncAPIKey   string
	PrisyncAPIToken string
	PageSize        int
	PageDelay       time.Duration

	// Local catalog store.
	CatalogBaseURL string
	CatalogToken   string

	// Driver scheduling. BatchSize 1 means strictly sequential.
	BatchSize  int
	BatchDelay time.Duration

	// Matching.
	Strategies         []matcher.Strategy
	NormalizeCacheSize int

	// Transport.
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	UserAgent       string

	// Reporting.
	ReportFile   string
	ReportFormat string // csv, json, dual, or none
	MetricsAddr  string
	Verbose      bool
	DryRun       bool
}

// DefaultConfig returns the defaults observed to be safe against the
// remote service's rate limits.
func DefaultConfig() *Config {
	return &Config{
		PrisyncBaseURL:     "https://prisync.com/api/v2",
		PageSize:           100,
		PageDelay:          MinPageDelay,
		CatalogBaseURL:     "http://localhost:8080/api",
		BatchSize:          1,
		BatchDelay:         time.Second,
		Strategies:         matcher.DefaultStrategies,
		NormalizeCacheSize: 1024,
		Timeout:            10 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		UserAgent:          "prisync-price-sync/1.0",
		ReportFile:         "output/reconciliation.csv",
		ReportFormat:       "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateBaseURL("prisync base URL", c.PrisyncBaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("catalog base URL", c.CatalogBaseURL); err != nil {
		return err
	}
	if c.PrisyncAPIKey == "" || c.PrisyncAPIToken == "" {
		return fmt.Errorf("prisync credentials (api key and token) are required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.PageDelay < MinPageDelay {
		return fmt.Errorf("page delay %s is below the minimum %s", c.PageDelay, MinPageDelay)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("batch delay cannot be negative")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one matching strategy is required")
	}
	for _, s := range c.Strategies {
		switch s {
		case matcher.StrategyNameExact, matcher.StrategyNamePartial, matcher.StrategyURL:
		default:
			return fmt.Errorf("unknown matching strategy %q", s)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	switch c.ReportFormat {
	case "csv", "json", "dual", "none":
	default:
		return fmt.Errorf("report format must be csv, json, dual, or none")
	}
	if c.ReportFormat != "none" && c.ReportFile == "" {
		return fmt.Errorf("report file cannot be empty when a report format is set")
	}
	return nil
}

func validateBaseURL(label, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", label)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", label, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", label)
	}
	return nil
}

// EnvString reads an environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration reads a duration environment override.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}
