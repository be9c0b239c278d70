// Package config defines ScanConfig, the frozen, validated configuration
// record that every other component reads from. Loading flags or
// files into a ScanConfig is an external collaborator's job; this package
// only validates and freezes one.
package config

import (
	"fmt"
	"time"

	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/safeio"
	"github.com/vscan/vscan/internal/vscanerr"
)

// Filters narrows which extensions get scanned or reported.
type Filters struct {
	IncludeIDs    []string // exact-match extension_id allowlist; empty = no restriction
	ExcludeIDs    []string // exact-match extension_id denylist
	Publisher     string   // case-insensitive exact match; empty = no restriction
	MinRiskLevel  model.RiskLevel
}

// Builder accumulates options before Freeze validates and locks them in.
// A flat-struct-then-validate shape rather than a functional-options API.
type Builder struct {
	Workers               int
	RequestDelay          time.Duration
	MaxRetries            int
	RetryBaseDelay        time.Duration
	CacheMaxAge           time.Duration
	UseCache              bool
	RefreshCache          bool
	CacheDir              string
	ExtensionsDir         string // empty means "auto-detect platform default"
	Filters               Filters
	Detailed              bool
	MaxResponseBytes      int64
	PerRequestTimeout     time.Duration
}

// DefaultBuilder returns a Builder seeded with reasonable defaults.
func DefaultBuilder() Builder {
	return Builder{
		Workers:           3,
		RequestDelay:      2 * time.Second,
		MaxRetries:        3,
		RetryBaseDelay:    time.Second,
		CacheMaxAge:       7 * 24 * time.Hour,
		UseCache:          true,
		RefreshCache:      false,
		Detailed:          false,
		MaxResponseBytes:  10 * 1024 * 1024,
		PerRequestTimeout: 30 * time.Second,
	}
}

// ScanConfig is immutable once returned by Freeze.
type ScanConfig struct {
	workers           int
	requestDelay      time.Duration
	maxRetries        int
	retryBaseDelay    time.Duration
	cacheMaxAge       time.Duration
	useCache          bool
	refreshCache      bool
	cacheDir          safeio.ValidatedPath
	extensionsDir     safeio.ValidatedPath
	extensionsDirAuto bool
	filters           Filters
	detailed          bool
	maxResponseBytes  int64
	perRequestTimeout time.Duration
}

// Freeze validates b and returns an immutable ScanConfig, or InvalidInput.
func (b Builder) Freeze() (ScanConfig, error) {
	cfg, err := b.freeze()
	if err != nil {
		return ScanConfig{}, vscanerr.New(vscanerr.InvalidInput, err)
	}
	return cfg, nil
}

func (b Builder) freeze() (ScanConfig, error) {
	if b.Workers < 1 || b.Workers > 5 {
		return ScanConfig{}, fmt.Errorf("workers must be in 1..5, got %d", b.Workers)
	}
	if b.RequestDelay < 100*time.Millisecond || b.RequestDelay > 30*time.Second {
		return ScanConfig{}, fmt.Errorf("request_delay_seconds must be in 0.1..30.0, got %s", b.RequestDelay)
	}
	if b.MaxRetries < 0 || b.MaxRetries > 10 {
		return ScanConfig{}, fmt.Errorf("max_retries must be in 0..10, got %d", b.MaxRetries)
	}
	if b.RetryBaseDelay < 100*time.Millisecond || b.RetryBaseDelay > 60*time.Second {
		return ScanConfig{}, fmt.Errorf("retry_base_delay_seconds must be in 0.1..60.0, got %s", b.RetryBaseDelay)
	}
	if b.CacheMaxAge < 24*time.Hour || b.CacheMaxAge > 365*24*time.Hour {
		return ScanConfig{}, fmt.Errorf("cache_max_age_days must be in 1..365, got %s", b.CacheMaxAge)
	}
	if b.MaxResponseBytes <= 0 {
		return ScanConfig{}, fmt.Errorf("max_response_bytes must be positive, got %d", b.MaxResponseBytes)
	}
	if b.PerRequestTimeout <= 0 {
		return ScanConfig{}, fmt.Errorf("per_request_timeout_seconds must be positive, got %s", b.PerRequestTimeout)
	}
	if b.CacheDir == "" {
		return ScanConfig{}, fmt.Errorf("cache_dir is required")
	}

	cacheDir, err := safeio.ValidatePath(b.CacheDir, safeio.PathOptions{
		AllowAbsolute: true,
		Purpose:       safeio.PurposeCacheDir,
	})
	if err != nil {
		return ScanConfig{}, fmt.Errorf("cache_dir: %w", err)
	}

	cfg := ScanConfig{
		workers:           b.Workers,
		requestDelay:      b.RequestDelay,
		maxRetries:        b.MaxRetries,
		retryBaseDelay:    b.RetryBaseDelay,
		cacheMaxAge:       b.CacheMaxAge,
		useCache:          b.UseCache,
		refreshCache:      b.RefreshCache,
		cacheDir:          cacheDir,
		filters:           b.Filters,
		detailed:          b.Detailed,
		maxResponseBytes:  b.MaxResponseBytes,
		perRequestTimeout: b.PerRequestTimeout,
	}

	if b.ExtensionsDir == "" {
		cfg.extensionsDirAuto = true
	} else {
		extDir, err := safeio.ValidatePath(b.ExtensionsDir, safeio.PathOptions{
			AllowAbsolute: true,
			Purpose:       safeio.PurposeExtensionsDir,
		})
		if err != nil {
			return ScanConfig{}, fmt.Errorf("extensions_dir: %w", err)
		}
		cfg.extensionsDir = extDir
	}

	return cfg, nil
}

func (c ScanConfig) Workers() int { return c.workers }
func (c ScanConfig) RequestDelay() time.Duration { return c.requestDelay }
func (c ScanConfig) MaxRetries() int { return c.maxRetries }
func (c ScanConfig) RetryBaseDelay() time.Duration { return c.retryBaseDelay }
func (c ScanConfig) CacheMaxAge() time.Duration { return c.cacheMaxAge }
func (c ScanConfig) UseCache() bool { return c.useCache }
func (c ScanConfig) RefreshCache() bool { return c.refreshCache }
func (c ScanConfig) CacheDir() safeio.ValidatedPath { return c.cacheDir }
func (c ScanConfig) ExtensionsDirAuto() bool { return c.extensionsDirAuto }
func (c ScanConfig) ExtensionsDir() safeio.ValidatedPath { return c.extensionsDir }
func (c ScanConfig) Filters() Filters { return c.filters }
func (c ScanConfig) Detailed() bool { return c.detailed }
func (c ScanConfig) MaxResponseBytes() int64 { return c.maxResponseBytes }
func (c ScanConfig) PerRequestTimeout() time.Duration { return c.perRequestTimeout }
