package imagecache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config validation errors
var (
	// ErrInvalidPositiveTTL is returned when PositiveTTL is not positive.
	ErrInvalidPositiveTTL = errors.New("PositiveTTL must be positive")
	// ErrInvalidNegativeTTL is returned when NegativeTTL is not positive.
	ErrInvalidNegativeTTL = errors.New("NegativeTTL must be positive")
	// ErrInvalidFetchTimeout is returned when FetchTimeout is not positive.
	ErrInvalidFetchTimeout = errors.New("FetchTimeout must be positive")
	// ErrMissingCDNBaseURL is returned when no CDN base URL is configured.
	ErrMissingCDNBaseURL = errors.New("CDNBaseURL is required")
)

// Config holds the configuration for the image cache service.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// CDNBaseURL is the external content CDN prefix; non-persisted assets
	// resolve to {CDNBaseURL}/{platform}/{owner}/{imageKey}.
	CDNBaseURL string

	// CacheMaxEntries bounds the number of resident cache entries.
	CacheMaxEntries int

	// CacheMaxMB bounds the resident cache payload in megabytes.
	CacheMaxMB int

	// PositiveTTL is the absolute lifetime of positive entries. Staleness
	// across edits is handled by invalidation, not by this TTL.
	PositiveTTL time.Duration

	// NegativeTTL is the absolute lifetime of negative entries. Kept
	// short (minutes) so a transient upstream outage degrades serving for
	// a bounded window without a manual cache flush.
	NegativeTTL time.Duration

	// FetchTimeout bounds a single origin fetch.
	FetchTimeout time.Duration

	// MaxSourceSizeMB is the maximum allowed source image size in megabytes.
	MaxSourceSizeMB int

	// JPEGQuality is the encode quality for corrected images (1-100).
	JPEGQuality int

	// WriteBackWorkers sizes the corrected-asset persistence pool.
	WriteBackWorkers int

	// WriteBackQueue is the pending write-back queue depth.
	WriteBackQueue int

	// WriteBackTimeout bounds a single write-back store write.
	WriteBackTimeout time.Duration

	// StoragePath is the disk object store root, used when DatabaseURL is empty.
	StoragePath string

	// DatabaseURL selects the PostgreSQL object store when set.
	DatabaseURL string
}

// CacheMaxBytes returns the cache byte budget.
func (c Config) CacheMaxBytes() int64 {
	return int64(c.CacheMaxMB) * 1024 * 1024
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCacheMaxEntries, c.CacheMaxEntries)
	}
	if c.CacheMaxMB <= 0 {
		return fmt.Errorf("%w: got %d MB", ErrInvalidCacheMaxBytes, c.CacheMaxMB)
	}
	if c.PositiveTTL <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidPositiveTTL, c.PositiveTTL)
	}
	if c.NegativeTTL <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidNegativeTTL, c.NegativeTTL)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidFetchTimeout, c.FetchTimeout)
	}
	if c.CDNBaseURL == "" {
		return ErrMissingCDNBaseURL
	}
	return nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		CDNBaseURL:       "https://cdn.postdeck.app",
		CacheMaxEntries:  4096,
		CacheMaxMB:       256,
		PositiveTTL:      12 * time.Hour,
		NegativeTTL:      2 * time.Minute,
		FetchTimeout:     10 * time.Second,
		MaxSourceSizeMB:  DefaultMaxSourceSizeMB,
		JPEGQuality:      DefaultJPEGQuality,
		WriteBackWorkers: 2,
		WriteBackQueue:   64,
		WriteBackTimeout: DefaultWriteBackTimeout,
		StoragePath:      "/var/lib/postdeck/assets",
		DatabaseURL:      "",
	}
}

// ConfigFromEnv creates a Config from environment variables, using
// defaults for any missing or invalid value.
//
// Environment variables:
//   - IMAGE_CACHE_LISTEN_ADDR: HTTP listen address (default ":8080")
//   - IMAGE_CACHE_CDN_BASE_URL: external CDN prefix
//   - IMAGE_CACHE_MAX_ENTRIES: resident entry budget (default 4096)
//   - IMAGE_CACHE_MAX_MB: resident payload budget in MB (default 256)
//   - IMAGE_CACHE_POSITIVE_TTL_MINUTES: positive entry TTL (default 720)
//   - IMAGE_CACHE_NEGATIVE_TTL_SECONDS: negative entry TTL (default 120)
//   - IMAGE_CACHE_FETCH_TIMEOUT_SECONDS: origin fetch timeout (default 10)
//   - IMAGE_CACHE_MAX_SOURCE_SIZE_MB: max source image size (default 10)
//   - IMAGE_CACHE_JPEG_QUALITY: corrected-image encode quality (default 85)
//   - IMAGE_CACHE_WRITE_BACK_WORKERS: persistence pool size (default 2)
//   - IMAGE_CACHE_WRITE_BACK_QUEUE: persistence queue depth (default 64)
//   - IMAGE_CACHE_STORAGE_PATH: disk object store root
//   - DATABASE_URL: PostgreSQL object store DSN (disk store when unset)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("IMAGE_CACHE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("IMAGE_CACHE_CDN_BASE_URL"); v != "" {
		cfg.CDNBaseURL = v
	}
	if v := os.Getenv("IMAGE_CACHE_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	cfg.CacheMaxEntries = envPositiveInt("IMAGE_CACHE_MAX_ENTRIES", cfg.CacheMaxEntries)
	cfg.CacheMaxMB = envPositiveInt("IMAGE_CACHE_MAX_MB", cfg.CacheMaxMB)
	cfg.MaxSourceSizeMB = envPositiveInt("IMAGE_CACHE_MAX_SOURCE_SIZE_MB", cfg.MaxSourceSizeMB)
	cfg.JPEGQuality = envPositiveInt("IMAGE_CACHE_JPEG_QUALITY", cfg.JPEGQuality)
	cfg.WriteBackWorkers = envPositiveInt("IMAGE_CACHE_WRITE_BACK_WORKERS", cfg.WriteBackWorkers)
	cfg.WriteBackQueue = envPositiveInt("IMAGE_CACHE_WRITE_BACK_QUEUE", cfg.WriteBackQueue)

	if n := envPositiveInt("IMAGE_CACHE_POSITIVE_TTL_MINUTES", int(cfg.PositiveTTL.Minutes())); n > 0 {
		cfg.PositiveTTL = time.Duration(n) * time.Minute
	}
	if n := envPositiveInt("IMAGE_CACHE_NEGATIVE_TTL_SECONDS", int(cfg.NegativeTTL.Seconds())); n > 0 {
		cfg.NegativeTTL = time.Duration(n) * time.Second
	}
	if n := envPositiveInt("IMAGE_CACHE_FETCH_TIMEOUT_SECONDS", int(cfg.FetchTimeout.Seconds())); n > 0 {
		cfg.FetchTimeout = time.Duration(n) * time.Second
	}

	return cfg
}

// envPositiveInt reads a positive integer from the environment, warning
// and keeping fallback on absent or invalid values.
func envPositiveInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("[IMAGE-CACHE] invalid environment value, using default",
			"name", name,
			"value", v,
			"default", fallback,
		)
		return fallback
	}
	return n
}
