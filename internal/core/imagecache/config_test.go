package imagecache

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"zero entries", func(c *Config) { c.CacheMaxEntries = 0 }, ErrInvalidCacheMaxEntries},
		{"zero byte budget", func(c *Config) { c.CacheMaxMB = 0 }, ErrInvalidCacheMaxBytes},
		{"zero positive ttl", func(c *Config) { c.PositiveTTL = 0 }, ErrInvalidPositiveTTL},
		{"negative negative ttl", func(c *Config) { c.NegativeTTL = -time.Second }, ErrInvalidNegativeTTL},
		{"zero fetch timeout", func(c *Config) { c.FetchTimeout = 0 }, ErrInvalidFetchTimeout},
		{"missing cdn base url", func(c *Config) { c.CDNBaseURL = "" }, ErrMissingCDNBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFromEnv_ReadsOverrides(t *testing.T) {
	t.Setenv("IMAGE_CACHE_LISTEN_ADDR", ":9090")
	t.Setenv("IMAGE_CACHE_CDN_BASE_URL", "https://cdn.example.com")
	t.Setenv("IMAGE_CACHE_MAX_ENTRIES", "512")
	t.Setenv("IMAGE_CACHE_MAX_MB", "64")
	t.Setenv("IMAGE_CACHE_POSITIVE_TTL_MINUTES", "30")
	t.Setenv("IMAGE_CACHE_NEGATIVE_TTL_SECONDS", "45")
	t.Setenv("IMAGE_CACHE_FETCH_TIMEOUT_SECONDS", "3")
	t.Setenv("IMAGE_CACHE_JPEG_QUALITY", "70")
	t.Setenv("IMAGE_CACHE_STORAGE_PATH", "/tmp/assets")
	t.Setenv("DATABASE_URL", "postgres://localhost/postdeck")

	cfg := ConfigFromEnv()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.CDNBaseURL != "https://cdn.example.com" {
		t.Errorf("CDNBaseURL = %q", cfg.CDNBaseURL)
	}
	if cfg.CacheMaxEntries != 512 {
		t.Errorf("CacheMaxEntries = %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheMaxMB != 64 {
		t.Errorf("CacheMaxMB = %d", cfg.CacheMaxMB)
	}
	if cfg.PositiveTTL != 30*time.Minute {
		t.Errorf("PositiveTTL = %v", cfg.PositiveTTL)
	}
	if cfg.NegativeTTL != 45*time.Second {
		t.Errorf("NegativeTTL = %v", cfg.NegativeTTL)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.JPEGQuality != 70 {
		t.Errorf("JPEGQuality = %d", cfg.JPEGQuality)
	}
	if cfg.StoragePath != "/tmp/assets" {
		t.Errorf("StoragePath = %q", cfg.StoragePath)
	}
	if cfg.DatabaseURL != "postgres://localhost/postdeck" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestConfigFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("IMAGE_CACHE_MAX_ENTRIES", "not-a-number")
	t.Setenv("IMAGE_CACHE_MAX_MB", "-5")
	t.Setenv("IMAGE_CACHE_POSITIVE_TTL_MINUTES", "0")

	cfg := ConfigFromEnv()
	defaults := DefaultConfig()

	if cfg.CacheMaxEntries != defaults.CacheMaxEntries {
		t.Errorf("CacheMaxEntries = %d, want default %d", cfg.CacheMaxEntries, defaults.CacheMaxEntries)
	}
	if cfg.CacheMaxMB != defaults.CacheMaxMB {
		t.Errorf("CacheMaxMB = %d, want default %d", cfg.CacheMaxMB, defaults.CacheMaxMB)
	}
	if cfg.PositiveTTL != defaults.PositiveTTL {
		t.Errorf("PositiveTTL = %v, want default %v", cfg.PositiveTTL, defaults.PositiveTTL)
	}
}

func TestConfig_CacheMaxBytes(t *testing.T) {
	cfg := Config{CacheMaxMB: 3}
	if got := cfg.CacheMaxBytes(); got != 3*1024*1024 {
		t.Errorf("CacheMaxBytes() = %d", got)
	}
}
