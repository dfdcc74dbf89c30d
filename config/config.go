package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Offline policies decide what happens when a static live page carries no
// watch reference.
const (
	// OfflinePolicyOffline reports the channel offline immediately.
	OfflinePolicyOffline = "offline"

	// OfflinePolicyRecheck re-checks the live page in the browser via its
	// canonical link before reporting offline.
	OfflinePolicyRecheck = "recheck"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Pool      PoolConfig      `yaml:"pool"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance and how tabs render pages.
type BrowserConfig struct {
	// Enabled toggles the rendered tier. When false no browser is launched.
	Enabled bool `yaml:"enabled"` // default: true

	Headless  bool `yaml:"headless"`   // default: true
	NoSandbox bool `yaml:"no_sandbox"` // default: false; needed in Docker

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// DefaultProxy is the proxy URL for browser and static fetches.
	DefaultProxy string `yaml:"proxy"`

	// Stealth injects the stealth script into every tab.
	Stealth bool `yaml:"stealth"` // default: false

	// NavigationTimeout bounds one page load, idle wait included.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 20s

	// IdleTimeout bounds the network-idle wait after navigation.
	// Reaching it is not an error.
	IdleTimeout time.Duration `yaml:"idle_timeout"` // default: 5s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockAds drops requests to known ad and tracking hosts.
	BlockAds bool `yaml:"block_ads"` // default: true

	// ConsentSelector is clicked, when present, to get past consent walls.
	ConsentSelector string `yaml:"consent_selector"`
}

// PoolConfig controls the adaptive browser tab pool.
type PoolConfig struct {
	MinPages     int     `yaml:"min_pages"`     // default: 1
	HardMax      int     `yaml:"hard_max"`      // default: 4
	MemThreshold float64 `yaml:"mem_threshold"` // default: 0.9
	ScaleStep    float64 `yaml:"scale_step"`    // default: 0.25
}

// ResolverConfig controls the resolution pipeline.
type ResolverConfig struct {
	// PlatformURL is the scheme and host of the upstream video platform.
	PlatformURL string `yaml:"platform_url"` // default: "https://www.youtube.com"

	// OfflinePolicy is "offline" or "recheck".
	OfflinePolicy string `yaml:"offline_policy"` // default: "offline"

	// StaticTimeout bounds one static fetch.
	StaticTimeout time.Duration `yaml:"static_timeout"` // default: 10s

	// ResolveTimeout bounds a whole resolution.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"` // default: 45s

	// PlayerFallback asks the player API for a manifest when the watch page
	// has none.
	PlayerFallback bool `yaml:"player_fallback"` // default: false

	// ProbeManifest downloads the resolved playlist and rejects ended streams.
	ProbeManifest bool `yaml:"probe_manifest"` // default: false

	// LiveSelector is a CSS selector for an element of the rendered live page
	// whose href carries the broadcast's video id, e.g. a live-chat link.
	// Empty means the canonical link alone is consulted.
	LiveSelector string `yaml:"live_selector"` // default: ""
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: false

	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps"`   // default: 5
	Burst             int     `yaml:"burst"` // default: 10
}

// CacheConfig controls the outcome cache.
type CacheConfig struct {
	// TTL is how long redirect and offline outcomes are reused. 0 disables caching.
	TTL time.Duration `yaml:"ttl"` // default: 0

	// MaxEntries bounds the in-memory tier.
	MaxEntries int `yaml:"max_entries"` // default: 1000

	// RedisURL enables the shared second tier when set.
	RedisURL string `yaml:"redis_url"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Browser: BrowserConfig{
			Enabled:              true,
			Headless:             true,
			NavigationTimeout:    20 * time.Second,
			IdleTimeout:          5 * time.Second,
			BlockedResourceTypes: []string{"Image", "Stylesheet", "Font", "Media"},
			BlockAds:             true,
			ConsentSelector:      `form[action*="consent"] button`,
		},
		Pool: PoolConfig{MinPages: 1, HardMax: 4, MemThreshold: 0.9, ScaleStep: 0.25},
		Resolver: ResolverConfig{
			PlatformURL:    "https://www.youtube.com",
			OfflinePolicy:  OfflinePolicyOffline,
			StaticTimeout:  10 * time.Second,
			ResolveTimeout: 45 * time.Second,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		Cache:     CacheConfig{MaxEntries: 1000},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// LIVEHLS_CONFIG (if any), then LIVEHLS_* environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("LIVEHLS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("LIVEHLS_HOST", c.Server.Host)
	c.Server.Port = envIntOr("LIVEHLS_PORT", c.Server.Port)
	c.Server.Mode = envOr("LIVEHLS_MODE", c.Server.Mode)

	c.Browser.Enabled = envBoolOr("LIVEHLS_BROWSER_ENABLED", c.Browser.Enabled)
	c.Browser.Headless = envBoolOr("LIVEHLS_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = envBoolOr("LIVEHLS_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("LIVEHLS_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.DefaultProxy = envOr("LIVEHLS_PROXY", c.Browser.DefaultProxy)
	c.Browser.Stealth = envBoolOr("LIVEHLS_STEALTH", c.Browser.Stealth)
	c.Browser.NavigationTimeout = envDurationOr("LIVEHLS_NAV_TIMEOUT", c.Browser.NavigationTimeout)
	c.Browser.IdleTimeout = envDurationOr("LIVEHLS_IDLE_TIMEOUT", c.Browser.IdleTimeout)
	c.Browser.BlockedResourceTypes = envSliceOr("LIVEHLS_BLOCKED_RESOURCES", c.Browser.BlockedResourceTypes)
	c.Browser.BlockAds = envBoolOr("LIVEHLS_BLOCK_ADS", c.Browser.BlockAds)
	c.Browser.ConsentSelector = envOr("LIVEHLS_CONSENT_SELECTOR", c.Browser.ConsentSelector)

	c.Pool.MinPages = envIntOr("LIVEHLS_MIN_PAGES", c.Pool.MinPages)
	c.Pool.HardMax = envIntOr("LIVEHLS_MAX_PAGES", c.Pool.HardMax)
	c.Pool.MemThreshold = envFloatOr("LIVEHLS_MEM_THRESHOLD", c.Pool.MemThreshold)
	c.Pool.ScaleStep = envFloatOr("LIVEHLS_SCALE_STEP", c.Pool.ScaleStep)

	c.Resolver.PlatformURL = envOr("LIVEHLS_PLATFORM_URL", c.Resolver.PlatformURL)
	c.Resolver.OfflinePolicy = envOr("LIVEHLS_OFFLINE_POLICY", c.Resolver.OfflinePolicy)
	c.Resolver.StaticTimeout = envDurationOr("LIVEHLS_STATIC_TIMEOUT", c.Resolver.StaticTimeout)
	c.Resolver.ResolveTimeout = envDurationOr("LIVEHLS_RESOLVE_TIMEOUT", c.Resolver.ResolveTimeout)
	c.Resolver.PlayerFallback = envBoolOr("LIVEHLS_PLAYER_FALLBACK", c.Resolver.PlayerFallback)
	c.Resolver.ProbeManifest = envBoolOr("LIVEHLS_PROBE_MANIFEST", c.Resolver.ProbeManifest)
	c.Resolver.LiveSelector = envOr("LIVEHLS_LIVE_SELECTOR", c.Resolver.LiveSelector)

	c.Auth.Enabled = envBoolOr("LIVEHLS_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("LIVEHLS_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("LIVEHLS_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("LIVEHLS_RATE_BURST", c.RateLimit.Burst)

	c.Cache.TTL = envDurationOr("LIVEHLS_CACHE_TTL", c.Cache.TTL)
	c.Cache.MaxEntries = envIntOr("LIVEHLS_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.RedisURL = envOr("LIVEHLS_REDIS_URL", c.Cache.RedisURL)

	c.Log.Level = envOr("LIVEHLS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LIVEHLS_LOG_FORMAT", c.Log.Format)
}

// Validate rejects settings the resolver cannot run with.
func (c *Config) Validate() error {
	switch c.Resolver.OfflinePolicy {
	case OfflinePolicyOffline, OfflinePolicyRecheck:
	default:
		return fmt.Errorf("config: offline_policy must be %q or %q, got %q",
			OfflinePolicyOffline, OfflinePolicyRecheck, c.Resolver.OfflinePolicy)
	}

	u, err := url.Parse(c.Resolver.PlatformURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: platform_url must be an absolute URL, got %q", c.Resolver.PlatformURL)
	}

	if c.Resolver.StaticTimeout <= 0 || c.Resolver.ResolveTimeout <= 0 || c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.Resolver.OfflinePolicy == OfflinePolicyRecheck && !c.Browser.Enabled {
		return fmt.Errorf("config: offline_policy %q needs the browser enabled", OfflinePolicyRecheck)
	}
	if sel := c.Resolver.LiveSelector; sel != "" {
		if _, err := cascadia.Parse(sel); err != nil {
			return fmt.Errorf("config: live_selector %q: %w", sel, err)
		}
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
