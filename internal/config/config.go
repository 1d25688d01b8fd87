package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Helius      HeliusConfig      `mapstructure:"helius"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

// UpstreamLimits bounds the outbound traffic to one API.
type UpstreamLimits struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

type DexScreenerConfig struct {
	BaseURL string         `mapstructure:"base_url"`
	Limits  UpstreamLimits `mapstructure:"limits"`
}

type HeliusConfig struct {
	APIKey string         `mapstructure:"api_key"`
	APIURL string         `mapstructure:"api_url"`
	RPCURL string         `mapstructure:"rpc_url"`
	Limits UpstreamLimits `mapstructure:"limits"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type CacheConfig struct {
	PrimaryEnabled bool          `mapstructure:"primary_enabled"`
	LRUSize        int           `mapstructure:"lru_size"`
	BasicTTL       time.Duration `mapstructure:"basic_ttl"`
	EnrichedTTL    time.Duration `mapstructure:"enriched_ttl"`
	MetadataTTL    time.Duration `mapstructure:"metadata_ttl"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	RecentTTL      time.Duration `mapstructure:"recent_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
}

type EnrichmentConfig struct {
	TargetChain  string  `mapstructure:"target_chain"`
	BatchSize    int     `mapstructure:"batch_size"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	MinMarketCap float64 `mapstructure:"min_market_cap"`
}

type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	FetchInterval   time.Duration `mapstructure:"fetch_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]interface{}{
	"log.level":       "info",
	"log.file":        "",
	"log.development": true,

	"dexscreener.base_url":                   "https://api.dexscreener.com",
	"dexscreener.limits.requests_per_minute": 300,
	"dexscreener.limits.max_concurrent":      5,
	"dexscreener.limits.timeout":             "10s",
	"dexscreener.limits.max_retries":         3,

	"helius.api_key":                    "",
	"helius.api_url":                    "https://api.helius.xyz",
	"helius.rpc_url":                    "https://mainnet.helius-rpc.com",
	"helius.limits.requests_per_minute": 600,
	"helius.limits.max_concurrent":      10,
	"helius.limits.timeout":             "10s",
	"helius.limits.max_retries":         3,

	"redis.url":    "",
	"database.url": "",

	"cache.primary_enabled": true,
	"cache.lru_size":        10000,
	"cache.basic_ttl":       "5m",
	"cache.enriched_ttl":    "10m",
	"cache.metadata_ttl":    "1h",
	"cache.lock_ttl":        "10s",
	"cache.recent_ttl":      "30s",
	"cache.refresh_ttl":     "30s",
	"cache.poll_interval":   "500ms",
	"cache.wait_timeout":    "10s",

	"enrichment.target_chain":   "solana",
	"enrichment.batch_size":     20,
	"enrichment.max_tokens":     50,
	"enrichment.min_market_cap": 25000,

	"scheduler.enabled":          true,
	"scheduler.fetch_interval":   "5m",
	"scheduler.cleanup_interval": "1h",

	"metrics.addr": "",
}

// Load reads defaults, the optional config file at path and the environment.
// Nested keys map to env vars with dots replaced by underscores, so
// helius.api_key is HELIUS_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, Validate(&cfg)
}

func Validate(cfg *Config) error {
	for name, raw := range map[string]string{
		"dexscreener.base_url": cfg.DexScreener.BaseURL,
		"helius.api_url":       cfg.Helius.APIURL,
		"helius.rpc_url":       cfg.Helius.RPCURL,
	} {
		if err := validateURL(raw, "http"); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if cfg.Redis.URL != "" {
		if err := validateURL(cfg.Redis.URL, "redis"); err != nil {
			return fmt.Errorf("invalid redis.url: %w", err)
		}
	}

	for name, l := range map[string]UpstreamLimits{
		"dexscreener": cfg.DexScreener.Limits,
		"helius":      cfg.Helius.Limits,
	} {
		if l.RequestsPerMinute <= 0 || l.MaxConcurrent <= 0 {
			return fmt.Errorf("invalid %s limits: rate and concurrency must be positive", name)
		}
		if l.Timeout <= 0 {
			return fmt.Errorf("invalid %s timeout", name)
		}
		if l.MaxRetries < 0 {
			return fmt.Errorf("invalid %s max_retries", name)
		}
	}

	if cfg.Enrichment.BatchSize <= 0 {
		return errors.New("invalid enrichment.batch_size")
	}
	if cfg.Enrichment.MaxTokens <= 0 {
		return errors.New("invalid enrichment.max_tokens")
	}
	if cfg.Enrichment.MinMarketCap < 0 {
		return errors.New("invalid enrichment.min_market_cap")
	}
	if cfg.Enrichment.TargetChain == "" {
		return errors.New("enrichment.target_chain is empty")
	}

	c := cfg.Cache
	if c.LockTTL <= 0 || c.RecentTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("cache marker ttls must be positive")
	}
	if c.PollInterval <= 0 || c.WaitTimeout < c.PollInterval {
		return errors.New("invalid cache poll_interval/wait_timeout")
	}
	if c.BasicTTL < 0 || c.EnrichedTTL < 0 || c.MetadataTTL < 0 {
		return errors.New("cache ttls must not be negative")
	}
	if c.LRUSize <= 0 {
		return errors.New("invalid cache.lru_size")
	}

	if cfg.Scheduler.Enabled && (cfg.Scheduler.FetchInterval <= 0 || cfg.Scheduler.CleanupInterval <= 0) {
		return errors.New("scheduler intervals must be positive")
	}

	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}
