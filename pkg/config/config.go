// Package config provides configuration management for signaldesk
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// Config represents the application configuration
type Config struct {
	// UserID owns every record the CLI reads or writes
	UserID string `yaml:"user_id"`

	// Logging
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // console, json

	Store      StoreConfig     `yaml:"store"`
	Cache      CacheConfig     `yaml:"cache"`
	Feed       FeedConfig      `yaml:"feed"`
	Ledger     LedgerConfig    `yaml:"ledger"`
	Indicators IndicatorConfig `yaml:"indicators"`
	Engine     EngineConfig    `yaml:"engine"`

	// Rule files for `rules import`
	RulesDir  string `yaml:"rules_dir"`
	RulesGlob string `yaml:"rules_glob"`

	// Internal
	path string
}

// StoreConfig selects the record store
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, file, postgres
	Path   string `yaml:"path"`   // file driver
	DSN    string `yaml:"dsn"`    // postgres driver
}

// CacheConfig selects the snapshot cache
type CacheConfig struct {
	Driver   string        `yaml:"driver"` // memory, redis
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	MaxTicks int           `yaml:"max_ticks"`
}

// FeedConfig selects the market data provider
type FeedConfig struct {
	Provider string        `yaml:"provider"` // mock, alpaca, websocket
	URL      string        `yaml:"url"`      // websocket stream URL
	Interval time.Duration `yaml:"interval"` // polling interval
	History  string        `yaml:"history"`  // warmup bar interval: 1min, 5min, 15min, 60min, daily
	Symbols  []string      `yaml:"symbols"`  // used when the watchlist is empty

	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// LedgerConfig holds paper trading parameters
type LedgerConfig struct {
	DefaultBalance            decimal.Decimal `yaml:"default_balance"`
	Commission                decimal.Decimal `yaml:"commission"`
	CloseCommissionMultiplier decimal.Decimal `yaml:"close_commission_multiplier"`
}

// IndicatorConfig holds defaults for new watchlist items and the series window
type IndicatorConfig struct {
	BBPeriod int     `yaml:"bb_period"`
	BBStdDev float64 `yaml:"bb_std_dev"`
	Lookback int     `yaml:"lookback"`
}

// EngineConfig holds signal engine settings
type EngineConfig struct {
	PremiumPercent decimal.Decimal `yaml:"premium_percent"`
	AutoTrade      bool            `yaml:"auto_trade"`
	MarkPositions  bool            `yaml:"mark_positions"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Store: StoreConfig{
			Driver: "file",
		},
		Cache: CacheConfig{
			Driver:   "memory",
			Addr:     "localhost:6379",
			TTL:      10 * time.Minute,
			MaxTicks: 500,
		},
		Feed: FeedConfig{
			Provider: "mock",
			Interval: 5 * time.Second,
			History:  "1min",
		},
		Ledger: LedgerConfig{
			DefaultBalance:            trading.DefaultPaperBalance,
			Commission:                decimal.RequireFromString("0.65"),
			CloseCommissionMultiplier: decimal.NewFromInt(2),
		},
		Indicators: IndicatorConfig{
			BBPeriod: trading.DefaultWatchBBPeriod,
			BBStdDev: trading.DefaultWatchBBStdDev,
			Lookback: 200,
		},
		Engine: EngineConfig{
			PremiumPercent: decimal.NewFromInt(2),
		},
		RulesGlob: "**/*.yaml",
	}
}

// Load reads the YAML config at path (or the default path when empty) on
// top of DefaultConfig, then applies .env and environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.RulesDir = expandHome(cfg.RulesDir)
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment without overriding variables already set.
// Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnv overlays environment variables
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.UserID, "SIGNALDESK_USER")
	set(&c.LogLevel, "SIGNALDESK_LOG_LEVEL")
	set(&c.Store.DSN, "DATABASE_URL")
	set(&c.Cache.Addr, "REDIS_ADDR")
	set(&c.Cache.Password, "REDIS_PASSWORD")
	set(&c.Feed.APIKey, "ALPACA_API_KEY")
	set(&c.Feed.APISecret, "ALPACA_SECRET_KEY")
	set(&c.Feed.BaseURL, "ALPACA_BASE_URL")

	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Cache.DB = db
		}
	}
}

// Path returns the file the config was loaded from
func (c *Config) Path() string {
	return c.path
}

// Save writes the config as YAML to its path. Secrets taken from the
// environment are written too, so callers should prefer .env for them.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// StorePath returns the file store path, defaulting under the data dir
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store.json"), nil
}
