package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SIGNALDESK_CONFIG", "SIGNALDESK_USER", "SIGNALDESK_LOG_LEVEL", "DATABASE_URL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "ALPACA_API_KEY", "ALPACA_SECRET_KEY", "ALPACA_BASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Driver != "file" {
		t.Errorf("expected store driver 'file', got %s", cfg.Store.Driver)
	}
	if !cfg.Ledger.Commission.Equal(decimal.RequireFromString("0.65")) {
		t.Errorf("expected commission 0.65, got %s", cfg.Ledger.Commission)
	}
	if !cfg.Ledger.DefaultBalance.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("expected default balance 100000, got %s", cfg.Ledger.DefaultBalance)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.LogLevel)
	}
}

func TestConfigValidate_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserID = "u1"
	result := cfg.Validate()

	if !result.IsValid() {
		t.Errorf("default config should be valid, got errors: %v", result.Errors)
	}
	if result.HasWarnings() {
		t.Errorf("expected no warnings, got %v", result.Warnings)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"store driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"redis addr", func(c *Config) { c.Cache.Driver = "redis"; c.Cache.Addr = "" }, "cache.addr"},
		{"alpaca keys", func(c *Config) { c.Feed.Provider = "alpaca" }, "feed.api_key"},
		{"websocket url", func(c *Config) { c.Feed.Provider = "websocket" }, "feed.url"},
		{"feed interval", func(c *Config) { c.Feed.Interval = 0 }, "feed.interval"},
		{"history", func(c *Config) { c.Feed.History = "2min" }, "feed.history"},
		{"balance", func(c *Config) { c.Ledger.DefaultBalance = decimal.Zero }, "ledger.default_balance"},
		{"commission", func(c *Config) { c.Ledger.Commission = decimal.NewFromInt(-1) }, "ledger.commission"},
		{"bb period", func(c *Config) { c.Indicators.BBPeriod = 1 }, "indicators.bb_period"},
		{"premium", func(c *Config) { c.Engine.PremiumPercent = decimal.Zero }, "engine.premium_percent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.UserID = "u1"
			tt.mutate(cfg)

			result := cfg.Validate()
			if result.IsValid() {
				t.Fatal("expected invalid config")
			}
			found := false
			for _, err := range result.Errors {
				if err.Field == tt.field {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected %s validation error, got %v", tt.field, result.Errors)
			}
		})
	}
}

func TestConfigValidate_Warnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Indicators.Lookback = 5
	cfg.RulesDir = filepath.Join(t.TempDir(), "missing")

	result := cfg.Validate()
	if !result.IsValid() {
		t.Errorf("warnings only, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 4 {
		t.Errorf("expected 4 warnings (user, store, lookback, rules_dir), got %v", result.Warnings)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
user_id: alice
store:
  driver: postgres
  dsn: postgres://localhost/signaldesk
cache:
  ttl: 30s
feed:
  provider: mock
  interval: 2s
  symbols: [SPY, QQQ]
ledger:
  default_balance: 25000
  commission: "1.00"
engine:
  auto_trade: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UserID != "alice" || cfg.Store.Driver != "postgres" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Cache.TTL != 30*time.Second || cfg.Feed.Interval != 2*time.Second {
		t.Errorf("unexpected durations %v %v", cfg.Cache.TTL, cfg.Feed.Interval)
	}
	if len(cfg.Feed.Symbols) != 2 {
		t.Errorf("expected 2 symbols, got %v", cfg.Feed.Symbols)
	}
	if !cfg.Ledger.DefaultBalance.Equal(decimal.NewFromInt(25000)) || !cfg.Ledger.Commission.Equal(decimal.NewFromInt(1)) {
		t.Errorf("unexpected ledger %+v", cfg.Ledger)
	}
	// untouched sections keep defaults
	if !cfg.Ledger.CloseCommissionMultiplier.Equal(decimal.NewFromInt(2)) || cfg.Indicators.BBPeriod != 20 {
		t.Errorf("expected defaults preserved, got %+v %+v", cfg.Ledger, cfg.Indicators)
	}
	if !cfg.Engine.AutoTrade {
		t.Error("expected auto_trade true")
	}
	if cfg.Path() != path {
		t.Errorf("expected path %s, got %s", path, cfg.Path())
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Feed.Provider != "mock" {
		t.Errorf("expected defaults, got %+v", cfg.Feed)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIGNALDESK_USER", "bob")
	t.Setenv("DATABASE_URL", "postgres://db/x")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ALPACA_API_KEY", "key")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UserID != "bob" || cfg.Store.DSN != "postgres://db/x" || cfg.Cache.DB != 3 || cfg.Feed.APIKey != "key" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "SIGNALDESK_DOTENV_TEST"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(key+"=carol\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(key); got != "carol" {
		t.Errorf("expected carol, got %q", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("store: [unclosed"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.UserID = "dave"
	cfg.Engine.PremiumPercent = decimal.RequireFromString("3.5")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.UserID != "dave" || !loaded.Engine.PremiumPercent.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("unexpected reloaded config %+v", loaded)
	}
	if loaded.Cache.TTL != 10*time.Minute {
		t.Errorf("expected ttl 10m after round trip, got %v", loaded.Cache.TTL)
	}
}

func TestParseRules(t *testing.T) {
	data := `
rules:
  - name: breakout calls
    signal_type: bb_breakout_up
    option_strategy: buy_call
    stop_loss_percent: 25
  - name: fade
    signal_type: bb_mean_reversion_down
    option_strategy: buy_put
    enabled: false
    expiry_days: 14
---
name: vwap
signal_type: vwap_cross_up
option_strategy: bull_call_spread
max_position_value: 2500
`
	rules, err := ParseRules([]byte(data))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}

	if !rules[0].Enabled || rules[0].ExpiryDays != 7 || rules[0].StopLossPercent == nil || !rules[0].StopLossPercent.Equal(decimal.NewFromInt(25)) {
		t.Errorf("unexpected first rule %+v", rules[0])
	}
	if rules[1].Enabled || rules[1].ExpiryDays != 14 {
		t.Errorf("unexpected second rule %+v", rules[1])
	}
	if rules[2].SignalType != trading.SignalVWAPCrossUp || !rules[2].MaxPositionValue.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("unexpected third rule %+v", rules[2])
	}
}

func TestParseRulesInvalid(t *testing.T) {
	_, err := ParseRules([]byte("name: x\nsignal_type: nope\noption_strategy: buy_call\n"))
	if !errors.Is(err, trading.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestLoadRuleFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(dir, rel)
		os.MkdirAll(filepath.Dir(p), 0755)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.yaml", "name: a\nsignal_type: custom\noption_strategy: straddle\n")
	write("nested/deep/b.yaml", "name: b\nsignal_type: custom\noption_strategy: strangle\n")
	write("notes.txt", "ignored")

	files, err := LoadRuleFiles(dir, "")
	if err != nil {
		t.Fatalf("LoadRuleFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Rules[0].Name != "a" || files[1].Rules[0].Name != "b" {
		t.Errorf("unexpected files %+v", files)
	}

	files, err = LoadRuleFiles(dir, "*.yaml")
	if err != nil || len(files) != 1 {
		t.Errorf("expected only top-level file, got %d %v", len(files), err)
	}
}
