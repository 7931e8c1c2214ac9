package config

import (
	"fmt"
	"os"

	"github.com/xinguang/signaldesk/pkg/trading/provider"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are warnings
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

func (r *ValidationResult) fail(field string, value interface{}, msg string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (r *ValidationResult) warn(field string, value interface{}, msg string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: msg})
}

// Validate validates the configuration and returns validation results
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]ValidationError, 0),
	}

	if c.UserID == "" {
		result.warn("user_id", c.UserID, "not set; pass --user or SIGNALDESK_USER")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.LogLevel] {
		result.fail("log_level", c.LogLevel, "must be one of: debug, info, warn, error")
	}
	if c.LogFormat != "" && c.LogFormat != "console" && c.LogFormat != "json" {
		result.fail("log_format", c.LogFormat, "must be console or json")
	}

	// Store
	switch c.Store.Driver {
	case "memory":
		result.warn("store.driver", c.Store.Driver, "records are lost when the process exits")
	case "file", "":
	case "postgres":
		if c.Store.DSN == "" {
			result.fail("store.dsn", c.Store.DSN, "required for postgres (or set DATABASE_URL)")
		}
	default:
		result.fail("store.driver", c.Store.Driver, "must be one of: memory, file, postgres")
	}

	// Cache
	switch c.Cache.Driver {
	case "memory", "":
	case "redis":
		if c.Cache.Addr == "" {
			result.fail("cache.addr", c.Cache.Addr, "required for redis (or set REDIS_ADDR)")
		}
	default:
		result.fail("cache.driver", c.Cache.Driver, "must be memory or redis")
	}
	if c.Cache.TTL < 0 {
		result.fail("cache.ttl", c.Cache.TTL, "must be non-negative")
	}

	// Feed
	switch c.Feed.Provider {
	case "mock", "":
	case "alpaca":
		if c.Feed.APIKey == "" || c.Feed.APISecret == "" {
			result.fail("feed.api_key", "", "alpaca needs ALPACA_API_KEY and ALPACA_SECRET_KEY")
		}
	case "websocket":
		if c.Feed.URL == "" {
			result.fail("feed.url", c.Feed.URL, "required for websocket")
		}
	default:
		result.fail("feed.provider", c.Feed.Provider, "must be one of: mock, alpaca, websocket")
	}
	if c.Feed.Interval <= 0 {
		result.fail("feed.interval", c.Feed.Interval, "must be positive")
	}
	if _, err := provider.ParseInterval(c.Feed.History); err != nil {
		result.fail("feed.history", c.Feed.History, err.Error())
	}

	// Ledger
	if !c.Ledger.DefaultBalance.IsPositive() {
		result.fail("ledger.default_balance", c.Ledger.DefaultBalance.String(), "must be positive")
	}
	if c.Ledger.Commission.IsNegative() {
		result.fail("ledger.commission", c.Ledger.Commission.String(), "must be non-negative")
	}
	if c.Ledger.CloseCommissionMultiplier.IsNegative() {
		result.fail("ledger.close_commission_multiplier", c.Ledger.CloseCommissionMultiplier.String(), "must be non-negative")
	}

	// Indicators
	if c.Indicators.BBPeriod < 2 {
		result.fail("indicators.bb_period", c.Indicators.BBPeriod, "must be at least 2")
	}
	if c.Indicators.BBStdDev <= 0 {
		result.fail("indicators.bb_std_dev", c.Indicators.BBStdDev, "must be positive")
	}
	if c.Indicators.Lookback < c.Indicators.BBPeriod {
		result.warn("indicators.lookback", c.Indicators.Lookback, "shorter than bb_period; bands will never form")
	}

	// Engine
	if !c.Engine.PremiumPercent.IsPositive() {
		result.fail("engine.premium_percent", c.Engine.PremiumPercent.String(), "must be positive")
	}

	if c.RulesDir != "" {
		if _, err := os.Stat(c.RulesDir); os.IsNotExist(err) {
			result.warn("rules_dir", c.RulesDir, "path does not exist")
		}
	}

	return result
}

// ValidateAndPrint validates and prints errors/warnings
func (c *Config) ValidateAndPrint() bool {
	result := c.Validate()

	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "Configuration errors:\n")
		for _, err := range result.Errors {
			fmt.Fprintf(os.Stderr, "  ✗ %s: %s (value: %v)\n", err.Field, err.Message, err.Value)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(os.Stderr, "Configuration warnings:\n")
		for _, warn := range result.Warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ %s: %s (value: %v)\n", warn.Field, warn.Message, warn.Value)
		}
	}

	return result.IsValid()
}
