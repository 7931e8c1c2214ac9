package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/auth"
	"github.com/xinguang/signaldesk/pkg/config"
	"github.com/xinguang/signaldesk/pkg/logging"
	"github.com/xinguang/signaldesk/pkg/trading/account"
	"github.com/xinguang/signaldesk/pkg/trading/cache"
	rediscache "github.com/xinguang/signaldesk/pkg/trading/cache/redis"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
	"github.com/xinguang/signaldesk/pkg/trading/provider"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
	"github.com/xinguang/signaldesk/pkg/trading/storage/postgres"
	"github.com/xinguang/signaldesk/pkg/ui"
)

// app holds everything a command needs
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	printer *ui.Printer
	userID  string

	store   storage.Store
	ledger  *ledger.Ledger
	account *account.Service
}

// loadApp loads config and logging. Market data commands stop here.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if !cfg.ValidateAndPrint() {
		return nil, fmt.Errorf("invalid configuration: run `signaldesk config validate`")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, printer: ui.NewPrinter()}, nil
}

// newApp loads config, resolves the user and opens the store
func newApp(ctx context.Context) (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	a.userID, err = auth.UserID(ctx, auth.Chain{
		auth.Static(userFlag),
		auth.Static(cfg.UserID),
		auth.Env(""),
	})
	if err != nil {
		return nil, fmt.Errorf("no user: pass --user, set user_id in config or %s: %w", auth.DefaultUserEnv, err)
	}

	a.store, err = openStore(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.ledger = ledger.New(a.store, ledger.Options{
		DefaultBalance:            cfg.Ledger.DefaultBalance,
		Commission:                &cfg.Ledger.Commission,
		CloseCommissionMultiplier: &cfg.Ledger.CloseCommissionMultiplier,
		Logger:                    a.logger,
	})
	a.account = account.New(a.store, account.Options{
		DefaultBalance: cfg.Ledger.DefaultBalance,
		Logger:         a.logger,
	})
	return a, nil
}

// Close releases the store and flushes logs
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// output prints v as JSON when --json is set, otherwise calls render
func (a *app) output(v interface{}, render func()) error {
	if jsonOutput {
		return a.printer.JSON(v)
	}
	render()
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("memory store: records are lost on exit")
		return storage.NewMemoryStore(), nil
	case "file", "":
		path, err := cfg.StorePath()
		if err != nil {
			return nil, err
		}
		store, err := storage.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	c := a.cfg.Cache
	switch c.Driver {
	case "memory", "":
		return cache.NewMemory(c.TTL, c.MaxTicks), nil
	case "redis":
		rc, err := rediscache.New(ctx, rediscache.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			TTL:      c.TTL,
			MaxTicks: c.MaxTicks,
			Prefix:   "signaldesk",
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", c.Driver)
	}
}

func (a *app) openFeed() (provider.Provider, error) {
	f := a.cfg.Feed
	switch f.Provider {
	case "mock", "":
		return provider.NewMockProvider(provider.MockOptions{
			Interval: f.Interval,
			Logger:   a.logger,
		}), nil
	case "alpaca":
		key, secret, baseURL := auth.NewManager("").Resolve(auth.ProviderAlpaca, f.APIKey, f.APISecret, f.BaseURL)
		p, err := provider.NewAlpacaProvider(provider.AlpacaOptions{
			APIKey:       key,
			APISecret:    secret,
			BaseURL:      baseURL,
			PollInterval: f.Interval,
			Logger:       a.logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "websocket":
		return provider.NewWebSocketProvider(provider.WebSocketOptions{
			URL:    f.URL,
			Logger: a.logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown feed provider: %s", f.Provider)
	}
}

func (a *app) historyInterval() provider.Interval {
	interval, err := provider.ParseInterval(a.cfg.Feed.History)
	if err != nil {
		return provider.Interval1Min
	}
	return interval
}

// timeout bounds one-shot commands
const timeout = 30 * time.Second

// setup opens the app under a timeout context. The caller must call done.
func setup(cmd *cobra.Command) (context.Context, *app, func(), error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	a, err := newApp(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, a, func() {
		a.Close()
		cancel()
	}, nil
}
