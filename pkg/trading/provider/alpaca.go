package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// marketDataClient is the subset of the Alpaca market data client we use
type marketDataClient interface {
	GetLatestBars(symbols []string, req marketdata.GetLatestBarRequest) (map[string]marketdata.Bar, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaOptions configures the Alpaca provider
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // optional, defaults to the Alpaca data API

	// PollInterval is the Subscribe polling period
	PollInterval time.Duration

	Logger *zap.Logger
}

// AlpacaProvider reads bars and trades from Alpaca's market data API
type AlpacaProvider struct {
	client   marketDataClient
	interval time.Duration
	logger   *zap.Logger
}

// NewAlpacaProvider creates an Alpaca-backed provider
func NewAlpacaProvider(opts AlpacaOptions) (*AlpacaProvider, error) {
	if opts.APIKey == "" || opts.APISecret == "" {
		return nil, fmt.Errorf("alpaca: ALPACA_API_KEY and ALPACA_SECRET_KEY are required")
	}

	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	return newAlpacaProvider(client, opts), nil
}

func newAlpacaProvider(client marketDataClient, opts AlpacaOptions) *AlpacaProvider {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AlpacaProvider{
		client:   client,
		interval: opts.PollInterval,
		logger:   opts.Logger.Named("alpaca"),
	}
}

func barTick(symbol string, b marketdata.Bar) trading.Tick {
	return trading.Tick{
		Symbol:    symbol,
		Price:     b.Close,
		High:      b.High,
		Low:       b.Low,
		Volume:    float64(b.Volume),
		Timestamp: b.Timestamp,
	}
}

// Latest returns the latest minute bar per symbol, in symbol order
func (a *AlpacaProvider) Latest(ctx context.Context, symbols []string) ([]trading.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars, err := a.client.GetLatestBars(symbols, marketdata.GetLatestBarRequest{})
	if err != nil {
		return nil, fmt.Errorf("alpaca latest bars: %w", err)
	}

	ticks := make([]trading.Tick, 0, len(bars))
	for symbol, bar := range bars {
		ticks = append(ticks, barTick(symbol, bar))
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Symbol < ticks[j].Symbol })
	return ticks, nil
}

func alpacaTimeFrame(i Interval) marketdata.TimeFrame {
	switch i {
	case Interval5Min:
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case Interval15Min:
		return marketdata.NewTimeFrame(15, marketdata.Min)
	case Interval60Min:
		return marketdata.OneHour
	case IntervalDaily:
		return marketdata.OneDay
	default:
		return marketdata.OneMin
	}
}

// History returns up to limit bars, oldest first
func (a *AlpacaProvider) History(ctx context.Context, symbol string, interval Interval, limit int) ([]trading.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// weekends and closed hours leave gaps, so look back further than limit bars
	lookback := time.Duration(limit) * interval.Duration() * 4
	if lookback < 5*24*time.Hour {
		lookback = 5 * 24 * time.Hour
	}

	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(interval),
		Start:     time.Now().Add(-lookback),
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, err)
	}

	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	ticks := make([]trading.Tick, len(bars))
	for i, b := range bars {
		ticks[i] = barTick(symbol, b)
	}
	return ticks, nil
}

// Quote returns the latest trade price with the day's bar for context
func (a *AlpacaProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trade, err := a.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("alpaca latest trade %s: %w", symbol, err)
	}

	q := &Quote{
		Symbol:    symbol,
		Price:     trade.Price,
		Timestamp: trade.Timestamp,
	}

	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     time.Now().AddDate(0, 0, -7),
	})
	if err != nil {
		a.logger.Debug("daily bars unavailable", zap.String("symbol", symbol), zap.Error(err))
		return q, nil
	}
	if n := len(bars); n > 0 {
		today := bars[n-1]
		q.Open, q.High, q.Low, q.Volume = today.Open, today.High, today.Low, float64(today.Volume)
		if n > 1 {
			q.PrevClose = bars[n-2].Close
			q.Change = q.Price - q.PrevClose
			if q.PrevClose != 0 {
				q.ChangePercent = q.Change / q.PrevClose * 100
			}
		}
	}
	return q, nil
}

// Subscribe polls latest bars every PollInterval
func (a *AlpacaProvider) Subscribe(ctx context.Context, symbols []string, callback func(trading.Tick)) error {
	Poll(ctx, a, symbols, a.interval, a.logger, callback)
	return nil
}

// Name implements Provider
func (a *AlpacaProvider) Name() string {
	return "alpaca"
}

// Close implements Provider
func (a *AlpacaProvider) Close() error {
	return nil
}
