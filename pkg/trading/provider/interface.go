package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// Provider supplies market data for the signal engine
type Provider interface {
	// Latest returns the most recent tick for each symbol it knows
	Latest(ctx context.Context, symbols []string) ([]trading.Tick, error)

	// History returns up to limit bars for symbol, oldest first
	History(ctx context.Context, symbol string, interval Interval, limit int) ([]trading.Tick, error)

	// Quote returns a point-in-time quote for symbol
	Quote(ctx context.Context, symbol string) (*Quote, error)

	// Subscribe delivers ticks to callback until ctx is done. It returns once
	// the subscription is established.
	Subscribe(ctx context.Context, symbols []string, callback func(trading.Tick)) error

	// Name returns the provider name
	Name() string

	// Close closes the data provider connection
	Close() error
}

// Poll calls p.Latest every interval and hands each tick to callback. It is
// the Subscribe implementation for request/response providers.
func Poll(ctx context.Context, p Provider, symbols []string, interval time.Duration, logger *zap.Logger, callback func(trading.Tick)) {
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticks, err := p.Latest(ctx, symbols)
				if err != nil {
					if ctx.Err() == nil {
						logger.Warn("poll failed", zap.String("provider", p.Name()), zap.Error(err))
					}
					continue
				}
				for _, t := range ticks {
					callback(t)
				}
			}
		}
	}()
}
