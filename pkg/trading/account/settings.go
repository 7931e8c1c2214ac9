package account

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

// SettingsPatch holds the settings fields to change; nil fields are kept
type SettingsPatch struct {
	AutoTradeEnabled    *bool
	MaxDailyTrades      *int
	MaxDailyLoss        *decimal.Decimal
	MaxPositionSize     *decimal.Decimal
	TradingHoursStart   *string
	TradingHoursEnd     *string
	PaperTradingEnabled *bool
	PaperTradingBalance *decimal.Decimal
}

func (p SettingsPatch) apply(s *trading.TradingSettings) {
	if p.AutoTradeEnabled != nil {
		s.AutoTradeEnabled = *p.AutoTradeEnabled
	}
	if p.MaxDailyTrades != nil {
		s.MaxDailyTrades = *p.MaxDailyTrades
	}
	if p.MaxDailyLoss != nil {
		s.MaxDailyLoss = *p.MaxDailyLoss
	}
	if p.MaxPositionSize != nil {
		s.MaxPositionSize = *p.MaxPositionSize
	}
	if p.TradingHoursStart != nil {
		s.TradingHoursStart = *p.TradingHoursStart
	}
	if p.TradingHoursEnd != nil {
		s.TradingHoursEnd = *p.TradingHoursEnd
	}
	if p.PaperTradingEnabled != nil {
		s.PaperTradingEnabled = *p.PaperTradingEnabled
	}
	if p.PaperTradingBalance != nil {
		s.PaperTradingBalance = *p.PaperTradingBalance
	}
}

// Settings returns the user's settings, or the defaults when none are
// stored yet. Defaults are not written.
func (s *Service) Settings(ctx context.Context, userID string) (*trading.TradingSettings, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	settings, err := s.store.GetSettings(ctx, userID)
	if isNotFound(err) {
		return trading.NewSettings(userID, s.defaultBalance, s.now()), nil
	}
	if err != nil {
		return nil, trading.WrapStore("load_settings", err)
	}
	return settings, nil
}

// UpdateSettings applies patch on top of the stored settings (or defaults)
// and upserts the result
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch SettingsPatch) (*trading.TradingSettings, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	var settings *trading.TradingSettings
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		var err error
		settings, err = tx.GetSettings(ctx, userID)
		if isNotFound(err) {
			settings = trading.NewSettings(userID, s.defaultBalance, s.now())
		} else if err != nil {
			return err
		}

		patch.apply(settings)
		if err := settings.Validate(); err != nil {
			return err
		}
		settings.UpdatedAt = s.now()
		return tx.UpsertSettings(ctx, settings)
	})
	if err != nil {
		return nil, trading.WrapStore("upsert_settings", err)
	}
	s.logger.Info("settings updated", zap.String("user", userID))
	return settings, nil
}
