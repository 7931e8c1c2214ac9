package account

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

// RulePatch holds the rule fields to change; nil fields are kept. The
// Clear* flags remove an optional percentage.
type RulePatch struct {
	Name                *string
	SignalType          *trading.SignalType
	Enabled             *bool
	OptionStrategy      *trading.OptionStrategy
	StrikeOffsetPercent *decimal.Decimal
	ExpiryDays          *int
	PositionSizePercent *decimal.Decimal
	MaxPositionValue    *decimal.Decimal
	TrailingStopPercent *decimal.Decimal
	StopLossPercent     *decimal.Decimal
	TakeProfitPercent   *decimal.Decimal

	ClearTrailingStop bool
	ClearStopLoss     bool
	ClearTakeProfit   bool
}

func (p RulePatch) apply(r *trading.SignalRule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.SignalType != nil {
		r.SignalType = *p.SignalType
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.OptionStrategy != nil {
		r.OptionStrategy = *p.OptionStrategy
	}
	if p.StrikeOffsetPercent != nil {
		r.StrikeOffsetPercent = *p.StrikeOffsetPercent
	}
	if p.ExpiryDays != nil {
		r.ExpiryDays = *p.ExpiryDays
	}
	if p.PositionSizePercent != nil {
		r.PositionSizePercent = *p.PositionSizePercent
	}
	if p.MaxPositionValue != nil {
		r.MaxPositionValue = *p.MaxPositionValue
	}

	switch {
	case p.ClearTrailingStop:
		r.TrailingStopPercent = nil
	case p.TrailingStopPercent != nil:
		v := *p.TrailingStopPercent
		r.TrailingStopPercent = &v
	}
	switch {
	case p.ClearStopLoss:
		r.StopLossPercent = nil
	case p.StopLossPercent != nil:
		v := *p.StopLossPercent
		r.StopLossPercent = &v
	}
	switch {
	case p.ClearTakeProfit:
		r.TakeProfitPercent = nil
	case p.TakeProfitPercent != nil:
		v := *p.TakeProfitPercent
		r.TakeProfitPercent = &v
	}
}

// Rules lists the user's rules by name
func (s *Service) Rules(ctx context.Context, userID string) ([]*trading.SignalRule, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	return s.store.ListSignalRules(ctx, storage.RuleFilter{UserID: userID})
}

// AddRule creates a rule. Zero sizing fields take the defaults from
// trading.NewSignalRule; Enabled is taken as given, so callers building a
// rule from scratch should start from NewSignalRule.
func (s *Service) AddRule(ctx context.Context, userID string, rule *trading.SignalRule) (*trading.SignalRule, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}

	r := trading.NewSignalRule(userID, rule.Name, rule.SignalType, rule.OptionStrategy)
	r.Enabled = rule.Enabled
	if !rule.StrikeOffsetPercent.IsZero() {
		r.StrikeOffsetPercent = rule.StrikeOffsetPercent
	}
	if rule.ExpiryDays != 0 {
		r.ExpiryDays = rule.ExpiryDays
	}
	if !rule.PositionSizePercent.IsZero() {
		r.PositionSizePercent = rule.PositionSizePercent
	}
	if !rule.MaxPositionValue.IsZero() {
		r.MaxPositionValue = rule.MaxPositionValue
	}
	r.TrailingStopPercent = rule.TrailingStopPercent
	r.StopLossPercent = rule.StopLossPercent
	r.TakeProfitPercent = rule.TakeProfitPercent

	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		return tx.InsertSignalRule(ctx, r)
	})
	if err != nil {
		return nil, trading.WrapStore("insert_signal_rule", err)
	}
	s.logger.Info("signal rule added",
		zap.String("user", userID),
		zap.String("rule", r.Name),
		zap.String("signal", string(r.SignalType)))
	return r, nil
}

// UpdateRule patches the rule with id
func (s *Service) UpdateRule(ctx context.Context, userID, id string, patch RulePatch) (*trading.SignalRule, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	var rule *trading.SignalRule
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		var err error
		rule, err = tx.GetSignalRule(ctx, userID, id)
		if err != nil {
			return err
		}
		patch.apply(rule)
		if err := rule.Validate(); err != nil {
			return err
		}
		rule.UpdatedAt = s.now()
		return tx.UpdateSignalRule(ctx, rule)
	})
	if err != nil {
		return nil, trading.WrapStore("update_signal_rule", err)
	}
	return rule, nil
}

// DeleteRule removes the rule. Past signals keep their signal_rule_id.
func (s *Service) DeleteRule(ctx context.Context, userID, id string) error {
	if userID == "" {
		return trading.ErrNotAuthenticated
	}
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		return tx.DeleteSignalRule(ctx, userID, id)
	})
	return trading.WrapStore("delete_signal_rule", err)
}

// ImportRules adds each rule, replacing an existing rule with the same name
// in place. It returns the number of rules created and updated.
func (s *Service) ImportRules(ctx context.Context, userID string, rules []*trading.SignalRule) (created, updated int, err error) {
	existing, err := s.Rules(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	byName := make(map[string]*trading.SignalRule, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}

	for _, r := range rules {
		if cur, ok := byName[r.Name]; ok {
			patch := RulePatch{
				SignalType:          &r.SignalType,
				Enabled:             &r.Enabled,
				OptionStrategy:      &r.OptionStrategy,
				TrailingStopPercent: r.TrailingStopPercent,
				StopLossPercent:     r.StopLossPercent,
				TakeProfitPercent:   r.TakeProfitPercent,
				ClearTrailingStop:   r.TrailingStopPercent == nil,
				ClearStopLoss:       r.StopLossPercent == nil,
				ClearTakeProfit:     r.TakeProfitPercent == nil,
			}
			if !r.StrikeOffsetPercent.IsZero() {
				patch.StrikeOffsetPercent = &r.StrikeOffsetPercent
			}
			if r.ExpiryDays != 0 {
				patch.ExpiryDays = &r.ExpiryDays
			}
			if !r.PositionSizePercent.IsZero() {
				patch.PositionSizePercent = &r.PositionSizePercent
			}
			if !r.MaxPositionValue.IsZero() {
				patch.MaxPositionValue = &r.MaxPositionValue
			}
			if _, err := s.UpdateRule(ctx, userID, cur.ID, patch); err != nil {
				return created, updated, err
			}
			updated++
			continue
		}
		if _, err := s.AddRule(ctx, userID, r); err != nil {
			return created, updated, err
		}
		created++
	}
	return created, updated, nil
}
