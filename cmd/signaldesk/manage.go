package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xinguang/signaldesk/pkg/config"
	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/account"
)

// decimalFlag parses a string flag as a decimal, returning nil when unset
func decimalFlag(flags *pflag.FlagSet, name string) (*decimal.Decimal, error) {
	if !flags.Changed(name) {
		return nil, nil
	}
	s, _ := flags.GetString(name)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &trading.ValidationError{Field: name, Value: s, Message: "not a number"}
	}
	return &d, nil
}

func intFlag(flags *pflag.FlagSet, name string) *int {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetInt(name)
	return &v
}

func boolFlag(flags *pflag.FlagSet, name string) *bool {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetBool(name)
	return &v
}

func stringFlag(flags *pflag.FlagSet, name string) *string {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetString(name)
	return &v
}

func watchlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"watch"},
		Short:   "Manage watched symbols",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List watched symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			items, err := a.account.Watchlist(ctx, a.userID)
			if err != nil {
				return err
			}
			return a.output(items, func() { a.printer.Watchlist(items) })
		},
	}

	addCmd := &cobra.Command{
		Use:   "add SYMBOL...",
		Short: "Watch one or more symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			patch := watchlistPatch(cmd.Flags())
			if patch.BBPeriod == nil {
				patch.BBPeriod = &a.cfg.Indicators.BBPeriod
			}
			if patch.BBStdDev == nil {
				patch.BBStdDev = &a.cfg.Indicators.BBStdDev
			}

			var added []*trading.WatchlistItem
			for _, symbol := range args {
				item, err := a.account.AddSymbol(ctx, a.userID, symbol, patch)
				if err != nil {
					return fmt.Errorf("%s: %w", strings.ToUpper(symbol), err)
				}
				added = append(added, item)
			}
			return a.output(added, func() {
				for _, item := range added {
					a.printer.Success("Watching %s (BB %d/%.1f)", item.Symbol, item.BBPeriod, item.BBStdDev)
				}
			})
		},
	}
	addWatchlistFlags(addCmd)

	updateCmd := &cobra.Command{
		Use:   "update SYMBOL",
		Short: "Change a symbol's indicator settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			item, err := a.account.FindSymbol(ctx, a.userID, args[0])
			if err != nil {
				return err
			}
			item, err = a.account.UpdateWatchlist(ctx, a.userID, item.ID, watchlistPatch(cmd.Flags()))
			if err != nil {
				return err
			}
			return a.output(item, func() { a.printer.Success("Updated %s", item.Symbol) })
		},
	}
	addWatchlistFlags(updateCmd)
	updateCmd.Flags().Bool("enabled", true, "Enable or disable the symbol")

	removeCmd := &cobra.Command{
		Use:     "remove SYMBOL",
		Aliases: []string{"rm"},
		Short:   "Stop watching a symbol",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			item, err := a.account.FindSymbol(ctx, a.userID, args[0])
			if err != nil {
				return err
			}
			if err := a.account.RemoveSymbol(ctx, a.userID, item.ID); err != nil {
				return err
			}
			return a.output(item, func() { a.printer.Success("Removed %s", item.Symbol) })
		},
	}

	cmd.AddCommand(listCmd, addCmd, updateCmd, removeCmd)
	return cmd
}

func addWatchlistFlags(cmd *cobra.Command) {
	cmd.Flags().Int("period", trading.DefaultWatchBBPeriod, "Bollinger period")
	cmd.Flags().Float64("std-dev", trading.DefaultWatchBBStdDev, "Bollinger standard deviation multiplier")
	cmd.Flags().Bool("vwap", true, "Compute VWAP and VWAP cross signals")
}

func watchlistPatch(flags *pflag.FlagSet) account.WatchlistPatch {
	patch := account.WatchlistPatch{
		BBPeriod:    intFlag(flags, "period"),
		VWAPEnabled: boolFlag(flags, "vwap"),
	}
	if flags.Lookup("enabled") != nil {
		patch.Enabled = boolFlag(flags, "enabled")
	}
	if flags.Changed("std-dev") {
		v, _ := flags.GetFloat64("std-dev")
		patch.BBStdDev = &v
	}
	return patch
}

// resolveRule finds a rule by ID, ID prefix or exact name
func (a *app) resolveRule(ctx context.Context, ref string) (*trading.SignalRule, error) {
	rules, err := a.account.Rules(ctx, a.userID)
	if err != nil {
		return nil, err
	}

	var matches []*trading.SignalRule
	for _, r := range rules {
		if r.ID == ref || r.Name == ref {
			return r, nil
		}
		if strings.HasPrefix(r.ID, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: signal rule %s", trading.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return nil, &trading.ValidationError{Field: "rule", Value: ref, Message: "ambiguous rule id"}
	}
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage signal rules",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List signal rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			rules, err := a.account.Rules(ctx, a.userID)
			if err != nil {
				return err
			}
			return a.output(rules, func() { a.printer.Rules(rules) })
		},
	}

	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a signal rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := rulePatch(cmd.Flags())
			if err != nil {
				return err
			}
			if patch.SignalType == nil || patch.OptionStrategy == nil {
				return fmt.Errorf("--signal and --strategy are required")
			}

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			rule := trading.NewSignalRule(a.userID, args[0], *patch.SignalType, *patch.OptionStrategy)
			if patch.Enabled != nil {
				rule.Enabled = *patch.Enabled
			}
			if patch.StrikeOffsetPercent != nil {
				rule.StrikeOffsetPercent = *patch.StrikeOffsetPercent
			}
			if patch.ExpiryDays != nil {
				rule.ExpiryDays = *patch.ExpiryDays
			}
			if patch.PositionSizePercent != nil {
				rule.PositionSizePercent = *patch.PositionSizePercent
			}
			if patch.MaxPositionValue != nil {
				rule.MaxPositionValue = *patch.MaxPositionValue
			}
			rule.TrailingStopPercent = patch.TrailingStopPercent
			rule.StopLossPercent = patch.StopLossPercent
			rule.TakeProfitPercent = patch.TakeProfitPercent

			rule, err = a.account.AddRule(ctx, a.userID, rule)
			if err != nil {
				return err
			}
			return a.output(rule, func() { a.printer.Success("Added rule %s (%s)", rule.Name, rule.ID) })
		},
	}
	addRuleFlags(addCmd)

	updateCmd := &cobra.Command{
		Use:   "update RULE",
		Short: "Change a signal rule (by ID, ID prefix or name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := rulePatch(cmd.Flags())
			if err != nil {
				return err
			}
			patch.Name = stringFlag(cmd.Flags(), "name")
			patch.ClearTrailingStop, _ = cmd.Flags().GetBool("clear-trailing-stop")
			patch.ClearStopLoss, _ = cmd.Flags().GetBool("clear-stop-loss")
			patch.ClearTakeProfit, _ = cmd.Flags().GetBool("clear-take-profit")

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			rule, err := a.resolveRule(ctx, args[0])
			if err != nil {
				return err
			}
			rule, err = a.account.UpdateRule(ctx, a.userID, rule.ID, patch)
			if err != nil {
				return err
			}
			return a.output(rule, func() { a.printer.Success("Updated rule %s", rule.Name) })
		},
	}
	addRuleFlags(updateCmd)
	updateCmd.Flags().String("name", "", "Rename the rule")
	updateCmd.Flags().Bool("clear-trailing-stop", false, "Remove the trailing stop")
	updateCmd.Flags().Bool("clear-stop-loss", false, "Remove the stop loss")
	updateCmd.Flags().Bool("clear-take-profit", false, "Remove the take profit")

	deleteCmd := &cobra.Command{
		Use:     "delete RULE",
		Aliases: []string{"rm"},
		Short:   "Delete a signal rule (by ID, ID prefix or name)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			rule, err := a.resolveRule(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.account.DeleteRule(ctx, a.userID, rule.ID); err != nil {
				return err
			}
			return a.output(rule, func() { a.printer.Success("Deleted rule %s", rule.Name) })
		},
	}

	importCmd := &cobra.Command{
		Use:   "import [DIR]",
		Short: "Create or update rules from YAML files",
		Long: `Reads every file under DIR (default: rules_dir from the config, or
~/.signaldesk/rules) matching rules_glob. Rules are matched by name:
existing rules are updated in place, new names are created.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			dir := a.cfg.RulesDir
			if len(args) > 0 {
				dir = args[0]
			}
			if dir == "" {
				if dir, err = config.GetRulesDir(); err != nil {
					return err
				}
			}

			files, err := config.LoadRuleFiles(dir, a.cfg.RulesGlob)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no rule files in %s matching %s", dir, a.cfg.RulesGlob)
			}

			type imported struct {
				Path    string `json:"path"`
				Created int    `json:"created"`
				Updated int    `json:"updated"`
			}
			var results []imported
			for _, f := range files {
				created, updated, err := a.account.ImportRules(ctx, a.userID, f.Rules)
				if err != nil {
					return fmt.Errorf("%s: %w", f.Path, err)
				}
				results = append(results, imported{Path: f.Path, Created: created, Updated: updated})
			}
			return a.output(results, func() {
				for _, r := range results {
					a.printer.Success("%s: %d created, %d updated", r.Path, r.Created, r.Updated)
				}
			})
		},
	}

	cmd.AddCommand(listCmd, addCmd, updateCmd, deleteCmd, importCmd)
	return cmd
}

func addRuleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("signal", "", "Signal type, e.g. bb_breakout_up, vwap_cross_down")
	f.String("strategy", "", "Option strategy, e.g. buy_call, sell_put")
	f.Bool("enabled", true, "Enable or disable the rule")
	f.String("strike-offset", "", "Strike offset from the underlying, percent")
	f.Int("expiry-days", 0, "Days to expiry")
	f.String("size", "", "Position size, percent of balance")
	f.String("max-value", "", "Maximum position value")
	f.String("trailing-stop", "", "Trailing stop, percent")
	f.String("stop-loss", "", "Stop loss, percent")
	f.String("take-profit", "", "Take profit, percent")
}

func rulePatch(flags *pflag.FlagSet) (account.RulePatch, error) {
	var patch account.RulePatch

	if s := stringFlag(flags, "signal"); s != nil {
		t, err := trading.ParseSignalType(*s)
		if err != nil {
			return patch, err
		}
		patch.SignalType = &t
	}
	if s := stringFlag(flags, "strategy"); s != nil {
		o, err := trading.ParseOptionStrategy(*s)
		if err != nil {
			return patch, err
		}
		patch.OptionStrategy = &o
	}
	patch.Enabled = boolFlag(flags, "enabled")
	patch.ExpiryDays = intFlag(flags, "expiry-days")

	decimals := []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"strike-offset", &patch.StrikeOffsetPercent},
		{"size", &patch.PositionSizePercent},
		{"max-value", &patch.MaxPositionValue},
		{"trailing-stop", &patch.TrailingStopPercent},
		{"stop-loss", &patch.StopLossPercent},
		{"take-profit", &patch.TakeProfitPercent},
	}
	for _, d := range decimals {
		v, err := decimalFlag(flags, d.name)
		if err != nil {
			return patch, err
		}
		*d.dst = v
	}
	return patch, nil
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change trading settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show trading settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			s, err := a.account.Settings(ctx, a.userID)
			if err != nil {
				return err
			}
			return a.output(s, func() { a.printer.Settings(s) })
		},
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change trading settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := false
			cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
				changed = changed || f.Changed
			})
			if !changed {
				return fmt.Errorf("nothing to change: see `signaldesk settings set --help`")
			}

			flags := cmd.Flags()

			patch := account.SettingsPatch{
				AutoTradeEnabled:    boolFlag(flags, "auto-trade"),
				PaperTradingEnabled: boolFlag(flags, "paper"),
				MaxDailyTrades:      intFlag(flags, "max-daily-trades"),
				TradingHoursStart:   stringFlag(flags, "hours-start"),
				TradingHoursEnd:     stringFlag(flags, "hours-end"),
			}
			var err error
			if patch.MaxDailyLoss, err = decimalFlag(flags, "max-daily-loss"); err != nil {
				return err
			}
			if patch.MaxPositionSize, err = decimalFlag(flags, "max-position"); err != nil {
				return err
			}
			if patch.PaperTradingBalance, err = decimalFlag(flags, "balance"); err != nil {
				return err
			}

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			s, err := a.account.UpdateSettings(ctx, a.userID, patch)
			if err != nil {
				return err
			}
			return a.output(s, func() {
				a.printer.Success("Settings updated")
				a.printer.Settings(s)
			})
		},
	}
	f := setCmd.Flags()
	f.Bool("auto-trade", false, "Allow the engine to trade signals automatically")
	f.Bool("paper", true, "Enable paper trading")
	f.Int("max-daily-trades", 0, "Maximum auto trades per day")
	f.String("max-daily-loss", "", "Stop auto trading after this realized loss in a day")
	f.String("max-position", "", "Maximum value of any single position")
	f.String("hours-start", "", "Trading window start, HH:MM")
	f.String("hours-end", "", "Trading window end, HH:MM")
	f.String("balance", "", "Reset the paper balance")

	cmd.AddCommand(showCmd, setCmd)
	return cmd
}
