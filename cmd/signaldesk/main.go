// signaldesk - Bollinger/VWAP signal desk with a paper options ledger
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xinguang/signaldesk/pkg/auth"
	"github.com/xinguang/signaldesk/pkg/config"
	"github.com/xinguang/signaldesk/pkg/ui"
)

var (
	version    = "0.1.0"
	configPath string
	userFlag   string
	jsonOutput bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "signaldesk",
		Short: "Market signal desk with paper trading",
		Long: `signaldesk watches symbols for Bollinger Band and VWAP signals,
matches them against your signal rules and paper trades the resulting
option orders against a simulated balance.`,
		SilenceUsage: true,
	}

	// Flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (defaults to ~/.signaldesk/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID (defaults to config user_id or SIGNALDESK_USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Subcommands
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(tradeCmd())
	rootCmd.AddCommand(positionsCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(tradesCmd())
	rootCmd.AddCommand(signalsCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(watchlistCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(settingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", config.AppName, version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// Never echo secrets
			if cfg.Feed.APISecret != "" {
				cfg.Feed.APISecret = "********"
			}
			if cfg.Cache.Password != "" {
				cfg.Cache.Password = "********"
			}
			if jsonOutput {
				return ui.NewPrinter().JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.ValidateAndPrint() {
				return fmt.Errorf("configuration is invalid")
			}
			ui.NewPrinter().Success("Configuration OK (%s)", cfg.Path())
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Path()); err == nil {
				return fmt.Errorf("config already exists: %s", cfg.Path())
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			ui.NewPrinter().Success("Wrote %s", cfg.Path())
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd, initCmd)
	return cmd
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage market data credentials",
	}

	// Login subcommand
	loginCmd := &cobra.Command{
		Use:   "login [provider] KEY SECRET",
		Short: "Store API credentials for a provider (alpaca)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerName := "alpaca"
			if len(args) == 3 {
				providerName, args = args[0], args[1:]
			}
			provider, err := parseAuthProvider(providerName)
			if err != nil {
				return err
			}

			baseURL, _ := cmd.Flags().GetString("base-url")
			authMgr := auth.NewManager("")
			err = authMgr.SetCredentials(&auth.Credentials{
				Provider:  provider,
				APIKey:    args[0],
				APISecret: args[1],
				BaseURL:   baseURL,
			})
			if err != nil {
				return err
			}
			ui.NewPrinter().Success("Saved %s credentials", provider)
			return nil
		},
	}
	loginCmd.Flags().String("base-url", "", "Override the provider's API base URL")

	// Logout subcommand
	logoutCmd := &cobra.Command{
		Use:   "logout [provider]",
		Short: "Remove stored credentials for a provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerName := "alpaca"
			if len(args) > 0 {
				providerName = args[0]
			}
			provider, err := parseAuthProvider(providerName)
			if err != nil {
				return err
			}

			if err := auth.NewManager("").Logout(provider); err != nil {
				return err
			}
			ui.NewPrinter().Success("Logged out from %s", provider)
			return nil
		},
	}

	// Status subcommand
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which providers have stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			printer := ui.NewPrinter()
			providers := auth.NewManager("").ListProviders()
			if len(providers) == 0 {
				printer.Dim("No stored credentials")
				return
			}
			for _, p := range providers {
				printer.Success("%s", p)
			}
		},
	}

	cmd.AddCommand(loginCmd, logoutCmd, statusCmd)
	return cmd
}

func parseAuthProvider(name string) (auth.Provider, error) {
	switch strings.ToLower(name) {
	case "alpaca":
		return auth.ProviderAlpaca, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", name)
	}
}
