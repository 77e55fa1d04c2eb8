package main

import (
	"fmt"
	"os"

	"github.com/artpar/coworkbill/bootstrap"
	"github.com/artpar/coworkbill/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coworkbill",
	Short: "Recurring billing engine for coworking spaces",
	Long: `coworkbill keeps coworking invoices moving.

It marks unpaid invoices overdue once their due date passes, generates the
next cycle's invoice for every rented resource, and serves the billing API
used by the admin dashboard.

Quick start:
  coworkbill serve               # Start the API and the recurring check
  coworkbill check               # Run one recurring check and exit

Management:
  coworkbill tenant add <id>     # Register a tenant
  coworkbill validate            # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "coworkbill.yaml", "config file path")
}

// openApp builds the application for one-shot commands. Logs go to stderr
// so command output stays machine readable.
func openApp() (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	a, err := bootstrap.New(bootstrap.Options{Config: cfg, Version: version, Logger: &logger})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	return a, nil
}
