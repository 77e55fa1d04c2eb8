package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/coworkbill/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the coworkbill configuration.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Billing periods are well formed
  - Store is reachable (optional)

Examples:
  coworkbill validate
  coworkbill validate --config /etc/coworkbill/config.yaml --check-store`,
	RunE: runValidate,
}

var validateCheckStore bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckStore, "check-store", false, "check that the invoice store is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if !config.HasEnvConfig() {
			fmt.Printf("  %s Config file exists\n", crossMark)
			return fmt.Errorf("config file not found: %s", cfgFile)
		}
		fmt.Printf("  %s Using environment variables\n", checkMark)
	} else {
		fmt.Printf("  %s Config file exists\n", checkMark)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	// Show config summary
	fmt.Printf("  %s Store: %s\n", checkMark, storeSummary(cfg))
	fmt.Printf("  %s Check interval: %s (timeout %s)\n", checkMark, cfg.Billing.CheckInterval, cfg.Billing.CheckTimeout)
	fmt.Printf("  %s Billing periods: %v\n", checkMark, cfg.Billing.Calendar().Names())
	if cfg.Redis.Addr != "" {
		fmt.Printf("  %s Check lock: redis %s\n", checkMark, cfg.Redis.Addr)
	} else {
		fmt.Printf("  %s Check lock: in-process\n", checkMark)
	}

	if validateCheckStore {
		a, err := openApp()
		if err != nil {
			fmt.Printf("  %s Store reachable\n", crossMark)
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := a.Store.Ping(ctx); err != nil {
			fmt.Printf("  %s Store reachable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
			return fmt.Errorf("store unreachable")
		}
		fmt.Printf("  %s Store reachable\n", checkMark)
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func storeSummary(cfg *config.Config) string {
	switch cfg.Store.Driver {
	case "firestore":
		return fmt.Sprintf("firestore (project %s)", cfg.Firestore.ProjectID)
	case "sqlite":
		return fmt.Sprintf("sqlite (%s)", cfg.Store.DSN)
	default:
		return cfg.Store.Driver
	}
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
