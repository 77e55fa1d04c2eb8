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
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing API and the recurring check",
	Long: `Start the coworkbill server.

The server will:
  - Load configuration from coworkbill.yaml (or --config)
  - Or load configuration from COWORKBILL_* environment variables
  - Connect to the invoice store
  - Run the recurring check now and then every billing.check_interval
  - Serve the billing API under /api/billing

Environment variables (for container deployments):
  COWORKBILL_STORE_DRIVER             - firestore, sqlite or memory
  COWORKBILL_FIRESTORE_PROJECT_ID     - Google Cloud project
  COWORKBILL_REDIS_ADDR               - Redis address for the check lock
  COWORKBILL_BILLING_CHECK_INTERVAL   - Interval between checks (default: 60s)
  COWORKBILL_SERVER_PORT              - Server port (default: 8080)
  COWORKBILL_LOG_LEVEL                - Log level: debug, info, warn, error

Examples:
  coworkbill serve
  coworkbill serve --config /etc/coworkbill/config.yaml
  coworkbill serve --hot-reload=false

  # Container (env vars only):
  COWORKBILL_STORE_DRIVER=firestore COWORKBILL_FIRESTORE_PROJECT_ID=cowork coworkbill serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	// No configuration at all
	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set COWORKBILL_STORE_DRIVER and related environment variables")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  COWORKBILL_STORE_DRIVER=sqlite coworkbill serve")
		return nil
	}

	opts := bootstrap.Options{Version: version}

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		holder, err := config.NewHolder(cfgFile, zerolog.New(os.Stdout).With().Timestamp().Logger())
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		opts.Holder = holder
	} else {
		// Load config (file with env overrides, or env-only)
		cfg, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}
		opts.Config = cfg
	}

	app, err := bootstrap.New(opts)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
