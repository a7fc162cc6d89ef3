package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kodix/kodix/internal/config"
	"github.com/kodix/kodix/internal/database"
	"github.com/kodix/kodix/internal/logging"
)

var envFile string

// rootCmd loads configuration and logging before any subcommand runs.
var rootCmd = &cobra.Command{
	Use:           "kodix",
	Short:         "Kodix multi-tenant team apps",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file to load")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCareCmd)
	rootCmd.AddCommand(importSalesCmd)
}

// setup loads config, configures the default logger and opens the database.
func setup() (*config.Config, *slog.Logger, *sql.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, logger, db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
