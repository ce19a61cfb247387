package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/DukeRupert/liftaudit/internal"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "liftaudit",
	Short: "Elevator and escalator audit report service",
	Long: `liftaudit turns recorded elevator and escalator audits into client-facing
reports.

Report jobs are queued over a small JSON API and processed by a background
worker in the same process:
  - audit data is loaded for a building address or location
  - report sections and device assessments are written by an LLM
  - the report is typeset with LaTeX
  - full reports are packaged with their audit photographs`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

// setup loads configuration and builds the logger.
func setup() (*internal.Config, *slog.Logger, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	return cfg, logger, nil
}

// openDB opens the Postgres pool and verifies it.
func openDB(ctx context.Context, cfg *internal.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}
