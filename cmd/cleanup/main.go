// Command cleanup deletes dashboard access-log rows past the retention window
// and sessions that have expired.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/opentrusty/embedgate/internal/config"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		olderThan   time.Duration
		databaseURL string
		dryRun      bool
	)

	flagSet := pflag.NewFlagSet("cleanup", pflag.ContinueOnError)
	flagSet.DurationVar(&olderThan, "older-than", 90*24*time.Hour, "delete access-log rows older than this")
	flagSet.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string (default: DB_* environment)")
	flagSet.BoolVar(&dryRun, "dry-run", false, "report the cutoff without deleting")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	logger.InitLogger(logger.Config{Level: "info", Format: "text", ServiceName: "embedgate-cleanup", Output: os.Stderr, DisableOTel: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cutoff := time.Now().Add(-olderThan).UTC()
	if dryRun {
		slog.Info("dry run", logger.String("cutoff", cutoff.Format(time.RFC3339)))
		return nil
	}

	db, err := openDB(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := postgres.NewAccessLogRepository(db).DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	slog.Info("access log cleanup complete",
		logger.Component("cleanup"),
		logger.RowsAffected(removed),
		logger.String("cutoff", cutoff.Format(time.RFC3339)),
	)

	expired, err := postgres.NewSessionRepository(db).DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	slog.Info("expired sessions removed",
		logger.Component("cleanup"),
		logger.RowsAffected(expired),
	)
	return nil
}

func openDB(ctx context.Context, databaseURL string) (*postgres.DB, error) {
	if databaseURL == "" {
		dbCfg, err := config.LoadDatabase()
		if err != nil {
			return nil, err
		}
		databaseURL = dbCfg.DSN()
	}
	return postgres.Open(ctx, databaseURL)
}
