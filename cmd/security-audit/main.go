// Command security-audit checks stored principals, tenants and dashboards
// against the tenant boundary rules. It exits 1 when violations are found.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/config"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/securityaudit"
	"github.com/opentrusty/embedgate/internal/store/postgres"
)

type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	var (
		format      string
		matrix      bool
		databaseURL string
	)

	flagSet := pflag.NewFlagSet("security-audit", pflag.ContinueOnError)
	flagSet.StringVar(&format, "format", "text", "output format: text or json")
	flagSet.BoolVar(&matrix, "matrix", false, "include the full principal x tenant access matrix")
	flagSet.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string (default: DB_* environment)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown --format %q", format)
	}

	logger.InitLogger(logger.Config{Level: "warn", Format: "text", ServiceName: "embedgate-security-audit", Output: os.Stderr, DisableOTel: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if databaseURL == "" {
		dbCfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		databaseURL = dbCfg.DSN()
	}
	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	auditor := securityaudit.NewAuditor(
		postgres.NewPrincipalRepository(db),
		postgres.NewTenantRepository(db),
		postgres.NewDashboardRepository(db),
		audit.NewSlogLogger(),
	)

	report, err := auditor.Run(ctx, securityaudit.Options{IncludeMatrix: matrix})
	if err != nil {
		return err
	}

	if format == "json" {
		err = report.WriteJSON(os.Stdout)
	} else {
		err = report.WriteText(os.Stdout)
	}
	if err != nil {
		return err
	}

	if report.Violations() > 0 {
		return exitError{code: 1}
	}
	return nil
}
