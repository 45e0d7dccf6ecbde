// Command tenantctl creates tenants and toggles their active flag.
//
//	tenantctl create --name "Acme" --slug acme
//	tenantctl deactivate --slug acme
//	tenantctl list
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/opentrusty/embedgate/internal/config"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/store/postgres"
	"github.com/opentrusty/embedgate/internal/tenant"
)

const usage = "usage: tenantctl <create|activate|deactivate|list> [flags]"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	command, args := args[0], args[1:]

	var name, slug, databaseURL string
	flagSet := pflag.NewFlagSet("tenantctl "+command, pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "tenant display name (create)")
	flagSet.StringVar(&slug, "slug", "", "tenant URL slug")
	flagSet.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string (default: DB_* environment)")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger.InitLogger(logger.Config{Level: "info", Format: "text", ServiceName: "embedgate-tenantctl", Output: os.Stderr, DisableOTel: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	// A CLI run is short lived, so the cache only needs to outlast one command.
	svc := tenant.NewService(postgres.NewTenantRepository(db), tenant.CacheConfig{Capacity: 16, Shards: 1, TTL: time.Second})

	switch command {
	case "create":
		if name == "" || slug == "" {
			return errors.New("create requires --name and --slug")
		}
		t, err := svc.CreateTenant(ctx, name, slug)
		if err != nil {
			return err
		}
		slog.Info("tenant created", logger.TenantID(t.ID), logger.TenantSlug(t.Slug))
		return nil

	case "activate", "deactivate":
		if slug == "" {
			return fmt.Errorf("%s requires --slug", command)
		}
		t, err := svc.GetBySlug(ctx, slug)
		if err != nil {
			return err
		}
		t, err = svc.SetActive(ctx, t.ID, command == "activate")
		if err != nil {
			return err
		}
		slog.Info("tenant updated", logger.TenantID(t.ID), logger.TenantSlug(t.Slug), slog.Bool("active", t.Active))
		return nil

	case "list":
		tenants, err := svc.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSLUG\tNAME\tACTIVE")
		for _, t := range tenants {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", t.ID, t.Slug, t.Name, t.Active)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}
}
