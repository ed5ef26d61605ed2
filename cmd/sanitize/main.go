package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/database"
	"gastos/pkg/logger"
	"gastos/process/sanitize"
)

func main() {
	fs := ff.NewFlagSet("sanitize")
	var (
		dryRun = fs.BoolLong("dry-run", "only list the tables that would be truncated")
		yes    = fs.BoolLong("yes", "confirm the destructive operation")
		reseed = fs.BoolLong("reseed", "seed roles, admin user and categories after truncating")
		tables = fs.StringLong("tables", "", "comma-separated tables (default: every application table)")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GASTOS")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	bootstrap.Logging(cfg)

	opts := sanitize.Options{DryRun: *dryRun, Yes: *yes, Reseed: *reseed, AdminPassword: cfg.AdminPassword}
	if *tables != "" {
		valid, invalid := sanitize.ParseTables(*tables)
		for _, t := range invalid {
			logger.Log.Warn().Str("table", t).Msg("skipping invalid table name")
		}
		if len(valid) == 0 {
			fmt.Fprintln(os.Stderr, "no valid table names to process")
			os.Exit(2)
		}
		opts.Tables = valid
	}

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open db")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sanitize.Run(ctx, db, os.Stdout, opts); err != nil {
		logger.Log.Fatal().Err(err).Msg("sanitize failed")
	}
}
