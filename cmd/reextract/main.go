package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"gastos/models"
	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/process/reextract"
)

func main() {
	fs := ff.NewFlagSet("reextract")
	var (
		username = fs.StringLong("user", "", "only retry this user's receipts (default: everyone)")
		limit    = fs.IntLong("limit", 0, "max receipts to retry (0 = no limit)")
		dryRun   = fs.BoolLong("dry-run", "print improvements without saving them")
		minGain  = fs.Float64Long("min-gain", 0.05, "required confidence improvement")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.Database(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open db")
	}
	store, err := bootstrap.Storage(ctx, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open storage")
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	p, err := bootstrap.NewPipeline(ctx, cfg, db, extract.NewScorer())
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to build recognition pipeline")
	}

	opts := reextract.Options{Limit: *limit, DryRun: *dryRun, MinGain: *minGain}
	if *username != "" {
		var u models.User
		if err := db.Where("username = ?", *username).First(&u).Error; err != nil {
			logger.Log.Fatal().Err(err).Str("username", *username).Msg("user not found")
		}
		opts.UserID = u.ID
	}

	r := reextract.Runner{DB: db, Storage: store, Processor: p.Processor, Out: os.Stdout}
	stats, err := r.Run(ctx, opts)
	if err != nil {
		logger.Log.Error().Err(err).Msg("reextract stopped")
	}
	fmt.Printf("checked=%d improved=%d failed=%d\n", stats.Checked, stats.Improved, stats.Failed)
	if err != nil {
		os.Exit(1)
	}
}
