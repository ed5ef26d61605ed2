package main

import (
	"context"
	"errors"
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
	"gastos/pkg/pending"
	"gastos/process/inbox"
)

func main() {
	fs := ff.NewFlagSet("inbox")
	var (
		dir       = fs.StringLong("dir", "inbox", "folder to pick receipts up from")
		processed = fs.StringLong("processed", "", "where handled files go (default: <dir>/processed)")
		username  = fs.StringLong("user", "", "owner of the staged receipts")
		workers   = fs.IntLong("workers", 0, "parallel workers (0 = number of CPUs)")
		watch     = fs.BoolLong("watch", "keep watching the folder for new files")
		dryRun    = fs.BoolLong("dry-run", "recognize and log without staging or moving files")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GASTOS")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *username == "" && !*dryRun {
		fmt.Fprintln(os.Stderr, "error: --user is required unless --dry-run is set")
		os.Exit(2)
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
	p, err := bootstrap.NewPipeline(ctx, cfg, db, extract.NewScorer())
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to build recognition pipeline")
	}

	in := &inbox.Inbox{
		Dir:          *dir,
		ProcessedDir: *processed,
		Workers:      *workers,
		DryRun:       *dryRun,
		Processor:    p.Processor,
	}
	if !*dryRun {
		var u models.User
		if err := db.Where("username = ?", *username).First(&u).Error; err != nil {
			logger.Log.Fatal().Err(err).Str("username", *username).Msg("user not found")
		}
		store, err := bootstrap.Storage(ctx, cfg)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("failed to open storage")
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}
		// fails after a second while the API server holds the bbolt lock
		pend, err := pending.Open(cfg.PendingDBPath)
		if err != nil {
			logger.Log.Fatal().Err(err).Str("path", cfg.PendingDBPath).Msg("failed to open pending store")
		}
		defer pend.Close()

		in.UserID = u.ID
		in.Storage = store
		in.Pending = pend
		in.Documents = inbox.GormDocuments(db)
	}

	if err := in.Run(ctx, *watch); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error().Err(err).Msg("inbox stopped")
		os.Exit(1)
	}
}
