package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/database"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/pending"
)

// pendingMaxAge is how long an unsaved extraction is kept.
const pendingMaxAge = 30 * 24 * time.Hour

func main() {
	if err := run(); err != nil {
		logger.Log.Fatal().Err(err).Msg("gastos stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bootstrap.Logging(cfg)
	if cfg.UsesDevSecret() {
		logger.Log.Warn().Msg("JWT_SECRET not set; using the development secret")
	}

	// `gastos migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		db, err := database.Open(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		if err := database.Seed(db, cfg.AdminPassword); err != nil {
			return err
		}
		fmt.Println("migration and seeding completed")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.Database(cfg)
	if err != nil {
		return err
	}
	store, err := bootstrap.Storage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	pend, err := pending.Open(cfg.PendingDBPath)
	if err != nil {
		return err
	}
	defer pend.Close()
	if n, err := pend.Prune(time.Now().Add(-pendingMaxAge)); err != nil {
		logger.Log.Warn().Err(err).Msg("prune pending extractions")
	} else if n > 0 {
		logger.Log.Info().Int("removed", n).Msg("pruned stale pending extractions")
	}

	scorer := extract.NewScorer()
	s := &server{
		db:        db,
		jwtSecret: cfg.JWTSecret,
		storage:   store,
		pending:   pend,
		scorer:    scorer,
		alerts:    bootstrap.Evaluator(cfg),
		now:       time.Now,
	}
	s.buildPipeline = func(ctx context.Context) (*bootstrap.Pipeline, error) {
		return bootstrap.NewPipeline(ctx, cfg, db, scorer)
	}
	if err := s.reloadPipeline(ctx); err != nil {
		return fmt.Errorf("build extraction pipeline: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 32 << 20
	s.setupRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", cfg.HTTPAddr).Str("ocr", cfg.OCRProvider).Str("storage", cfg.StorageBackend).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
