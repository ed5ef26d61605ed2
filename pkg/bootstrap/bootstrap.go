// Package bootstrap builds the shared runtime pieces from configuration.
// The API server and every command line tool start from here.
package bootstrap

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gastos/pkg/alerts"
	"gastos/pkg/config"
	"gastos/pkg/database"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/ocr"
	"gastos/pkg/scan"
	"gastos/pkg/storage"
)

// Logging applies the configured level and output format.
func Logging(cfg *config.Config) {
	if cfg.LogJSON {
		logger.SetJSON()
	}
	logger.SetLevel(cfg.LogLevel)
}

// Database connects, migrates when enabled and seeds master data.
func Database(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			// partial migrations still leave a usable schema
			logger.Log.Warn().Err(err).Msg("auto-migrate finished with errors")
		}
	}
	if err := database.Seed(db, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return db, nil
}

// Storage returns the configured document store.
func Storage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "gcs":
		return storage.NewGCS(ctx, cfg.GCSBucket)
	case "local", "":
		return storage.NewLocal(cfg.UploadBase)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Recognizer returns the configured OCR provider. Cloud providers fall back
// to local tesseract when they fail or return nothing.
func Recognizer(ctx context.Context, cfg *config.Config, categories []string) (ocr.Recognizer, error) {
	local := ocr.NewTesseract()
	switch cfg.OCRProvider {
	case "tesseract", "":
		return local, nil
	case "azure":
		return ocr.Chain{ocr.NewAzure(cfg.AzureEndpoint, cfg.AzureAPIKey), local}, nil
	case "gemini":
		g, err := ocr.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel,
			ocr.WithGeminiCategories(categories),
			ocr.WithGeminiTimeout(cfg.OCRTimeout),
		)
		if err != nil {
			return nil, err
		}
		return ocr.Chain{g, local}, nil
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.OCRProvider)
	}
}

// Pipeline is the extraction chain for one category table.
type Pipeline struct {
	Extractor *extract.Extractor
	Processor *scan.Processor
}

// NewPipeline loads the category table and wires recognizer, extractor and
// scorer into a processor.
func NewPipeline(ctx context.Context, cfg *config.Config, db *gorm.DB, scorer *extract.Scorer) (*Pipeline, error) {
	rules, err := database.CategoryRules(db)
	if err != nil {
		return nil, err
	}
	return PipelineFor(ctx, cfg, rules, scorer)
}

// PipelineFor builds a Pipeline from an explicit category table.
func PipelineFor(ctx context.Context, cfg *config.Config, rules []extract.CategoryRule, scorer *extract.Scorer) (*Pipeline, error) {
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name)
	}
	rec, err := Recognizer(ctx, cfg, names)
	if err != nil {
		return nil, err
	}
	ext := extract.New(extract.WithCategories(rules))
	return &Pipeline{
		Extractor: ext,
		Processor: scan.NewProcessor(rec, ext, scorer,
			scan.WithTimeout(cfg.OCRTimeout),
			scan.WithParallelism(cfg.ScanParallelism),
		),
	}, nil
}

// Evaluator returns the alert evaluator with the configured sigma and time zone.
func Evaluator(cfg *config.Config) *alerts.Evaluator {
	return alerts.New(alerts.WithSigma(cfg.AlertSigma), alerts.WithLocation(cfg.Location))
}
