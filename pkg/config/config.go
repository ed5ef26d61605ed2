// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service and its tools.
type Config struct {
	DatabaseDSN   string
	AutoMigrate   bool
	JWTSecret     []byte
	HTTPAddr      string
	LogLevel      string
	LogJSON       bool
	PendingDBPath string
	AdminPassword string

	StorageBackend string // local or gcs
	UploadBase     string
	GCSBucket      string

	OCRProvider     string // tesseract, azure or gemini
	AzureEndpoint   string
	AzureAPIKey     string
	GeminiAPIKey    string
	GeminiModel     string
	OCRTimeout      time.Duration
	ScanParallelism int

	AlertSigma float64
	// Location decides which calendar day "today" is for frequency alerts.
	Location *time.Location
}

const devJWTSecret = "dev-insecure-secret-change"

// Load reads .env (if present) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDSN:     os.Getenv("DB_DSN"),
		AutoMigrate:     boolEnv("DB_AUTO_MIGRATE", true),
		HTTPAddr:        stringEnv("HTTP_ADDR", ":8081"),
		LogLevel:        stringEnv("LOG_LEVEL", "info"),
		LogJSON:         boolEnv("LOG_JSON", false),
		PendingDBPath:   stringEnv("PENDING_DB", "pending.db"),
		AdminPassword:   stringEnv("ADMIN_PASSWORD", "admin123"),
		StorageBackend:  strings.ToLower(stringEnv("STORAGE_BACKEND", "local")),
		UploadBase:      stringEnv("UPLOAD_BASE", "uploads"),
		GCSBucket:       os.Getenv("GCS_BUCKET"),
		OCRProvider:     strings.ToLower(stringEnv("OCR_PROVIDER", "tesseract")),
		AzureEndpoint:   os.Getenv("AZURE_ENDPOINT"),
		AzureAPIKey:     os.Getenv("AZURE_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     stringEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OCRTimeout:      45 * time.Second,
		ScanParallelism: 4,
		AlertSigma:      2,
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = devJWTSecret
	}
	cfg.JWTSecret = []byte(secret)

	if v := os.Getenv("OCR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.OCRTimeout = d
		}
	}
	if v := os.Getenv("SCAN_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScanParallelism = n
		}
	}
	if v := os.Getenv("ALERT_SIGMA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.AlertSigma = f
		}
	}

	tz := stringEnv("TIMEZONE", "America/Santiago")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks required settings and provider-specific credentials.
func (c *Config) validate() error {
	var errs []string

	if c.DatabaseDSN == "" {
		errs = append(errs, "DB_DSN is required")
	}

	switch c.StorageBackend {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			errs = append(errs, "GCS_BUCKET is required when STORAGE_BACKEND=gcs")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORAGE_BACKEND %q (want local or gcs)", c.StorageBackend))
	}

	switch c.OCRProvider {
	case "tesseract":
	case "azure":
		if c.AzureEndpoint == "" || c.AzureAPIKey == "" {
			errs = append(errs, "AZURE_ENDPOINT and AZURE_API_KEY are required when OCR_PROVIDER=azure")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, "GEMINI_API_KEY is required when OCR_PROVIDER=gemini")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown OCR_PROVIDER %q (want tesseract, azure or gemini)", c.OCRProvider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UsesDevSecret reports whether JWT_SECRET was left unset.
func (c *Config) UsesDevSecret() bool {
	return string(c.JWTSecret) == devJWTSecret
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "false", "0", "no":
		return false
	default:
		return true
	}
}
