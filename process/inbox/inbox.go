// Package inbox turns receipt files dropped into a folder into pending
// extractions for one user. Files are scanned once at start and, in watch
// mode, again as they arrive.
package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gastos/models"
	"gastos/pkg/logger"
	"gastos/pkg/ocr"
	"gastos/pkg/pending"
	"gastos/pkg/scan"
	"gastos/pkg/storage"
)

// DocumentStore records stored files.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	MarkFailed(ctx context.Context, id uint, reason string) error
}

type gormDocuments struct{ db *gorm.DB }

// GormDocuments stores documents through gorm.
func GormDocuments(db *gorm.DB) DocumentStore { return gormDocuments{db: db} }

func (g gormDocuments) CreateDocument(ctx context.Context, doc *models.Document) error {
	return g.db.WithContext(ctx).Create(doc).Error
}

func (g gormDocuments) MarkFailed(ctx context.Context, id uint, reason string) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	return g.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).
		Updates(map[string]any{"failed": true, "failed_reason": reason}).Error
}

// Inbox processes one drop folder on behalf of one user.
type Inbox struct {
	Dir          string
	ProcessedDir string
	UserID       uint
	Workers      int
	// DryRun recognizes files and logs the result without storing or moving anything.
	DryRun bool

	Processor *scan.Processor
	Storage   storage.Storage
	Pending   *pending.Store
	Documents DocumentStore
	Now       func() time.Time
}

// MIME mapping to avoid sniffing every file
var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".heic": "image/heic",
	".heif": "image/heif",
}

func isSupportedExt(name string) bool {
	// ignore temp files from editors and scanners
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".ocr.") {
		return false
	}
	_, ok := extMime[strings.ToLower(filepath.Ext(name))]
	return ok
}

func mimeFromExt(name string) string {
	return extMime[strings.ToLower(filepath.Ext(name))]
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (in *Inbox) workers() int {
	if in.Workers <= 0 {
		return runtime.NumCPU()
	}
	return in.Workers
}

func (in *Inbox) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in *Inbox) processedDir() string {
	if in.ProcessedDir != "" {
		return in.ProcessedDir
	}
	return filepath.Join(in.Dir, "processed")
}

func (in *Inbox) validate() error {
	if in.Dir == "" {
		return errors.New("inbox directory required")
	}
	if in.Processor == nil {
		return errors.New("processor required")
	}
	if in.DryRun {
		return nil
	}
	if in.UserID == 0 {
		return errors.New("user id required")
	}
	if in.Storage == nil || in.Pending == nil || in.Documents == nil {
		return errors.New("storage, pending store and document store are required")
	}
	return nil
}

// Run processes the files already in the folder. With watch it keeps
// processing new files until ctx is cancelled.
func (in *Inbox) Run(ctx context.Context, watch bool) error {
	if err := in.validate(); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	initial, err := listFiles(in.Dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	log.Info().Str("dir", in.Dir).Int("files", len(initial)).Int("workers", in.workers()).Bool("dry_run", in.DryRun).Msg("scanning inbox")

	names := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < in.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				if err := in.ProcessFile(ctx, name); err != nil {
					log.Error().Err(err).Str("file", name).Msg("inbox file failed")
				}
			}
		}()
	}

	var feedErr error
	func() {
		defer close(names)
		for _, n := range initial {
			select {
			case names <- n:
			case <-ctx.Done():
				return
			}
		}
		if watch {
			feedErr = in.watch(ctx, names)
		}
	}()
	wg.Wait()
	return feedErr
}

// ProcessFile stages one file. The client id is derived from the file
// content, so a file that was staged but not moved is only moved on retry.
func (in *Inbox) ProcessFile(ctx context.Context, name string) error {
	log := logger.FromContext(ctx).With().Str("file", name).Logger()
	full := filepath.Join(in.Dir, name)
	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	mime := ocr.DetectMIME(data, mimeFromExt(name))
	clientID := uuid.NewSHA1(uuid.NameSpaceOID, data).String()

	if in.DryRun {
		o := in.Processor.Process(ctx, scan.File{ClientID: clientID, Name: name, MIMEType: mime, Data: data})
		log.Info().
			Bool("failed", o.Failed).
			Str("vendor", o.Result.Fields.Vendor).
			Int64("total", int64(o.Result.Fields.Total)).
			Float64("confidence", o.Validation.Overall).
			Msg("DRY: would stage receipt")
		return nil
	}

	if _, err := in.Pending.Get(in.UserID, clientID); err == nil {
		log.Info().Str("client_id", clientID).Msg("already staged; moving")
		return moveToProcessed(full, in.processedDir(), name)
	} else if !errors.Is(err, pending.ErrNotFound) {
		return err
	}

	key := storage.Key(in.UserID, clientID, name, in.now())
	if err := in.Storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	doc := models.Document{UserID: in.UserID, ClientID: clientID, FileName: name, StorageKey: key, ContentType: mime, Size: int64(len(data))}
	if err := in.Documents.CreateDocument(ctx, &doc); err != nil {
		return fmt.Errorf("record document %s: %w", name, err)
	}

	o := in.Processor.Process(ctx, scan.File{ClientID: clientID, Name: name, MIMEType: mime, Data: data})
	if o.Failed {
		if err := in.Documents.MarkFailed(ctx, doc.ID, o.Error); err != nil {
			log.Warn().Err(err).Msg("mark document failed")
		}
	}
	err = in.Pending.Put(pending.Entry{
		UserID:     in.UserID,
		ClientID:   clientID,
		FileName:   name,
		DocumentID: doc.ID,
		Result:     o.Result,
		Validation: o.Validation,
		RawExcerpt: o.RawExcerpt,
		Provider:   o.Provider,
		Failed:     o.Failed,
		Error:      o.Error,
	})
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	log.Info().
		Str("client_id", clientID).
		Uint("document_id", doc.ID).
		Int64("total", int64(o.Result.Fields.Total)).
		Float64("confidence", o.Validation.Overall).
		Msg("staged receipt")

	if err := moveToProcessed(full, in.processedDir(), name); err != nil {
		log.Warn().Err(err).Msg("failed to move processed file")
	}
	return nil
}
