// Package reextract re-runs recognition on saved receipts that were flagged
// for review and keeps the new fields when they score better.
package reextract

import (
	"context"
	"fmt"
	"io"

	"gorm.io/gorm"

	"gastos/models"
	"gastos/pkg/logger"
	"gastos/pkg/scan"
	"gastos/pkg/storage"
)

// Options selects which receipts are retried.
type Options struct {
	UserID uint // 0 means every user
	Limit  int
	DryRun bool
	// MinGain is how much the overall confidence must improve.
	MinGain float64
}

// Stats counts what a run did.
type Stats struct {
	Checked  int
	Improved int
	Failed   int
}

// Runner wires the database, document store and scanner.
type Runner struct {
	DB        *gorm.DB
	Storage   storage.Storage
	Processor *scan.Processor
	Out       io.Writer
}

// improve returns rec updated with the outcome when it scores at least
// minGain higher than the stored confidence.
func improve(rec models.Receipt, o scan.Outcome, minGain float64) (models.Receipt, bool) {
	if o.Failed || o.Validation.Overall < rec.Confidence+minGain || o.Validation.Overall <= rec.Confidence {
		return rec, false
	}
	rec.ApplyFields(o.Result.Fields)
	rec.Confidence = o.Validation.Overall
	rec.NeedsReview = !o.Validation.IsValid
	rec.RawExcerpt = o.RawExcerpt
	return rec, true
}

// Run retries every receipt needing review that has a stored document.
func (r *Runner) Run(ctx context.Context, opts Options) (Stats, error) {
	log := logger.FromContext(ctx)
	var stats Stats

	q := r.DB.WithContext(ctx).Where("needs_review = ? AND document_id IS NOT NULL", true).Order("id")
	if opts.UserID != 0 {
		q = q.Where("user_id = ?", opts.UserID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var receipts []models.Receipt
	if err := q.Find(&receipts).Error; err != nil {
		return stats, fmt.Errorf("load receipts: %w", err)
	}

	for _, rec := range receipts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++
		o, err := r.rescan(ctx, rec)
		if err != nil {
			stats.Failed++
			log.Warn().Err(err).Uint("receipt", rec.ID).Msg("rescan failed")
			continue
		}
		updated, ok := improve(rec, o, opts.MinGain)
		if !ok {
			log.Debug().Uint("receipt", rec.ID).Float64("old", rec.Confidence).Float64("new", o.Validation.Overall).Msg("no improvement")
			continue
		}
		stats.Improved++
		if opts.DryRun {
			fmt.Fprintf(r.Out, "DRY: would update receipt id=%d old_total=%d new_total=%d old_conf=%.2f new_conf=%.2f\n",
				rec.ID, rec.Total, updated.Total, rec.Confidence, updated.Confidence)
			continue
		}
		updated.CategoryID = nil
		var cat models.Category
		if err := r.DB.WithContext(ctx).Select("id").Where("name = ?", updated.Category).First(&cat).Error; err == nil {
			id := cat.ID
			updated.CategoryID = &id
		}
		if err := r.DB.WithContext(ctx).Omit("User", "Company").Save(&updated).Error; err != nil {
			stats.Failed++
			log.Error().Err(err).Uint("receipt", rec.ID).Msg("update receipt")
			continue
		}
		fmt.Fprintf(r.Out, "updated receipt id=%d total=%d conf=%.2f needs_review=%t\n",
			updated.ID, updated.Total, updated.Confidence, updated.NeedsReview)
	}
	return stats, nil
}

func (r *Runner) rescan(ctx context.Context, rec models.Receipt) (scan.Outcome, error) {
	var doc models.Document
	if err := r.DB.WithContext(ctx).First(&doc, *rec.DocumentID).Error; err != nil {
		return scan.Outcome{}, fmt.Errorf("load document %d: %w", *rec.DocumentID, err)
	}
	rc, err := r.Storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("open %s: %w", doc.StorageKey, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("read %s: %w", doc.StorageKey, err)
	}
	o := r.Processor.Process(ctx, scan.File{ClientID: doc.ClientID, Name: doc.FileName, MIMEType: doc.ContentType, Data: data})
	if o.Failed {
		return o, fmt.Errorf("recognition: %s", o.Error)
	}
	return o, nil
}
