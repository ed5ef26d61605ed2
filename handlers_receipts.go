package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"gastos/models"
	"gastos/pkg/alerts"
	"gastos/pkg/database"
	"gastos/pkg/export"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/money"
	"gastos/pkg/ocr"
	"gastos/pkg/pending"
	"gastos/pkg/scan"
	"gastos/pkg/storage"
)

const (
	maxUploadSize   = 10 << 20
	maxUploadFiles  = 20
	defaultListSize = 200
	maxListSize     = 1000
	dateLayout      = "2006-01-02"
	// historyWindow bounds the receipts loaded for alert statistics.
	historyWindow = 365 * 24 * time.Hour
)

// receiptFilter is the query shared by list, export and dashboard.
type receiptFilter struct {
	From        time.Time
	To          time.Time
	Category    string
	CompanyID   uint
	Query       string
	NeedsReview *bool
}

func parseReceiptFilter(c *gin.Context) (receiptFilter, error) {
	var f receiptFilter
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q (want YYYY-MM-DD)", v)
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q (want YYYY-MM-DD)", v)
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("to is before from")
	}
	f.Category = strings.TrimSpace(c.Query("category"))
	if v := c.Query("company_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid company_id %q", v)
		}
		f.CompanyID = uint(id)
	}
	f.Query = strings.TrimSpace(c.Query("q"))
	if v := c.Query("needs_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid needs_review %q", v)
		}
		f.NeedsReview = &b
	}
	return f, nil
}

func (f receiptFilter) apply(q *gorm.DB) *gorm.DB {
	if !f.From.IsZero() {
		q = q.Where("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		// to is inclusive
		q = q.Where("date < ?", f.To.AddDate(0, 0, 1))
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.CompanyID != 0 {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		q = q.Where("vendor ILIKE ? OR description ILIKE ? OR receipt_id ILIKE ?", like, like, like)
	}
	if f.NeedsReview != nil {
		q = q.Where("needs_review = ?", *f.NeedsReview)
	}
	return q
}

// fieldsPatch carries optional user edits of extracted fields.
type fieldsPatch struct {
	Date        *string `json:"date"`
	Total       *int64  `json:"total"`
	Vendor      *string `json:"vendor"`
	Category    *string `json:"category"`
	TaxAmount   *int64  `json:"tax_amount"`
	Description *string `json:"description"`
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// apply overlays the patch on f.
func (p fieldsPatch) apply(f extract.Fields) (extract.Fields, error) {
	if p.Date != nil {
		t, err := parseDate(*p.Date)
		if err != nil {
			return f, err
		}
		f.Date = t
	}
	if p.Total != nil {
		if *p.Total < 0 {
			return f, fmt.Errorf("total must not be negative")
		}
		f.Total = money.Amount(*p.Total)
	}
	if p.TaxAmount != nil {
		if *p.TaxAmount < 0 {
			return f, fmt.Errorf("tax_amount must not be negative")
		}
		f.TaxAmount = money.Amount(*p.TaxAmount)
	}
	if p.Vendor != nil {
		f.Vendor = strings.TrimSpace(*p.Vendor)
	}
	if p.Category != nil {
		f.Category = strings.TrimSpace(*p.Category)
	}
	if p.Description != nil {
		f.Description = strings.TrimSpace(*p.Description)
	}
	return f, nil
}

// fillDefaults completes a hand-entered receipt the way extraction would.
func fillDefaults(ext *extract.Extractor, f extract.Fields) extract.Fields {
	if f.Vendor == "" {
		f.Vendor = extract.DefaultVendor
	}
	if f.Description == "" {
		f.Description = extract.DefaultDescription
	}
	if f.Category == "" {
		f.Category = ext.Categorize(f.Vendor + " " + f.Description)
	}
	return f
}

// originalFor re-derives the extraction a stored receipt came from.
func originalFor(ext *extract.Extractor, rec models.Receipt) extract.Result {
	raw := strings.TrimSpace(rec.RawExcerpt)
	switch {
	case raw == "":
		return extract.Confirmed(rec.Fields())
	case strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "```"):
		return ext.FromStructured([]byte(raw))
	default:
		return ext.Extract(raw)
	}
}

// extractReceiptsHandler stores the uploaded files, recognizes them in
// parallel and stages each result as a pending entry keyed by client id.
// upload is one validated multipart file and the client id it is staged under.
type upload struct {
	header   *multipart.FileHeader
	clientID string
	data     []byte
	mime     string
}

// collectUploads checks every file header before anything is stored, so a
// bad file anywhere in the batch rejects the whole request untouched.
func collectUploads(headers []*multipart.FileHeader, clientIDs []string) ([]upload, error) {
	if len(headers) == 0 {
		return nil, errors.New("files missing")
	}
	if len(headers) > maxUploadFiles {
		return nil, fmt.Errorf("too many files (max %d)", maxUploadFiles)
	}
	seen := make(map[string]bool, len(headers))
	out := make([]upload, 0, len(headers))
	for i, fh := range headers {
		if fh.Size > maxUploadSize {
			return nil, fmt.Errorf("%s: file too large (max 10MB)", fh.Filename)
		}
		clientID := ""
		if i < len(clientIDs) {
			clientID = strings.TrimSpace(clientIDs[i])
		}
		if clientID == "" {
			clientID = uuid.NewString()
		}
		if seen[clientID] {
			return nil, fmt.Errorf("duplicate client id %q", clientID)
		}
		seen[clientID] = true
		out = append(out, upload{header: fh, clientID: clientID})
	}
	return out, nil
}

// storeUploads saves every file and records its Document. When one fails,
// the files and rows written before it are removed again.
func (s *server) storeUploads(ctx context.Context, userID uint, uploads []upload, now time.Time) (map[string]models.Document, error) {
	docs := make(map[string]models.Document, len(uploads))
	for _, u := range uploads {
		key := storage.Key(userID, u.clientID, u.header.Filename, now)
		if err := s.storage.Save(ctx, key, bytes.NewReader(u.data)); err != nil {
			s.discardUploads(ctx, docs)
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		doc := models.Document{UserID: userID, ClientID: u.clientID, FileName: u.header.Filename, StorageKey: key, ContentType: u.mime, Size: int64(len(u.data))}
		if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
			docs[u.clientID] = doc
			s.discardUploads(ctx, docs)
			return nil, fmt.Errorf("record document %s: %w", key, err)
		}
		docs[u.clientID] = doc
	}
	return docs, nil
}

// discardUploads removes stored files and their Document rows. Documents
// without an id were never created and only lose their file.
func (s *server) discardUploads(ctx context.Context, docs map[string]models.Document) {
	log := logger.FromContext(ctx)
	for _, doc := range docs {
		if err := s.storage.Delete(ctx, doc.StorageKey); err != nil {
			log.Warn().Err(err).Str("key", doc.StorageKey).Msg("delete stored upload")
		}
		if doc.ID == 0 {
			continue
		}
		if err := s.db.WithContext(ctx).Delete(&models.Document{}, doc.ID).Error; err != nil {
			log.Warn().Err(err).Uint("document_id", doc.ID).Msg("delete document row")
		}
	}
}

func (s *server) extractReceiptsHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	uploads, err := collectUploads(form.File["files"], form.Value["client_ids"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i := range uploads {
		fh := uploads[i].header
		data, err := readFormFile(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: read failed", fh.Filename)})
			return
		}
		if len(data) > maxUploadSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: file too large (max 10MB)", fh.Filename)})
			return
		}
		uploads[i].data = data
		uploads[i].mime = ocr.DetectMIME(data, fh.Header.Get("Content-Type"))
	}

	now := s.now()
	docs, err := s.storeUploads(ctx, user.ID, uploads, now)
	if err != nil {
		log.Error().Err(err).Msg("store uploads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	files := make([]scan.File, 0, len(uploads))
	for _, u := range uploads {
		files = append(files, scan.File{ClientID: u.clientID, Name: u.header.Filename, MIMEType: u.mime, Data: u.data})
	}
	outcomes := s.pipeline.Load().Processor.ProcessAll(ctx, files)

	results := make(map[string]pending.Entry, len(outcomes))
	for clientID, o := range outcomes {
		doc := docs[clientID]
		if o.Failed {
			reason := o.Error
			if len(reason) > 255 {
				reason = reason[:255]
			}
			if err := s.db.WithContext(ctx).Model(&doc).Updates(map[string]any{"failed": true, "failed_reason": reason}).Error; err != nil {
				log.Warn().Err(err).Uint("document_id", doc.ID).Msg("mark document failed")
			}
		}
		e := pending.Entry{
			UserID:     user.ID,
			ClientID:   clientID,
			FileName:   o.Name,
			DocumentID: doc.ID,
			Result:     o.Result,
			Validation: o.Validation,
			RawExcerpt: o.RawExcerpt,
			Provider:   o.Provider,
			Failed:     o.Failed,
			Error:      o.Error,
		}
		if err := s.pending.Put(e); err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("stage pending extraction")
			for id := range results {
				if err := s.pending.Delete(user.ID, id); err != nil {
					log.Warn().Err(err).Str("client_id", id).Msg("unstage pending extraction")
				}
			}
			s.discardUploads(ctx, docs)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage extraction"})
			return
		}
		e.CreatedAt = now
		results[clientID] = e
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadSize+1))
}

func (s *server) listPendingHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	entries, err := s.pending.List(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// discardPendingHandler drops a staged extraction and the file behind it.
func (s *server) discardPendingHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	clientID := c.Param("client_id")
	e, err := s.pending.Get(user.ID, clientID)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pending extraction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if e.DocumentID != 0 {
		var doc models.Document
		log := logger.FromContext(ctx)
		if err := s.db.WithContext(ctx).First(&doc, e.DocumentID).Error; err == nil {
			if err := s.storage.Delete(ctx, doc.StorageKey); err != nil {
				log.Warn().Err(err).Str("key", doc.StorageKey).Msg("delete stored document")
			}
			if err := s.db.WithContext(ctx).Delete(&doc).Error; err != nil {
				log.Error().Err(err).Uint("document_id", doc.ID).Msg("delete document row")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
				return
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Err(err).Uint("document_id", e.DocumentID).Msg("load document")
		}
	}
	if err := s.pending.Delete(user.ID, clientID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "pending extraction discarded"})
}

type receiptRequest struct {
	ClientID  string `json:"client_id"`
	ReceiptID string `json:"receipt_id"`
	CompanyID *uint  `json:"company_id"`
	fieldsPatch
}

// createReceiptHandler saves a receipt from a staged extraction or from a
// hand-entered body. Validation is reported but never blocks the save.
func (s *server) createReceiptHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ext := s.extractor()
	var (
		original extract.Result
		entry    *pending.Entry
	)
	if req.ClientID != "" {
		e, err := s.pending.Get(user.ID, req.ClientID)
		if errors.Is(err, pending.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pending extraction not found"})
			return
		}
		if err != nil {
			logger.FromContext(c.Request.Context()).Error().Err(err).Str("client_id", req.ClientID).Msg("load pending extraction")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		entry = &e
		original = e.Result
	} else if req.Date == nil || req.Total == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id or date and total are required"})
		return
	}

	fields, err := req.fieldsPatch.apply(original.Fields)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		fields = fillDefaults(ext, fields)
	}

	rec := models.Receipt{UserID: user.ID, ReceiptID: strings.TrimSpace(req.ReceiptID)}
	if rec.ReceiptID == "" {
		rec.ReceiptID = uuid.NewString()
	}
	if req.CompanyID != nil {
		if !s.checkCompany(c, user, *req.CompanyID) {
			return
		}
		rec.CompanyID = req.CompanyID
	}
	if entry != nil {
		rec.RawExcerpt = entry.RawExcerpt
		if entry.DocumentID != 0 {
			id := entry.DocumentID
			rec.DocumentID = &id
		}
	}
	validation := s.scorer.Validate(original, fields)
	s.applyFields(&rec, fields, validation)

	triggered := s.evaluateAlerts(c, user.ID, rec, 0)

	if err := s.db.Create(&rec).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "receipt_id already exists"})
			return
		}
		logger.FromContext(ctx).Error().Err(err).Msg("save receipt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	if entry != nil {
		if err := s.pending.Delete(user.ID, entry.ClientID); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("client_id", entry.ClientID).Msg("drop pending after save")
		}
	}
	c.JSON(http.StatusOK, gin.H{"receipt": rec, "validation": validation, "alerts": triggered})
}

// checkCompany verifies the company is visible to user and active.
func (s *server) checkCompany(c *gin.Context, user *models.User, id uint) bool {
	co, ok := s.findCompany(c, user, id)
	if !ok {
		return false
	}
	if !co.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company is inactive"})
		return false
	}
	return true
}

// applyFields sets fields, score and category link on rec.
func (s *server) applyFields(rec *models.Receipt, f extract.Fields, v extract.Validation) {
	rec.ApplyFields(f)
	rec.Confidence = v.Overall
	rec.NeedsReview = !v.IsValid
	rec.CategoryID = nil
	var cat models.Category
	if err := s.db.Select("id").Where("name = ?", f.Category).First(&cat).Error; err == nil {
		id := cat.ID
		rec.CategoryID = &id
	}
}

// evaluateAlerts checks the user's active rules against the receipts saved
// in the last year. Failures are logged and yield no alerts.
func (s *server) evaluateAlerts(c *gin.Context, userID uint, rec models.Receipt, excludeID uint) []alerts.Triggered {
	log := logger.FromContext(c.Request.Context())
	var rules []models.AlertRule
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&rules).Error; err != nil {
		log.Warn().Err(err).Msg("load alert rules")
		return []alerts.Triggered{}
	}
	if len(rules) == 0 {
		return []alerts.Triggered{}
	}
	var history []models.Receipt
	q := s.db.Select("id", "total", "category", "date").
		Where("user_id = ? AND date >= ?", userID, s.now().Add(-historyWindow))
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&history).Error; err != nil {
		log.Warn().Err(err).Msg("load receipt history")
		return []alerts.Triggered{}
	}
	views := make([]alerts.Receipt, 0, len(history))
	for _, h := range history {
		views = append(views, h.AlertView())
	}
	ruleViews := make([]alerts.Rule, 0, len(rules))
	for _, r := range rules {
		ruleViews = append(ruleViews, r.Rule())
	}
	triggered := s.alerts.Evaluate(ruleViews, views, rec.AlertView())
	if triggered == nil {
		triggered = []alerts.Triggered{}
	}
	for _, t := range triggered {
		log.Info().Uint("rule_id", t.Rule.ID).Str("type", string(t.Rule.Type)).Msg(t.Message)
	}
	return triggered
}

func (s *server) listReceiptsHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	f, err := parseReceiptFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := defaultListSize
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxListSize)
		}
	}
	var items []models.Receipt
	q := f.apply(owned(c, s.db.Model(&models.Receipt{}), user))
	if err := q.Preload("Company").Order("date desc, id desc").Limit(limit).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// findReceipt loads a receipt visible to user, writing 404/403 on failure.
func (s *server) findReceipt(c *gin.Context, user *models.User) (*models.Receipt, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	var rec models.Receipt
	if err := s.db.Preload("Company").First(&rec, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if !isAdmin(c) && rec.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &rec, true
}

func (s *server) getReceiptHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	rec, ok := s.findReceipt(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// updateReceiptHandler applies edits and re-scores against the stored text.
func (s *server) updateReceiptHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	rec, ok := s.findReceipt(c, user)
	if !ok {
		return
	}
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields, err := req.fieldsPatch.apply(rec.Fields())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CompanyID != nil {
		if *req.CompanyID == 0 {
			rec.CompanyID = nil
		} else {
			if !s.checkCompany(c, user, *req.CompanyID) {
				return
			}
			rec.CompanyID = req.CompanyID
		}
		rec.Company = nil
	}
	if id := strings.TrimSpace(req.ReceiptID); id != "" {
		rec.ReceiptID = id
	}

	validation := s.scorer.Validate(originalFor(s.extractor(), *rec), fields)
	s.applyFields(rec, fields, validation)
	triggered := s.evaluateAlerts(c, rec.UserID, *rec, rec.ID)

	if err := s.db.Omit("Company", "User").Save(rec).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "receipt_id already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": rec, "validation": validation, "alerts": triggered})
}

func (s *server) deleteReceiptHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	rec, ok := s.findReceipt(c, user)
	if !ok {
		return
	}
	if err := s.db.Delete(&models.Receipt{}, rec.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "receipt deleted"})
}

// validateReceiptHandler scores edited fields without saving them. The
// original is the staged extraction, the given raw text, or nothing.
func (s *server) validateReceiptHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
		RawText  string `json:"raw_text"`
		fieldsPatch
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ext := s.extractor()
	var original extract.Result
	switch {
	case req.ClientID != "":
		e, err := s.pending.Get(user.ID, req.ClientID)
		if errors.Is(err, pending.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pending extraction not found"})
			return
		}
		if err != nil {
			logger.FromContext(c.Request.Context()).Error().Err(err).Str("client_id", req.ClientID).Msg("load pending extraction")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		original = e.Result
	case strings.TrimSpace(req.RawText) != "":
		original = ext.Extract(req.RawText)
	}
	fields, err := req.fieldsPatch.apply(original.Fields)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.scorer.Validate(original, fields))
}

// exportReceiptsHandler streams the filtered receipts as an xlsx workbook.
func (s *server) exportReceiptsHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	f, err := parseReceiptFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var items []models.Receipt
	q := f.apply(owned(c, s.db.Model(&models.Receipt{}), user))
	if err := q.Preload("Company").Order("date, id").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	rows := make([]export.Row, 0, len(items))
	for _, r := range items {
		rows = append(rows, r.ExportRow())
	}
	var buf bytes.Buffer
	if err := export.WriteReceipts(&buf, rows); err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("export receipts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	name := fmt.Sprintf("boletas_%s.xlsx", s.now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
