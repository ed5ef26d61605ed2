package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"gastos/models"
	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/extract"
	"gastos/pkg/ocr"
	"gastos/pkg/pending"
	"gastos/pkg/scan"
	"gastos/pkg/storage"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

// textRecognizer returns the same receipt text for every file.
type textRecognizer struct{ text string }

func (r textRecognizer) Recognize(context.Context, []byte, string) (ocr.Result, error) {
	return ocr.Result{Text: r.text, Provider: "fake"}, nil
}

const sampleReceipt = `FARMACIA CRUZ VERDE
RUT 76.086.428-5
FECHA 15/03/2024
PARACETAMOL 500MG
IVA $ 2.074
TOTAL $ 12.990`

func setupTestServer(t *testing.T) (*gin.Engine, *server, string) {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := bootstrap.Database(cfg)
	require.NoError(t, err)

	tmp := t.TempDir()
	uploads := filepath.Join(tmp, "uploads")
	store, err := storage.NewLocal(uploads)
	require.NoError(t, err)
	pend, err := pending.Open(filepath.Join(tmp, "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pend.Close() })

	scorer := extract.NewScorer()
	s := &server{
		db:        db,
		jwtSecret: []byte("integration-secret"),
		storage:   store,
		pending:   pend,
		scorer:    scorer,
		alerts:    bootstrap.Evaluator(cfg),
		now:       time.Now,
	}
	s.buildPipeline = func(ctx context.Context) (*bootstrap.Pipeline, error) {
		ext := extract.New()
		return &bootstrap.Pipeline{
			Extractor: ext,
			Processor: scan.NewProcessor(textRecognizer{text: sampleReceipt}, ext, scorer),
		}, nil
	}
	require.NoError(t, s.reloadPipeline(context.Background()))

	r := gin.New()
	r.Use(requestLogger())
	s.setupRoutes(r)
	return r, s, uploads
}

// failingStorage refuses to save keys containing fail.
type failingStorage struct {
	storage.Storage
	fail string
}

func (f failingStorage) Save(ctx context.Context, key string, r io.Reader) error {
	if strings.Contains(key, f.fail) {
		return errors.New("disk full")
	}
	return f.Storage.Save(ctx, key, r)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func registerAndLogin(t *testing.T, r http.Handler) string {
	t.Helper()
	username := fmt.Sprintf("user_%d", time.Now().UnixNano())
	creds := map[string]string{"username": username, "password": "pass123"}
	resp := performRequest(r, http.MethodPost, "/register", jsonBody(t, creds), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp = performRequest(r, http.MethodPost, "/login", jsonBody(t, creds), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.Token
}

type formFile struct {
	name     string
	clientID string
	data     []byte
}

func multipartUpload(t *testing.T, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	for _, f := range files {
		require.NoError(t, mw.WriteField("client_ids", f.clientID))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestExtractLeavesNothingBehindOnFailure(t *testing.T) {
	r, s, uploads := setupTestServer(t)
	token := registerAndLogin(t, r)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	suffix := fmt.Sprint(time.Now().UnixNano())

	// a valid file followed by an oversized one
	body, ct := multipartUpload(t,
		formFile{"ok.png", "ok-" + suffix, png},
		formFile{"big.png", "big-" + suffix, bytes.Repeat([]byte{'x'}, maxUploadSize+1)},
	)
	resp := performRequest(r, http.MethodPost, "/receipts/extract", body, token, ct)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	require.Zero(t, countFiles(t, uploads))
	var n int64
	require.NoError(t, s.db.Model(&models.Document{}).Where("client_id IN ?", []string{"ok-" + suffix, "big-" + suffix}).Count(&n).Error)
	require.Zero(t, n)

	// storage fails on the second file after the first was written
	s.storage = failingStorage{Storage: s.storage, fail: "broken.png"}
	body, ct = multipartUpload(t,
		formFile{"good.png", "good-" + suffix, png},
		formFile{"broken.png", "broken-" + suffix, png},
	)
	resp = performRequest(r, http.MethodPost, "/receipts/extract", body, token, ct)
	require.Equal(t, http.StatusInternalServerError, resp.Code, resp.Body.String())
	require.Zero(t, countFiles(t, uploads))
	require.NoError(t, s.db.Model(&models.Document{}).Where("client_id IN ?", []string{"good-" + suffix, "broken-" + suffix}).Count(&n).Error)
	require.Zero(t, n)

	resp = performRequest(r, http.MethodGet, "/receipts/pending", nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotContains(t, resp.Body.String(), suffix)
}

func TestFullFlow(t *testing.T) {
	r, _, _ := setupTestServer(t)
	username := fmt.Sprintf("user_%d", time.Now().UnixNano())

	// 1. Register and login
	resp := performRequest(r, http.MethodPost, "/register", jsonBody(t, map[string]string{"username": username, "password": "pass123"}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp = performRequest(r, http.MethodPost, "/register", jsonBody(t, map[string]string{"username": username, "password": "pass123"}), "", "application/json")
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = performRequest(r, http.MethodPost, "/login", jsonBody(t, map[string]string{"username": username, "password": "pass123"}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var loginResp struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &loginResp))
	token := loginResp.Token
	require.NotEmpty(t, token)

	// 2. Company
	resp = performRequest(r, http.MethodPost, "/companies", jsonBody(t, map[string]string{"name": "Mi Pyme", "rut": "76.086.428-5"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var company struct{ ID uint }
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &company))
	resp = performRequest(r, http.MethodPost, "/companies", jsonBody(t, map[string]string{"name": "Mala", "rut": "76.086.428-4"}), token, "application/json")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	// 3. Upload and extract
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "boleta.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	require.NoError(t, mw.WriteField("client_ids", "c-1"))
	require.NoError(t, mw.Close())
	resp = performRequest(r, http.MethodPost, "/receipts/extract", &buf, token, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var extractResp struct {
		Results map[string]pending.Entry `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &extractResp))
	entry, ok := extractResp.Results["c-1"]
	require.True(t, ok)
	require.EqualValues(t, 12990, entry.Result.Fields.Total)
	require.Equal(t, "Salud", entry.Result.Fields.Category)
	require.NotZero(t, entry.DocumentID)

	resp = performRequest(r, http.MethodGet, "/receipts/pending", nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "c-1")

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/documents/%d", entry.DocumentID), nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)

	// 4. Save from the pending entry with an edited vendor
	receiptID := "B-" + username
	resp = performRequest(r, http.MethodPost, "/receipts", jsonBody(t, map[string]any{
		"client_id":  "c-1",
		"receipt_id": receiptID,
		"company_id": company.ID,
		"vendor":     "Cruz Verde Providencia",
	}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var saved struct {
		Receipt struct {
			ID     uint   `json:"ID"`
			Vendor string `json:"vendor"`
			Total  int64  `json:"total"`
		} `json:"receipt"`
		Validation extract.Validation `json:"validation"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &saved))
	require.Equal(t, "Cruz Verde Providencia", saved.Receipt.Vendor)
	require.Equal(t, 1.0, saved.Validation.Confidence[extract.FieldVendor])

	// duplicate receipt_id
	resp = performRequest(r, http.MethodPost, "/receipts", jsonBody(t, map[string]any{
		"receipt_id": receiptID, "date": "2024-03-16", "total": 5000,
	}), token, "application/json")
	require.Equal(t, http.StatusConflict, resp.Code)

	// pending entry is gone after save
	resp = performRequest(r, http.MethodGet, "/receipts/pending", nil, token, "")
	require.NotContains(t, resp.Body.String(), "c-1")

	// 5. Alert rule fires on frequency
	resp = performRequest(r, http.MethodPost, "/alert-rules", jsonBody(t, map[string]any{"type": "FREQUENCY", "threshold": 0, "timeframe": "MONTHLY"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	today := time.Now().Format(dateLayout)
	resp = performRequest(r, http.MethodPost, "/receipts", jsonBody(t, map[string]any{"date": today, "total": 3000, "vendor": "Copec"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp = performRequest(r, http.MethodPost, "/receipts", jsonBody(t, map[string]any{"date": today, "total": 4000, "vendor": "Copec"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var withAlerts struct {
		Alerts []map[string]any `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &withAlerts))
	require.NotEmpty(t, withAlerts.Alerts)

	// 6. List, dashboard and export
	resp = performRequest(r, http.MethodGet, "/receipts?category=Salud", nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), receiptID)

	resp = performRequest(r, http.MethodGet, "/dashboard", nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var sum struct{ Count int }
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sum))
	require.Equal(t, 3, sum.Count)

	resp = performRequest(r, http.MethodGet, "/receipts/export", nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header().Get("Content-Type"))

	// 7. Refresh rotates the token
	resp = performRequest(r, http.MethodPost, "/refresh", jsonBody(t, map[string]string{"refresh_token": loginResp.RefreshToken}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = performRequest(r, http.MethodPost, "/refresh", jsonBody(t, map[string]string{"refresh_token": loginResp.RefreshToken}), "", "application/json")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPendingLookupErrors(t *testing.T) {
	r, s, _ := setupTestServer(t)
	token := registerAndLogin(t, r)

	for _, path := range []string{"/receipts", "/receipts/validate"} {
		resp := performRequest(r, http.MethodPost, path, jsonBody(t, map[string]any{"client_id": "missing"}), token, "application/json")
		require.Equal(t, http.StatusNotFound, resp.Code, path)
	}

	// a store that cannot be read is a server error, not a missing entry
	require.NoError(t, s.pending.Close())
	for _, path := range []string{"/receipts", "/receipts/validate"} {
		resp := performRequest(r, http.MethodPost, path, jsonBody(t, map[string]any{"client_id": "missing"}), token, "application/json")
		require.Equal(t, http.StatusInternalServerError, resp.Code, path)
	}
}
