// Package scan runs recognition and extraction over uploaded files.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/ocr"
)

const (
	// DefaultTimeout bounds the recognition of a single file.
	DefaultTimeout = 45 * time.Second
	// DefaultParallelism is the number of files recognized at once.
	DefaultParallelism = 4
	// excerptLength is how much raw text is kept for review.
	excerptLength = 1000
)

// File is one uploaded document. ClientID is generated by the client so
// results can be matched to its pending list.
type File struct {
	ClientID string
	Name     string
	MIMEType string
	Data     []byte
}

// Outcome is the extraction for one file. A failed recognition still
// produces a placeholder result so the user can fill it in by hand.
type Outcome struct {
	ClientID   string             `json:"client_id"`
	Name       string             `json:"name"`
	Result     extract.Result     `json:"result"`
	Validation extract.Validation `json:"validation"`
	RawExcerpt string             `json:"raw_excerpt"`
	Provider   string             `json:"provider,omitempty"`
	Failed     bool               `json:"failed"`
	Error      string             `json:"error,omitempty"`
}

// Processor wires a recognizer to the extractor and scorer.
type Processor struct {
	recognizer  ocr.Recognizer
	extractor   *extract.Extractor
	scorer      *extract.Scorer
	timeout     time.Duration
	parallelism int
	now         func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithTimeout sets the per-file recognition timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithParallelism sets how many files ProcessAll recognizes at once.
func WithParallelism(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithClock sets the clock used for placeholder dates.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor returns a Processor. The recognizer is required.
func NewProcessor(rec ocr.Recognizer, ext *extract.Extractor, scorer *extract.Scorer, opts ...Option) *Processor {
	p := &Processor{
		recognizer:  rec,
		extractor:   ext,
		scorer:      scorer,
		timeout:     DefaultTimeout,
		parallelism: DefaultParallelism,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process recognizes and extracts one file. It never returns an error:
// recognition failures and timeouts become placeholder outcomes.
func (p *Processor) Process(ctx context.Context, f File) Outcome {
	if f.ClientID == "" {
		f.ClientID = uuid.NewString()
	}
	out := Outcome{ClientID: f.ClientID, Name: f.Name}
	log := logger.FromContext(ctx).With().Str("client_id", f.ClientID).Str("file", f.Name).Logger()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.recognize(callCtx, f)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("recognition failed")
		out.Result = extract.Placeholder(p.now())
		out.Validation = p.scorer.Score(out.Result)
		out.Failed = true
		out.Error = err.Error()
		return out
	}

	out.Result = p.extractor.FromRecognition(res)
	out.Validation = p.scorer.Score(out.Result)
	out.RawExcerpt = extract.Excerpt(res.Text, excerptLength)
	out.Provider = res.Provider
	log.Info().
		Str("provider", res.Provider).
		Int64("total", int64(out.Result.Fields.Total)).
		Float64("confidence", out.Validation.Overall).
		Dur("elapsed", time.Since(start)).
		Msg("receipt extracted")
	return out
}

type recognition struct {
	res ocr.Result
	err error
}

// recognize returns when the recognizer does or when ctx expires, whichever
// comes first. Blocking providers such as Tesseract only look at ctx between
// passes; their goroutine finishes in the background and its result is dropped.
func (p *Processor) recognize(ctx context.Context, f File) (ocr.Result, error) {
	done := make(chan recognition, 1)
	go func() {
		res, err := p.recognizer.Recognize(ctx, f.Data, f.MIMEType)
		done <- recognition{res, err}
	}()
	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return ocr.Result{}, &ocr.RecognitionError{Code: ocr.CodeTimeout, Provider: "scan", Retryable: true, Cause: ctx.Err()}
	}
}

// ProcessAll processes files concurrently and merges the outcomes by client
// id. Every file yields an outcome, failed or not.
func (p *Processor) ProcessAll(ctx context.Context, files []File) map[string]Outcome {
	var mu sync.Mutex
	results := make(map[string]Outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for _, f := range files {
		g.Go(func() error {
			o := p.Process(gctx, f)
			mu.Lock()
			results[o.ClientID] = o
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
