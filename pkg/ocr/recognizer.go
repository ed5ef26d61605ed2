// Package ocr turns uploaded receipt files into text. Every provider sits
// behind the Recognizer interface and is constructed by the caller.
package ocr

import (
	"context"
	"errors"
	"strings"

	"gastos/pkg/logger"
)

// Result is what a provider recognized. Structured is set only by providers
// that return JSON fields directly.
type Result struct {
	Text       string `json:"text"`
	Structured []byte `json:"structured,omitempty"`
	Provider   string `json:"provider"`
}

// Empty reports whether r carries no text and no structured payload.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Structured) == 0
}

// Recognizer reads one file.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (Result, error)
}

// Chain tries each recognizer in order and returns the first non-empty
// result. Format errors stop the chain since no provider will do better.
type Chain []Recognizer

func (c Chain) Recognize(ctx context.Context, data []byte, mimeType string) (Result, error) {
	var errs []error
	for _, r := range c {
		res, err := r.Recognize(ctx, data, mimeType)
		if err == nil && !res.Empty() {
			return res, nil
		}
		if err == nil {
			err = newError(res.Provider, CodeEmptyText, nil)
		}
		errs = append(errs, err)
		if errors.Is(err, ErrUnsupportedFormat) || ctx.Err() != nil {
			break
		}
		logger.FromContext(ctx).Warn().Err(err).Msg("recognizer failed, trying next")
	}
	if len(errs) == 0 {
		return Result{}, newError("chain", CodeUnavailable, errors.New("no recognizers configured"))
	}
	return Result{}, errors.Join(errs...)
}
