package extract

import (
	"time"

	"gastos/pkg/ocr"
)

// Extractor pulls receipt fields out of recognizer output. It holds only
// read-only tables and is safe for concurrent use.
type Extractor struct {
	categories []foldedCategory
	now        func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCategories replaces the keyword table used for categorization.
func WithCategories(rules []CategoryRule) Option {
	return func(e *Extractor) {
		if len(rules) > 0 {
			e.categories = foldCategories(rules)
		}
	}
}

// WithClock sets the clock used for the default date.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New returns an Extractor using DefaultCategories unless overridden.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		categories: foldCategories(DefaultCategories),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract parses raw OCR text. Each field is extracted independently and
// falls back to its default on failure.
func (e *Extractor) Extract(text string) Result {
	r := newResult()
	e.extractDate(text, &r)
	e.extractTotal(text, &r)
	e.extractVendor(text, &r)
	e.extractCategory(text, &r)
	e.extractTax(text, &r)
	e.extractDescription(text, &r)
	return r
}

// FromRecognition picks the structured path when the recognizer returned
// JSON and the text path otherwise.
func (e *Extractor) FromRecognition(res ocr.Result) Result {
	if len(res.Structured) > 0 {
		return e.FromStructured(res.Structured)
	}
	return e.Extract(res.Text)
}

// Categorize returns the category for free text, or DefaultCategory.
func (e *Extractor) Categorize(text string) string {
	if name, ok := categorize(e.categories, text); ok {
		return name
	}
	return DefaultCategory
}

// IsDefault reports whether v is the default value of field f.
func IsDefault(f Field, fields Fields) bool {
	switch f {
	case FieldTotal:
		return fields.Total == 0
	case FieldVendor:
		return fields.Vendor == "" || fields.Vendor == DefaultVendor || fields.Vendor == PlaceholderVendor
	case FieldCategory:
		return fields.Category == "" || fields.Category == DefaultCategory
	case FieldDescription:
		return fields.Description == "" || fields.Description == DefaultDescription || fields.Description == PlaceholderDescription
	case FieldTax:
		return fields.TaxAmount == 0
	case FieldDate:
		return fields.Date.IsZero()
	}
	return false
}
