// Package extract turns raw OCR text, or the JSON a vision model returns,
// into receipt fields and scores how much each field can be trusted.
//
// Extraction never fails. Unknown fields fall back to defaults and the
// Scorer reports them as issues.
package extract

import (
	"time"

	"gastos/pkg/money"
)

// Defaults used when a field cannot be extracted.
const (
	DefaultVendor      = "No identificado"
	DefaultCategory    = "Otros"
	DefaultDescription = "Boleta procesada"

	PlaceholderVendor      = "Error de procesamiento"
	PlaceholderDescription = "No se pudo procesar el archivo"
)

// Field names a receipt field in traces and validation output.
type Field string

const (
	FieldDate        Field = "date"
	FieldTotal       Field = "total"
	FieldVendor      Field = "vendor"
	FieldCategory    Field = "category"
	FieldDescription Field = "description"
	FieldTax         Field = "tax_amount"
)

// Fields is the extracted, user-editable content of a receipt.
type Fields struct {
	Date        time.Time    `json:"date"`
	Total       money.Amount `json:"total"`
	Vendor      string       `json:"vendor"`
	Category    string       `json:"category"`
	TaxAmount   money.Amount `json:"tax_amount"`
	Description string       `json:"description"`
}

// Match records which rule produced a field.
type Match struct {
	Rule       string  `json:"rule"`
	Confidence float64 `json:"confidence"`
	Defaulted  bool    `json:"defaulted"`
}

// Result is the outcome of one extraction.
type Result struct {
	Fields     Fields          `json:"fields"`
	Trace      map[Field]Match `json:"trace"`
	Structured bool            `json:"structured"`
}

func newResult() Result {
	return Result{Trace: make(map[Field]Match, 6)}
}

func (r *Result) set(f Field, rule string, conf float64) {
	r.Trace[f] = Match{Rule: rule, Confidence: conf}
}

func (r *Result) setDefault(f Field) {
	r.Trace[f] = Match{Rule: "default", Confidence: defaultConfidence[f], Defaulted: true}
}

// Defaulted reports whether f fell back to its default value.
func (r Result) Defaulted(f Field) bool {
	m, ok := r.Trace[f]
	return !ok || m.Defaulted
}

var defaultConfidence = map[Field]float64{
	FieldDate:        0.1,
	FieldTotal:       0,
	FieldVendor:      0.2,
	FieldCategory:    0.3,
	FieldDescription: 0.3,
	FieldTax:         0.5,
}

// Placeholder is the record used when the file could not be read at all.
func Placeholder(now time.Time) Result {
	r := newResult()
	r.Fields = Fields{
		Date:        dateOnly(now),
		Vendor:      PlaceholderVendor,
		Category:    DefaultCategory,
		Description: PlaceholderDescription,
	}
	for f := range defaultConfidence {
		r.Trace[f] = Match{Rule: "placeholder", Confidence: 0, Defaulted: true}
	}
	return r
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
