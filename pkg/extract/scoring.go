package extract

import (
	"fmt"
	"math"
	"time"
)

// Validation is the reviewable verdict on an extraction.
type Validation struct {
	IsValid    bool              `json:"is_valid"`
	Issues     []string          `json:"issues"`
	Confidence map[Field]float64 `json:"confidence"`
	Overall    float64           `json:"overall"`
}

// DefaultValidThreshold is the minimum overall confidence of a valid extraction.
const DefaultValidThreshold = 0.6

// manualConfidence is assigned to a field the user typed in.
const manualConfidence = 1.0

var defaultWeights = map[Field]float64{
	FieldTotal:       0.35,
	FieldDate:        0.25,
	FieldVendor:      0.20,
	FieldCategory:    0.10,
	FieldDescription: 0.10,
}

var scoredFields = []Field{FieldDate, FieldTotal, FieldVendor, FieldCategory, FieldDescription}

var missingIssue = map[Field]string{
	FieldDate:        "No se pudo determinar la fecha; se usó la fecha actual",
	FieldTotal:       "No se pudo determinar el monto total",
	FieldVendor:      "No se pudo determinar el vendedor",
	FieldCategory:    "No se pudo determinar la categoría",
	FieldDescription: "No se pudo generar una descripción",
}

// Scorer assigns confidences and validity to extraction results.
type Scorer struct {
	threshold float64
	weights   map[Field]float64
	now       func() time.Time
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithThreshold sets the minimum overall confidence for a valid result.
func WithThreshold(t float64) ScorerOption {
	return func(s *Scorer) { s.threshold = t }
}

// WithWeights overrides the per-field weights of the overall score.
func WithWeights(w map[Field]float64) ScorerOption {
	return func(s *Scorer) { s.weights = w }
}

// WithScorerClock sets the clock used for the future-date check.
func WithScorerClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) { s.now = now }
}

// NewScorer returns a Scorer with the default weights and threshold.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{threshold: DefaultValidThreshold, weights: defaultWeights, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score computes per-field and overall confidence for r. A result is valid
// when the overall score reaches the threshold and neither the date nor the
// total fell back to a default.
func (s *Scorer) Score(r Result) Validation {
	v := Validation{Confidence: make(map[Field]float64, len(scoredFields)+1), Issues: []string{}}

	var sum, wsum float64
	for _, f := range scoredFields {
		m, ok := r.Trace[f]
		if !ok {
			m = Match{Confidence: defaultConfidence[f], Defaulted: true}
		}
		c := clamp(m.Confidence)
		v.Confidence[f] = c
		w := s.weights[f]
		sum += w * c
		wsum += w
		if m.Defaulted {
			v.Issues = append(v.Issues, missingIssue[f])
		}
	}
	if m, ok := r.Trace[FieldTax]; ok {
		v.Confidence[FieldTax] = clamp(m.Confidence)
	}
	if wsum > 0 {
		v.Overall = math.Round(sum/wsum*1000) / 1000
	}

	if r.Fields.TaxAmount > 0 && r.Fields.Total > 0 && r.Fields.TaxAmount > r.Fields.Total {
		v.Issues = append(v.Issues, "El IVA es mayor que el monto total")
	}
	if !r.Fields.Date.IsZero() && r.Fields.Date.After(dateOnly(s.now()).AddDate(0, 0, 1)) {
		v.Issues = append(v.Issues, "La fecha de la boleta está en el futuro")
	}
	if v.Overall < s.threshold {
		v.Issues = append(v.Issues, fmt.Sprintf("Confianza general baja (%d%%)", int(math.Round(v.Overall*100))))
	}

	v.IsValid = v.Overall >= s.threshold && !r.Defaulted(FieldDate) && !r.Defaulted(FieldTotal)
	return v
}

// Validate re-scores fields after the user edited them. Fields equal to the
// original extraction keep its provenance; edited non-default values count
// as confirmed by the user.
func (s *Scorer) Validate(original Result, edited Fields) Validation {
	r := Result{Fields: edited, Trace: make(map[Field]Match, len(original.Trace)), Structured: original.Structured}
	for f, m := range original.Trace {
		r.Trace[f] = m
	}
	changed := map[Field]bool{
		FieldDate:        !sameDay(original.Fields.Date, edited.Date),
		FieldTotal:       original.Fields.Total != edited.Total,
		FieldVendor:      original.Fields.Vendor != edited.Vendor,
		FieldCategory:    original.Fields.Category != edited.Category,
		FieldDescription: original.Fields.Description != edited.Description,
		FieldTax:         original.Fields.TaxAmount != edited.TaxAmount,
	}
	for f, c := range changed {
		if !c {
			continue
		}
		if IsDefault(f, edited) {
			r.Trace[f] = Match{Rule: "default", Confidence: defaultConfidence[f], Defaulted: true}
		} else {
			r.Trace[f] = Match{Rule: "manual", Confidence: manualConfidence}
		}
	}
	return s.Score(r)
}

// Confirmed is the provenance of fields typed in by hand: every non-default
// field counts as confirmed. It is the original to re-validate a receipt
// that has no recognized text.
func Confirmed(f Fields) Result {
	r := newResult()
	r.Fields = f
	for fld := range defaultConfidence {
		if IsDefault(fld, f) {
			r.setDefault(fld)
		} else {
			r.set(fld, "manual", manualConfidence)
		}
	}
	return r
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
