package extract

import (
	"regexp"
	"strings"

	"gastos/pkg/money"
)

// Context window around an amount candidate searched for a "total" label.
const (
	contextBefore = 30
	contextAfter  = 100
	patenteLines  = 10
)

type amountRule struct {
	name       string
	confidence float64
	re         *regexp.Regexp
}

// amountRules are listed from most to least specific. Every in-range match
// becomes a candidate and candidates keep this order.
var amountRules = []amountRule{
	{"total_colon", 0.95, regexp.MustCompile(`(?i)\btotal\s*:\s*\$?\s*(\d[\d.,]*)`)},
	{"total_label", 0.9, regexp.MustCompile(`(?i)\btotal\s+\$?\s*(\d[\d.,]*)`)},
	// The generic label only takes money-shaped numbers, so "Total items 3" is skipped.
	{"total_generic", 0.8, regexp.MustCompile(`(?im)total[^\d\n$]{0,25}(?:\$\s*(\d[\d.,]*)|(\d{1,3}(?:\.\d{3})+(?:,\d+)?)|(\d{3,}(?:,\d+)?)\s*$)`)},
	{"importe", 0.75, regexp.MustCompile(`(?i)importe[^\d\n]{0,25}(\d[\d.,]*)`)},
	{"monto", 0.7, regexp.MustCompile(`(?i)monto[^\d\n]{0,25}(\d[\d.,]*)`)},
	{"currency", 0.5, regexp.MustCompile(`\$\s*(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?)`)},
	{"grouped", 0.4, regexp.MustCompile(`\b(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?)\b`)},
}

// fallbackWithTotal is the confidence of a fallback candidate that still sits next to a total label.
const fallbackWithTotal = 0.6

var (
	patenteRE = regexp.MustCompile(`(?:^|[^\d.,])(\d{2}\.\d{3})(?:$|[^\d.,])`)
	ivaRE     = regexp.MustCompile(`(?i)\biva\b(?:\s*\(?\s*19\s*%\s*\)?)?[^\d\n]{0,20}(\d[\d.,]*)`)
)

type amountCandidate struct {
	value      money.Amount
	raw        string
	start, end int
	rule       string
	confidence float64
}

// amountCandidates collects every in-range amount, most specific rule first.
func amountCandidates(text string) []amountCandidate {
	var out []amountCandidate
	seen := map[int]bool{}
	for _, ar := range amountRules {
		for _, loc := range findAllSafe(ar.re, text) {
			start, end := firstGroup(loc)
			if start < 0 || seen[start] {
				continue
			}
			raw := text[start:end]
			v, err := money.ParseAmount(raw)
			if err != nil || !v.InReceiptRange() {
				continue
			}
			seen[start] = true
			out = append(out, amountCandidate{
				value: v, raw: raw, start: start, end: end,
				rule: ar.name, confidence: ar.confidence,
			})
		}
	}
	return out
}

// firstGroup returns the bounds of the first capture group that matched.
func firstGroup(loc []int) (int, int) {
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 {
			return loc[i], loc[i+1]
		}
	}
	return -1, -1
}

func findAllSafe(re *regexp.Regexp, text string) (locs [][]int) {
	defer func() {
		if recover() != nil {
			locs = nil
		}
	}()
	return re.FindAllStringSubmatchIndex(text, -1)
}

// pickTotal prefers the first candidate with "total" near it, else the first candidate.
func pickTotal(text string, cands []amountCandidate) (amountCandidate, bool) {
	if len(cands) == 0 {
		return amountCandidate{}, false
	}
	for _, c := range cands {
		if nearTotal(text, c.start, c.end) {
			if c.confidence < fallbackWithTotal {
				c.confidence = fallbackWithTotal
			}
			return c, true
		}
	}
	return cands[0], true
}

func nearTotal(text string, start, end int) bool {
	lo := start - contextBefore
	if lo < 0 {
		lo = 0
	}
	hi := end + contextAfter
	if hi > len(text) {
		hi = len(text)
	}
	return strings.Contains(strings.ToLower(text[lo:hi]), "total")
}

// patenteTotal handles municipal business-license receipts, which print the
// amount as a bare NN.NNN near the bottom with no total label.
func patenteTotal(text string) (money.Amount, bool) {
	if !strings.Contains(fold(text), "patente") {
		return 0, false
	}
	lines := splitLines(text)
	if len(lines) > patenteLines {
		lines = lines[len(lines)-patenteLines:]
	}
	for _, l := range lines {
		m := patenteRE.FindStringSubmatch(l)
		if len(m) < 2 {
			continue
		}
		if v, err := money.ParseAmount(m[1]); err == nil && v.InReceiptRange() {
			return v, true
		}
	}
	return 0, false
}

// ParseTotal runs the total cascade over text.
func ParseTotal(text string) (money.Amount, bool) {
	if v, ok := patenteTotal(text); ok {
		return v, true
	}
	c, ok := pickTotal(text, amountCandidates(text))
	return c.value, ok
}

func (e *Extractor) extractTotal(text string, r *Result) {
	if v, ok := patenteTotal(text); ok {
		r.Fields.Total = v
		r.set(FieldTotal, "patente", 0.8)
		return
	}
	if c, ok := pickTotal(text, amountCandidates(text)); ok {
		r.Fields.Total = c.value
		r.set(FieldTotal, c.rule, c.confidence)
		return
	}
	r.Fields.Total = 0
	r.setDefault(FieldTotal)
}

func (e *Extractor) extractTax(text string, r *Result) {
	for _, m := range ivaRE.FindAllStringSubmatch(text, -1) {
		v, err := money.ParseAmount(m[1])
		if err != nil || !v.InReceiptRange() {
			continue
		}
		r.Fields.TaxAmount = v
		r.set(FieldTax, "iva", 0.8)
		return
	}
	r.Fields.TaxAmount = 0
	r.setDefault(FieldTax)
}
