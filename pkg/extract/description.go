package extract

import (
	"regexp"
	"strings"
)

const (
	descriptionLines  = 3
	descriptionMaxLen = 255
)

var (
	amountOnlyLineRE = regexp.MustCompile(`^[\s$\d.,:%*=#/_-]+$`)
	labelLineRE      = regexp.MustCompile(`\b(rut|fecha|total|subtotal)\b`)
)

func (e *Extractor) extractDescription(text string, r *Result) {
	var picked []string
	for _, l := range splitLines(text) {
		if amountOnlyLineRE.MatchString(l) || labelLineRE.MatchString(fold(l)) {
			continue
		}
		picked = append(picked, l)
		if len(picked) == descriptionLines {
			break
		}
	}
	if len(picked) == 0 {
		r.Fields.Description = DefaultDescription
		r.setDefault(FieldDescription)
		return
	}
	r.Fields.Description = truncateRunes(strings.Join(picked, ", "), descriptionMaxLen)
	r.set(FieldDescription, "first_lines", 0.6)
}
