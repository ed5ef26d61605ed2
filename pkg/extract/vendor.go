package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	rutLineRE     = regexp.MustCompile(`(?i)^\s*r\.?\s*u\.?\s*t\.?\b`)
	numericLineRE = regexp.MustCompile(`^\s*\d`)
)

// Words that mark a line as receipt boilerplate rather than a business name.
var vendorStopWords = []string{
	"total", "subtotal", "iva", "fecha", "rut", "boleta", "factura", "electronica",
	"neto", "vuelto", "efectivo", "tarjeta", "hora", "caja", "gracias", "giro",
}

// knownVendors is the last-resort literal list, matched on word boundaries.
var knownVendors = []struct {
	pattern string
	name    string
}{
	{"farmacia cruz verde", "Farmacia Cruz Verde"},
	{"cruz verde", "Farmacia Cruz Verde"},
	{"farmacias ahumada", "Farmacias Ahumada"},
	{"salcobrand", "Salcobrand"},
	{"jumbo", "Jumbo"},
	{"lider", "Líder"},
	{"unimarc", "Unimarc"},
	{"santa isabel", "Santa Isabel"},
	{"tottus", "Tottus"},
	{"copec", "Copec"},
	{"petrobras", "Petrobras"},
	{"shell", "Shell"},
	{"sodimac", "Sodimac"},
	{"falabella", "Falabella"},
	{"ripley", "Ripley"},
	{"entel", "Entel"},
	{"movistar", "Movistar"},
	{"enel", "Enel"},
	{"aguas andinas", "Aguas Andinas"},
	{"metrogas", "Metrogas"},
}

var knownVendorREs = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(knownVendors))
	for i, v := range knownVendors {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(fold(v.pattern)) + `\b`)
	}
	return out
}()

var vendorRules = []rule[string]{
	{name: "company_before_rut", confidence: 0.85, fn: func(text string) (string, bool) {
		return scanVendorLines(text, func(lines []string, i int) (string, bool) {
			if i+1 < len(lines) && isCompanyLine(lines[i]) && rutLineRE.MatchString(lines[i+1]) {
				return lines[i], true
			}
			return "", false
		})
	}},
	{name: "company_before_number", confidence: 0.8, fn: func(text string) (string, bool) {
		return scanVendorLines(text, func(lines []string, i int) (string, bool) {
			if i+1 < len(lines) && isCompanyLine(lines[i]) && numericLineRE.MatchString(lines[i+1]) {
				return lines[i], true
			}
			return "", false
		})
	}},
	{name: "after_rut", confidence: 0.7, fn: func(text string) (string, bool) {
		return scanVendorLines(text, func(lines []string, i int) (string, bool) {
			if i+1 < len(lines) && rutLineRE.MatchString(lines[i]) && !numericLineRE.MatchString(lines[i+1]) && !rutLineRE.MatchString(lines[i+1]) {
				return lines[i+1], true
			}
			return "", false
		})
	}},
	{name: "known_vendor", confidence: 0.6, fn: func(text string) (string, bool) {
		folded := fold(text)
		for i, re := range knownVendorREs {
			if re.MatchString(folded) {
				return knownVendors[i].name, true
			}
		}
		return "", false
	}},
}

// scanVendorLines walks the lines in order and accepts the first candidate
// whose trimmed length is within [5,50].
func scanVendorLines(text string, pick func(lines []string, i int) (string, bool)) (string, bool) {
	lines := splitLines(text)
	for i := range lines {
		v, ok := pick(lines, i)
		if !ok {
			continue
		}
		v = strings.Trim(v, " .,:;-*")
		if n := utf8.RuneCountInString(v); n >= 5 && n <= 50 {
			return v, true
		}
	}
	return "", false
}

// isCompanyLine reports whether l looks like an uppercase business name of 15 to 80 characters.
func isCompanyLine(l string) bool {
	n := utf8.RuneCountInString(l)
	if n < 15 || n > 80 {
		return false
	}
	var letters, other int
	for _, r := range l {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsLower(r) {
				return false
			}
			letters++
		case unicode.IsSpace(r):
		default:
			other++
		}
	}
	if letters == 0 || float64(letters) < 0.6*float64(letters+other) {
		return false
	}
	folded := fold(l)
	for _, w := range vendorStopWords {
		if containsWord(folded, w) {
			return false
		}
	}
	return true
}

func containsWord(s, w string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if f == w {
			return true
		}
	}
	return false
}

// ParseVendor runs the vendor cascade over text.
func ParseVendor(text string) (string, bool) {
	v, _, ok := firstMatch(text, vendorRules)
	return v, ok
}

func (e *Extractor) extractVendor(text string, r *Result) {
	if v, rl, ok := firstMatch(text, vendorRules); ok {
		r.Fields.Vendor = v
		r.set(FieldVendor, rl.name, rl.confidence)
		return
	}
	r.Fields.Vendor = DefaultVendor
	r.setDefault(FieldVendor)
}
