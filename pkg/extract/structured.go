package extract

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/pkg/money"
)

const structuredConfidence = 0.85

var structuredDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
}

// plainDecimalRE matches "12990.50": a single dot followed by one or two
// digits can never be a thousands separator.
var plainDecimalRE = regexp.MustCompile(`^\d+\.\d{1,2}$`)

var errNoJSONObject = errors.New("no JSON object found")

// FromStructured normalizes the JSON a vision model returns. Pattern
// extraction is skipped; values are only coerced to the expected types.
// Malformed JSON yields a defaulted result.
func (e *Extractor) FromStructured(raw []byte) Result {
	r := newResult()
	r.Structured = true

	obj, err := decodeObject(string(raw))
	if err != nil {
		obj = map[string]any{}
	}

	if t, ok := structuredDate(lookup(obj, "date", "fecha")); ok {
		r.Fields.Date = t
		r.set(FieldDate, "structured", structuredConfidence)
	} else {
		r.Fields.Date = dateOnly(e.now())
		r.setDefault(FieldDate)
	}

	if v, ok := structuredAmount(lookup(obj, "total", "amount", "monto")); ok && v.InReceiptRange() {
		r.Fields.Total = v
		r.set(FieldTotal, "structured", structuredConfidence)
	} else {
		r.setDefault(FieldTotal)
	}

	if v, ok := structuredAmount(lookup(obj, "taxAmount", "tax_amount", "iva")); ok && v.InReceiptRange() {
		r.Fields.TaxAmount = v
		r.set(FieldTax, "structured", structuredConfidence)
	} else {
		r.setDefault(FieldTax)
	}

	if v := structuredString(lookup(obj, "vendor", "merchant", "vendedor")); v != "" {
		r.Fields.Vendor = truncateRunes(v, 50)
		r.set(FieldVendor, "structured", structuredConfidence)
	} else {
		r.Fields.Vendor = DefaultVendor
		r.setDefault(FieldVendor)
	}

	if v := structuredString(lookup(obj, "description", "descripcion")); v != "" {
		r.Fields.Description = truncateRunes(v, descriptionMaxLen)
		r.set(FieldDescription, "structured", structuredConfidence)
	} else {
		r.Fields.Description = DefaultDescription
		r.setDefault(FieldDescription)
	}

	cat := structuredString(lookup(obj, "category", "categoria"))
	switch name, ok := canonicalCategory(e.categories, cat); {
	case ok && name != DefaultCategory:
		r.Fields.Category = name
		r.set(FieldCategory, "structured", structuredConfidence)
	default:
		hint := cat + "\n" + r.Fields.Vendor + "\n" + r.Fields.Description
		if name, ok := categorize(e.categories, hint); ok {
			r.Fields.Category = name
			r.set(FieldCategory, "structured_keyword", 0.6)
		} else {
			r.Fields.Category = DefaultCategory
			r.setDefault(FieldCategory)
		}
	}
	return r
}

// decodeObject strips markdown fences and decodes the first balanced {...}.
func decodeObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start, end, depth := -1, -1, 0
	inString, escaped := false, false
	for i, c := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	if start == -1 || end == -1 {
		return nil, errNoJSONObject
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func lookup(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func structuredString(v any) string {
	switch s := v.(type) {
	case string:
		s = strings.Join(strings.Fields(s), " ")
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func structuredDate(v any) (time.Time, bool) {
	s := structuredString(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range structuredDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return ParseDate(s)
}

// structuredAmount accepts JSON numbers and strings such as "$12.990".
func structuredAmount(v any) (money.Amount, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return 0, false
		}
		return money.FromFloat(n), true
	case string:
		s := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == ',' {
				return r
			}
			return -1
		}, n)
		if s == "" {
			return 0, false
		}
		if plainDecimalRE.MatchString(s) {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return 0, false
			}
			return money.FromDecimal(d), true
		}
		a, err := money.ParseAmount(s)
		if err != nil {
			return 0, false
		}
		return a, true
	}
	return 0, false
}
