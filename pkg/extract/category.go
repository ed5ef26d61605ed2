package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CategoryRule maps a category name to the keywords that select it.
type CategoryRule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// DefaultCategories is checked in order; the first category with a keyword
// contained in the text wins. Keywords of up to shortKeyword runes must start
// a word, so "uber" does not match "tuberia".
var DefaultCategories = []CategoryRule{
	{Name: "Alimentación", Keywords: []string{"supermercado", "comida", "restaurant", "almuerzo", "cafeteria", "panaderia", "alimentos", "minimarket", "jumbo", "unimarc", "tottus", "santa isabel"}},
	{Name: "Transporte", Keywords: []string{"combustible", "bencina", "petroleo diesel", "copec", "petrobras", "estacionamiento", "peaje", "autopista", "taxi", "uber", "pasaje"}},
	{Name: "Salud", Keywords: []string{"farmacia", "cruz verde", "salcobrand", "ahumada", "clinica", "medico", "consulta medica", "laboratorio", "dental"}},
	{Name: "Servicios básicos", Keywords: []string{"electricidad", "enel", "aguas andinas", "agua potable", "metrogas", "gas natural", "internet", "telefonia", "entel", "movistar"}},
	{Name: "Oficina", Keywords: []string{"libreria", "papeleria", "articulos de oficina", "impresion", "toner", "fotocopia"}},
	{Name: "Impuestos y patentes", Keywords: []string{"patente", "municipalidad", "tesoreria", "contribuciones", "impuesto"}},
	{Name: "Entretenimiento", Keywords: []string{"cine", "teatro", "concierto", "entradas"}},
}

const shortKeyword = 5

type foldedCategory struct {
	name     string
	keywords []string
}

func foldCategories(rules []CategoryRule) []foldedCategory {
	out := make([]foldedCategory, 0, len(rules))
	for _, c := range rules {
		fc := foldedCategory{name: c.Name}
		for _, k := range c.Keywords {
			if k = strings.TrimSpace(fold(k)); k != "" {
				fc.keywords = append(fc.keywords, k)
			}
		}
		out = append(out, fc)
	}
	return out
}

// categorize returns the first category whose keyword is a substring of text.
func categorize(cats []foldedCategory, text string) (string, bool) {
	folded := fold(text)
	for _, c := range cats {
		for _, k := range c.keywords {
			if containsKeyword(folded, k) {
				return c.name, true
			}
		}
	}
	return "", false
}

func containsKeyword(text, k string) bool {
	if utf8.RuneCountInString(k) > shortKeyword {
		return strings.Contains(text, k)
	}
	for off := 0; off < len(text); {
		i := strings.Index(text[off:], k)
		if i < 0 {
			return false
		}
		i += off
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		if i == 0 || !(unicode.IsLetter(prev) || unicode.IsDigit(prev)) {
			return true
		}
		off = i + 1
	}
	return false
}

// canonicalCategory maps name onto a configured category name, ignoring case and accents.
func canonicalCategory(cats []foldedCategory, name string) (string, bool) {
	f := strings.TrimSpace(fold(name))
	if f == "" {
		return "", false
	}
	if f == fold(DefaultCategory) {
		return DefaultCategory, true
	}
	for _, c := range cats {
		if fold(c.name) == f {
			return c.name, true
		}
	}
	return "", false
}

func (e *Extractor) extractCategory(text string, r *Result) {
	if name, ok := categorize(e.categories, text); ok {
		r.Fields.Category = name
		r.set(FieldCategory, "keyword", 0.8)
		return
	}
	r.Fields.Category = DefaultCategory
	r.setDefault(FieldCategory)
}
