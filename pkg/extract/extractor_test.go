package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gastos/pkg/money"
	"gastos/pkg/ocr"
)

var fixedNow = time.Date(2024, 6, 20, 15, 4, 5, 0, time.UTC)

func newTestExtractor() *Extractor {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want money.Amount
		rule string
	}{
		{"dot thousands", "TOTAL: $ 44.995", 44995, "total_colon"},
		{"comma decimal", "TOTAL: $ 44.995,50", 44996, "total_colon"},
		{"label without colon", "TOTAL $ 10.000", 10000, "total_label"},
		{"generic label", "Propina $ 1.000\nTOTAL A PAGAR 12.500", 12500, "total_generic"},
		{"item count is not a total", "Total items 3\nTOTAL A PAGAR $ 4.500", 4500, "total_generic"},
		{"bare amount ends the line", "Total items 3\nTOTAL A PAGAR 4500", 4500, "total_generic"},
		{"importe", "Importe: 7.490", 7490, "importe"},
		{"currency fallback", "Vale por $ 3.500", 3500, "currency"},
		{"grouped fallback", "Neto 8.403", 8403, "grouped"},
		{
			"patente override",
			"MUNICIPALIDAD DE SANTIAGO\nPATENTE COMERCIAL\nROL 1-23456\nPERIODO 1\nVALOR\n85.400",
			85400, "patente",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestExtractor().Extract(tt.text)
			require.Equal(t, tt.want, r.Fields.Total)
			require.Equal(t, tt.rule, r.Trace[FieldTotal].Rule)
			require.False(t, r.Defaulted(FieldTotal))
		})
	}
}

func TestExtractTotalPrefersTotalContext(t *testing.T) {
	t.Parallel()

	text := "$ 2.000 propina\n" + strings.Repeat("x", 120) + "\n$ 15.990 total"
	r := newTestExtractor().Extract(text)
	require.Equal(t, money.Amount(15990), r.Fields.Total)
	require.Equal(t, fallbackWithTotal, r.Trace[FieldTotal].Confidence)
}

func TestExtractTotalOutOfRange(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("TOTAL 25.000.000")
	require.Equal(t, money.Amount(0), r.Fields.Total)
	require.True(t, r.Defaulted(FieldTotal))
}

func TestExtractDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want time.Time
		rule string
	}{
		{"dd/mm/yyyy", "Fecha: 15/03/2024", day(2024, 3, 15), "dmy"},
		{"dd-mm-yyyy", "15-03-2024 12:31", day(2024, 3, 15), "dmy"},
		{"yyyy-mm-dd", "Emitida 2024-03-15", day(2024, 3, 15), "ymd"},
		{"spanish month", "Santiago, 15 de marzo de 2024", day(2024, 3, 15), "spanish_month"},
		{"spanish month accents", "1 de Septiembre del 2023", day(2023, 9, 1), "spanish_month"},
		{"short year", "Fecha 05/11/23", day(2023, 11, 5), "dmy_short"},
		{"skips impossible date", "31/02/2024 01/03/2024", day(2024, 3, 1), "dmy"},
		{"skips bad month", "15/13/2024 2024/01/31", day(2024, 1, 31), "ymd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestExtractor().Extract(tt.text)
			require.Equal(t, tt.want, r.Fields.Date)
			require.Equal(t, tt.rule, r.Trace[FieldDate].Rule)
		})
	}
}

func TestExtractDateDefaultsToToday(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("sin fecha")
	require.Equal(t, day(2024, 6, 20), r.Fields.Date)
	require.True(t, r.Defaulted(FieldDate))
}

func TestExtractVendor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
		rule string
	}{
		{"company before rut", "COMERCIAL LOS ANDES LIMITADA\nRUT: 76.123.456-7\nTOTAL 2.500", "COMERCIAL LOS ANDES LIMITADA", "company_before_rut"},
		{"company before number", "SERVICIOS INTEGRALES DEL SUR\n1234 AV. MATTA\nTOTAL 2.500", "SERVICIOS INTEGRALES DEL SUR", "company_before_number"},
		{"after rut", "RUT 76.123.456-7\nPanaderia La Espiga\nTOTAL 2.500", "Panaderia La Espiga", "after_rut"},
		{"known literal", "compra en JUMBO\nTOTAL 10.990", "Jumbo", "known_vendor"},
		{"boilerplate is not a vendor", "BOLETA ELECTRONICA NUMERO\n123\nTOTAL 1.000", DefaultVendor, "default"},
		{"no vendor", "total 5.000\ngracias por su compra", DefaultVendor, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestExtractor().Extract(tt.text)
			require.Equal(t, tt.want, r.Fields.Vendor)
			require.Equal(t, tt.rule, r.Trace[FieldVendor].Rule)
		})
	}
}

func TestExtractVendorRejectsLongNames(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ABCDEFGHIJ ", 6)
	r := newTestExtractor().Extract(long + "\nRUT: 76.123.456-7")
	require.Equal(t, DefaultVendor, r.Fields.Vendor)
}

func TestExtractCategory(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	require.Equal(t, "Salud", e.Extract("FARMACIA CRUZ VERDE").Fields.Category)
	require.Equal(t, "Salud", e.Extract("Clínica Dávila").Fields.Category)
	require.Equal(t, "Alimentación", e.Extract("Supermercado del barrio").Fields.Category)
	require.Equal(t, "Transporte", e.Extract("COPEC bencina 93").Fields.Category)

	r := e.Extract("nada reconocible")
	require.Equal(t, DefaultCategory, r.Fields.Category)
	require.True(t, r.Defaulted(FieldCategory))
}

func TestExtractCategoryShortKeywordsStartWords(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	tests := []struct {
		text string
		want string
	}{
		{"FERRETERIA EL TORNILLO\nTuberia PVC 20mm", DefaultCategory},
		{"Materiales generales", DefaultCategory},
		{"Viaje UBER 12km", "Transporte"},
		{"CINEMARK ALTO LAS CONDES", "Entretenimiento"},
		{"Boleta ENEL Distribución", "Servicios básicos"},
		{"minimarket la esquina", "Alimentación"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, e.Extract(tt.text).Fields.Category, tt.text)
	}
}

func TestExtractCategoryCustomTable(t *testing.T) {
	t.Parallel()

	e := New(WithCategories([]CategoryRule{{Name: "Mascotas", Keywords: []string{"veterinaria"}}}))
	require.Equal(t, "Mascotas", e.Extract("Clinica VETERINARIA").Fields.Category)
	require.Equal(t, DefaultCategory, e.Extract("FARMACIA").Fields.Category)
}

func TestExtractDescription(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"COMERCIAL LOS ANDES LIMITADA",
		"RUT: 76.123.456-7",
		"Fecha: 01/02/2024",
		"2 x Pan amasado",
		"$ 2.500",
		"Bebida 1.5L",
		"TOTAL: $ 4.000",
		"Gracias",
	}, "\n")
	r := newTestExtractor().Extract(text)
	require.Equal(t, "COMERCIAL LOS ANDES LIMITADA, 2 x Pan amasado, Bebida 1.5L", r.Fields.Description)

	r = newTestExtractor().Extract("12.000\n$ 500\nTOTAL 12.500")
	require.Equal(t, DefaultDescription, r.Fields.Description)
	require.True(t, r.Defaulted(FieldDescription))
}

func TestExtractTax(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("NETO 8.403\nIVA 19%: 1.597\nTOTAL: 10.000")
	require.Equal(t, money.Amount(1597), r.Fields.TaxAmount)
	require.Equal(t, money.Amount(10000), r.Fields.Total)

	r = newTestExtractor().Extract("TOTAL: 10.000")
	require.Equal(t, money.Amount(0), r.Fields.TaxAmount)
}

func TestExtractEndToEnd(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("... TOTAL $ 10.000 ... 01/01/2024 ... FARMACIA CRUZ VERDE ...")
	require.Equal(t, "Salud", r.Fields.Category)
	require.Equal(t, money.Amount(10000), r.Fields.Total)
	require.Equal(t, day(2024, 1, 1), r.Fields.Date)
	require.Equal(t, "Farmacia Cruz Verde", r.Fields.Vendor)
}

func TestExtractEmptyText(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("")
	require.Equal(t, DefaultVendor, r.Fields.Vendor)
	require.Equal(t, DefaultCategory, r.Fields.Category)
	require.Equal(t, DefaultDescription, r.Fields.Description)
	require.Equal(t, money.Amount(0), r.Fields.Total)
	require.Equal(t, day(2024, 6, 20), r.Fields.Date)
}

func TestFirstMatchSkipsPanickingRule(t *testing.T) {
	t.Parallel()

	rules := []rule[string]{
		{name: "boom", fn: func(string) (string, bool) { panic("bad pattern") }},
		{name: "ok", fn: func(s string) (string, bool) { return s, true }},
	}
	v, rl, ok := firstMatch("x", rules)
	require.True(t, ok)
	require.Equal(t, "x", v)
	require.Equal(t, "ok", rl.name)
}

func TestFromRecognitionPicksPath(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	r := e.FromRecognition(ocr.Result{Text: "TOTAL: $ 44.995"})
	require.False(t, r.Structured)
	require.Equal(t, money.Amount(44995), r.Fields.Total)

	r = e.FromRecognition(ocr.Result{Structured: []byte(`{"total": 5000}`)})
	require.True(t, r.Structured)
	require.Equal(t, money.Amount(5000), r.Fields.Total)
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	r := Placeholder(fixedNow)
	require.Equal(t, PlaceholderVendor, r.Fields.Vendor)
	require.Equal(t, DefaultCategory, r.Fields.Category)
	require.Equal(t, money.Amount(0), r.Fields.Total)
	require.True(t, r.Defaulted(FieldTotal))
}
