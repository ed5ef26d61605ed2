package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gastos/pkg/money"
)

func newTestScorer() *Scorer {
	return NewScorer(WithScorerClock(func() time.Time { return fixedNow }))
}

func TestScoreValidReceipt(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("... TOTAL $ 10.000 ... 01/01/2024 ... FARMACIA CRUZ VERDE ...")
	v := newTestScorer().Score(r)

	require.True(t, v.IsValid)
	require.InDelta(t, 0.77, v.Overall, 0.001)
	require.Equal(t, 0.9, v.Confidence[FieldTotal])
	require.Equal(t, []string{"No se pudo generar una descripción"}, v.Issues)
}

func TestScoreMissingTotalIsInvalid(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("COMERCIAL LOS ANDES LIMITADA\nRUT: 76.123.456-7\nFecha: 01/02/2024\nFARMACIA")
	v := newTestScorer().Score(r)

	require.False(t, v.IsValid)
	require.Contains(t, v.Issues, "No se pudo determinar el monto total")
	require.Equal(t, 0.0, v.Confidence[FieldTotal])
}

func TestScoreIssuesOrder(t *testing.T) {
	t.Parallel()

	v := newTestScorer().Score(newTestExtractor().Extract(""))
	require.False(t, v.IsValid)
	require.Equal(t, []string{
		"No se pudo determinar la fecha; se usó la fecha actual",
		"No se pudo determinar el monto total",
		"No se pudo determinar el vendedor",
		"No se pudo determinar la categoría",
		"No se pudo generar una descripción",
		"Confianza general baja (13%)",
	}, v.Issues)
}

func TestScoreConsistencyWarnings(t *testing.T) {
	t.Parallel()

	r := newTestExtractor().Extract("TOTAL: 1.000\nIVA: 5.000\n01/01/2030\nFARMACIA")
	v := newTestScorer().Score(r)
	require.Contains(t, v.Issues, "El IVA es mayor que el monto total")
	require.Contains(t, v.Issues, "La fecha de la boleta está en el futuro")
}

func TestScorePlaceholder(t *testing.T) {
	t.Parallel()

	v := newTestScorer().Score(Placeholder(fixedNow))
	require.False(t, v.IsValid)
	require.Equal(t, 0.0, v.Overall)
}

func TestValidateEditedFields(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	orig := newTestExtractor().Extract("total 5.000\n01/01/2024\ngracias por su compra")
	require.Equal(t, DefaultVendor, orig.Fields.Vendor)

	edited := orig.Fields
	edited.Vendor = "Almacén Don Pepe"
	v := s.Validate(orig, edited)
	require.Equal(t, 1.0, v.Confidence[FieldVendor])
	require.NotContains(t, v.Issues, "No se pudo determinar el vendedor")

	edited.Total = 0
	v = s.Validate(orig, edited)
	require.False(t, v.IsValid)
	require.Contains(t, v.Issues, "No se pudo determinar el monto total")

	edited.Total = money.Amount(7000)
	v = s.Validate(orig, edited)
	require.Equal(t, 1.0, v.Confidence[FieldTotal])
}

func TestConfirmedKeepsManualFields(t *testing.T) {
	t.Parallel()

	f := Fields{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Total:       money.Amount(15000),
		Vendor:      "Librería Nacional",
		Category:    "Oficina",
		Description: DefaultDescription,
	}
	r := Confirmed(f)
	require.False(t, r.Defaulted(FieldTotal))
	require.True(t, r.Defaulted(FieldDescription))

	v := newTestScorer().Validate(r, f)
	require.True(t, v.IsValid)
	require.Equal(t, 1.0, v.Confidence[FieldVendor])
	require.Equal(t, []string{"No se pudo generar una descripción"}, v.Issues)
}
