package dashboard

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gastos/pkg/money"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func sample() []Receipt {
	return []Receipt{
		{Date: day(3, 2), Total: 10000, TaxAmount: 1597, Category: "Alimentación", Vendor: "Jumbo"},
		{Date: day(3, 9), Total: 20000, TaxAmount: 3193, Category: "Transporte", Vendor: "Copec"},
		{Date: day(4, 1), Total: 5000, Category: "Alimentación", Vendor: "Jumbo", NeedsReview: true},
		{Date: day(2, 28), Total: 1000, Category: "Otros", Vendor: "No identificado", NeedsReview: true},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize(sample())
	require.Equal(t, 4, s.Count)
	require.EqualValues(t, 36000, s.Total)
	require.EqualValues(t, 4790, s.TaxTotal)
	require.EqualValues(t, 9000, s.Average)
	require.Equal(t, 2, s.NeedsReview)

	require.Len(t, s.ByCategory, 3)
	require.Equal(t, "Transporte", s.ByCategory[0].Category)
	require.Equal(t, "Alimentación", s.ByCategory[1].Category)
	require.EqualValues(t, 15000, s.ByCategory[1].Total)
	require.Equal(t, 2, s.ByCategory[1].Count)
	require.InDelta(t, 15000.0/36000.0, s.ByCategory[1].Share, 1e-9)

	require.Equal(t, []MonthTotal{
		{Month: "2024-02", Total: 1000, Count: 1},
		{Month: "2024-03", Total: 30000, Count: 2},
		{Month: "2024-04", Total: 5000, Count: 1},
	}, s.ByMonth)

	require.Equal(t, "Copec", s.TopVendors[0].Vendor)
	require.Equal(t, "Jumbo", s.TopVendors[1].Vendor)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	require.Zero(t, s.Count)
	require.Zero(t, s.Average)
	require.NotNil(t, s.ByCategory)
	require.NotNil(t, s.ByMonth)
}

func TestSummarizeLimitsVendors(t *testing.T) {
	t.Parallel()

	var rs []Receipt
	for i, v := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rs = append(rs, Receipt{Date: day(1, 1), Total: money.Amount(1000 * (i + 1)), Vendor: v})
	}
	s := Summarize(rs)
	require.Len(t, s.TopVendors, topVendors)
	require.Equal(t, "g", s.TopVendors[0].Vendor)
}

func TestCategoryChart(t *testing.T) {
	t.Parallel()

	png, err := CategoryChart(Summarize(sample()), "Gastos por categoría")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = CategoryChart(Summarize(nil), "vacío")
	require.ErrorIs(t, err, ErrNoData)
}
