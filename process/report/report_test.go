package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gastos/models"
	"gastos/pkg/alerts"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func TestMonthRange(t *testing.T) {
	t.Parallel()
	start, end, err := MonthRange("2024-12")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = MonthRange("12/2024")
	require.Error(t, err)
}

func TestBuildFlagsUnusual(t *testing.T) {
	t.Parallel()
	history := []models.Receipt{
		{Total: 9000, Category: "Alimentación"},
		{Total: 10000, Category: "Alimentación"},
		{Total: 11000, Category: "Alimentación"},
		{Total: 50000, Category: "Salud"},
		{Total: 52000, Category: "Salud"},
	}
	month := []models.Receipt{
		{ID: 1, ReceiptID: "A", Date: day(2), Total: 10500, Category: "Alimentación", Vendor: "Jumbo"},
		{ID: 2, ReceiptID: "B", Date: day(3), Total: 400000, Category: "Salud", Vendor: "Clínica"},
		{ID: 3, ReceiptID: "C", Date: day(4), Total: 30000, Category: "Alimentación", Vendor: "Lider", NeedsReview: true},
	}
	ev := alerts.New()
	r := Build("ana", "2024-03", month, history, ev)

	require.Equal(t, 3, r.Summary.Count)
	require.EqualValues(t, 440500, r.Summary.Total)
	require.Equal(t, 1, r.Summary.NeedsReview)
	require.Len(t, r.Unusual, 2)
	require.Equal(t, "B", r.Unusual[0].Receipt.ReceiptID)
	require.Equal(t, "total", r.Unusual[0].Scope)
	require.Equal(t, "C", r.Unusual[1].Receipt.ReceiptID)
	require.Equal(t, "Alimentación", r.Unusual[1].Scope)
	require.EqualValues(t, 10000, r.Unusual[1].Average)

	var buf bytes.Buffer
	Write(&buf, r, true)
	out := buf.String()
	require.Contains(t, out, "Report for user=ana month=2024-03")
	require.Contains(t, out, "unusual receipts:")
	require.Contains(t, out, "2|B|2024-03-03|Clínica|Salud|400000|0.00")
}

func TestBuildWithoutHistory(t *testing.T) {
	t.Parallel()
	r := Build("ana", "2024-03", []models.Receipt{{Total: 1000, Date: day(1)}}, nil, alerts.New())
	require.Empty(t, r.Unusual)
	require.Equal(t, 1, r.Summary.Count)
}
