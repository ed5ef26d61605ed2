package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteReceipts(t *testing.T) {
	t.Parallel()

	rows := []Row{
		{Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ReceiptID: "B-1", Vendor: "Jumbo", Category: "Alimentación", Total: 12990, TaxAmount: 2074, Confidence: 0.8},
		{Date: time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), ReceiptID: "B-2", Vendor: "Copec", Category: "Transporte", Total: 30000, TaxAmount: 4790, Confidence: 0.9},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteReceipts(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, "Fecha", got[0][0])
	require.Equal(t, "Confianza", got[0][8])
	require.Equal(t, "2024-03-15", got[1][0])
	require.Equal(t, "Copec", got[2][2])
	require.Equal(t, "Total", got[3][0])

	raw := excelize.Options{RawCellValue: true}
	v, err := f.GetCellValue(SheetName, "G4", raw)
	require.NoError(t, err)
	require.Equal(t, "42990", v)
	v, err = f.GetCellValue(SheetName, "H4", raw)
	require.NoError(t, err)
	require.Equal(t, "6864", v)
}

func TestWriteReceiptsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteReceipts(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Total", got[1][0])
}
