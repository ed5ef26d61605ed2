// Package export renders receipts as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"gastos/pkg/money"
)

// SheetName is the worksheet holding the receipts.
const SheetName = "Boletas"

var header = []any{"Fecha", "N° Boleta", "Vendedor", "Categoría", "Empresa", "Descripción", "Total", "IVA", "Confianza"}

// Row is one receipt line in the workbook.
type Row struct {
	Date        time.Time
	ReceiptID   string
	Vendor      string
	Category    string
	Company     string
	Description string
	Total       money.Amount
	TaxAmount   money.Amount
	Confidence  float64
}

// WriteReceipts writes a workbook with a header, one row per receipt and a
// totals row.
func WriteReceipts(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	clp, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}
	pct, err := f.NewStyle(&excelize.Style{NumFmt: 9})
	if err != nil {
		return fmt.Errorf("percent style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	var total, tax money.Amount
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{
			r.Date.Format("2006-01-02"),
			r.ReceiptID,
			r.Vendor,
			r.Category,
			r.Company,
			r.Description,
			int64(r.Total),
			int64(r.TaxAmount),
			r.Confidence,
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
		total += r.Total
		tax += r.TaxAmount
	}
	last := len(rows) + 2
	totalsCell, _ := excelize.CoordinatesToCellName(1, last)
	totals := []any{"Total", "", "", "", "", "", int64(total), int64(tax)}
	if err := f.SetSheetRow(SheetName, totalsCell, &totals); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}

	styles := []struct {
		from, to string
		style    int
	}{
		{"A1", "I1", bold},
		{fmt.Sprintf("A%d", last), fmt.Sprintf("I%d", last), bold},
		{"G2", fmt.Sprintf("H%d", last), clp},
		{"I2", fmt.Sprintf("I%d", max(last-1, 2)), pct},
	}
	for _, s := range styles {
		if err := f.SetCellStyle(SheetName, s.from, s.to, s.style); err != nil {
			return fmt.Errorf("style %s:%s: %w", s.from, s.to, err)
		}
	}
	_ = f.SetColWidth(SheetName, "A", "B", 14)
	_ = f.SetColWidth(SheetName, "C", "F", 28)
	_ = f.SetColWidth(SheetName, "G", "I", 14)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
