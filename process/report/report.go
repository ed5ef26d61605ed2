// Package report prints a monthly spending report for one user.
package report

import (
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"gastos/models"
	"gastos/pkg/alerts"
	"gastos/pkg/dashboard"
	"gastos/pkg/money"
)

// historyMonths is how far back the baseline for unusual receipts goes.
const historyMonths = 12

// Unusual is a receipt whose total stands out against the user's history.
type Unusual struct {
	Receipt models.Receipt
	// Scope is "total" or the category name the receipt was compared within.
	Scope   string
	Average money.Amount
}

// Report is one user's month.
type Report struct {
	Username string
	Month    string
	Summary  dashboard.Summary
	Unusual  []Unusual
	Receipts []models.Receipt
}

// MonthRange parses YYYY-MM into the half-open UTC range [start, end).
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Build aggregates the month and flags receipts that are unusual against
// history, either overall or within their category.
func Build(username, month string, receipts, history []models.Receipt, ev *alerts.Evaluator) Report {
	r := Report{Username: username, Month: month, Receipts: receipts}

	views := make([]dashboard.Receipt, 0, len(receipts))
	for _, rec := range receipts {
		views = append(views, rec.DashboardView())
	}
	r.Summary = dashboard.Summarize(views)

	hist := make([]alerts.Receipt, 0, len(history))
	for _, h := range history {
		hist = append(hist, h.AlertView())
	}
	overall := alerts.CalculateSpendingPattern(hist)
	for _, rec := range receipts {
		total := money.Amount(rec.Total)
		if ev.IsUnusualSpending(total, overall) {
			r.Unusual = append(r.Unusual, Unusual{Receipt: rec, Scope: "total", Average: money.FromFloat(overall.Average)})
			continue
		}
		cp := alerts.CalculateCategoryPattern(hist, rec.Category)
		if ev.IsUnusualSpending(total, cp) {
			r.Unusual = append(r.Unusual, Unusual{Receipt: rec, Scope: rec.Category, Average: money.FromFloat(cp.Average)})
		}
	}
	return r
}

// Write prints r. With list every receipt of the month is printed too.
func Write(w io.Writer, r Report, list bool) {
	s := r.Summary
	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", r.Username, r.Month)
	fmt.Fprintf(w, "  receipts=%d total=%s iva=%s average=%s needs_review=%d\n",
		s.Count, s.Total, s.TaxTotal, s.Average, s.NeedsReview)
	if len(s.ByCategory) > 0 {
		fmt.Fprintln(w, "  by category:")
		for _, c := range s.ByCategory {
			fmt.Fprintf(w, "    %-22s %12s  %3d  %5.1f%%\n", c.Category, c.Total, c.Count, c.Share*100)
		}
	}
	if len(s.TopVendors) > 0 {
		fmt.Fprintln(w, "  top vendors:")
		for _, v := range s.TopVendors {
			fmt.Fprintf(w, "    %-22s %12s  %3d\n", v.Vendor, v.Total, v.Count)
		}
	}
	if len(r.Unusual) > 0 {
		fmt.Fprintln(w, "  unusual receipts:")
		for _, u := range r.Unusual {
			fmt.Fprintf(w, "    %s|%s|%s|%s (average %s in %s)\n",
				u.Receipt.Date.Format("2006-01-02"), u.Receipt.ReceiptID, u.Receipt.Vendor,
				money.Amount(u.Receipt.Total), u.Average, u.Scope)
		}
	}
	if list {
		for _, rec := range r.Receipts {
			fmt.Fprintf(w, "%d|%s|%s|%s|%s|%d|%.2f\n",
				rec.ID, rec.ReceiptID, rec.Date.Format("2006-01-02"), rec.Vendor, rec.Category, rec.Total, rec.Confidence)
		}
	}
}

// Run loads the user's month and history and writes the report.
func Run(db *gorm.DB, w io.Writer, username, month string, list bool, ev *alerts.Evaluator) error {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user %q not found: %w", username, err)
	}
	start, end, err := MonthRange(month)
	if err != nil {
		return err
	}
	var receipts []models.Receipt
	if err := db.Where("user_id = ? AND date >= ? AND date < ?", user.ID, start, end).Order("date, id").Find(&receipts).Error; err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	var history []models.Receipt
	if err := db.Select("total", "category", "date").
		Where("user_id = ? AND date >= ? AND date < ?", user.ID, start.AddDate(0, -historyMonths, 0), start).
		Find(&history).Error; err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	Write(w, Build(user.Username, month, receipts, history, ev), list)
	return nil
}
