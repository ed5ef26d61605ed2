package models

import (
	"time"

	"gastos/pkg/alerts"
	"gastos/pkg/dashboard"
	"gastos/pkg/export"
	"gastos/pkg/extract"
	"gastos/pkg/money"
)

// Receipt is a saved expense. Total and TaxAmount are whole pesos.
type Receipt struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ReceiptID   string    `gorm:"size:64;not null;uniqueIndex" json:"receipt_id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CompanyID   *uint     `gorm:"index" json:"company_id"`
	Company     *Company  `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"company,omitempty"`
	CategoryID  *uint     `gorm:"index" json:"category_id"`
	Category    string    `gorm:"size:64;not null;index" json:"category"`
	Date        time.Time `gorm:"not null;index" json:"date"`
	Total       int64     `gorm:"not null" json:"total"`
	TaxAmount   int64     `gorm:"not null;default:0" json:"tax_amount"`
	Vendor      string    `gorm:"size:255;not null" json:"vendor"`
	Description string    `gorm:"size:255" json:"description"`
	Confidence  float64   `json:"confidence"`
	NeedsReview bool      `gorm:"default:false;index" json:"needs_review"`
	RawExcerpt  string    `gorm:"type:text" json:"raw_excerpt,omitempty"`
	DocumentID  *uint     `gorm:"index" json:"document_id"`
}

// Fields returns the extractor view of the receipt.
func (r Receipt) Fields() extract.Fields {
	return extract.Fields{
		Date:        r.Date,
		Total:       money.Amount(r.Total),
		Vendor:      r.Vendor,
		Category:    r.Category,
		TaxAmount:   money.Amount(r.TaxAmount),
		Description: r.Description,
	}
}

// ApplyFields copies extracted or edited fields onto the receipt.
func (r *Receipt) ApplyFields(f extract.Fields) {
	r.Date = f.Date
	r.Total = int64(f.Total)
	r.Vendor = f.Vendor
	r.Category = f.Category
	r.TaxAmount = int64(f.TaxAmount)
	r.Description = f.Description
}

// AlertView is the receipt as the alert evaluator sees it.
func (r Receipt) AlertView() alerts.Receipt {
	return alerts.Receipt{Total: money.Amount(r.Total), Category: r.Category, Date: r.Date}
}

// DashboardView is the receipt as the dashboard sees it.
func (r Receipt) DashboardView() dashboard.Receipt {
	return dashboard.Receipt{
		Date:        r.Date,
		Total:       money.Amount(r.Total),
		TaxAmount:   money.Amount(r.TaxAmount),
		Category:    r.Category,
		Vendor:      r.Vendor,
		NeedsReview: r.NeedsReview,
	}
}

// ExportRow is the receipt as a workbook line.
func (r Receipt) ExportRow() export.Row {
	row := export.Row{
		Date:        r.Date,
		ReceiptID:   r.ReceiptID,
		Vendor:      r.Vendor,
		Category:    r.Category,
		Description: r.Description,
		Total:       money.Amount(r.Total),
		TaxAmount:   money.Amount(r.TaxAmount),
		Confidence:  r.Confidence,
	}
	if r.Company != nil {
		row.Company = r.Company.Name
	}
	return row
}
