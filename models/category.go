package models

import (
	"time"

	"gastos/pkg/extract"
)

// Category is a receipt category and the keywords that select it. Position
// orders the keyword table; the first matching category wins.
type Category struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string   `gorm:"size:64;uniqueIndex;not null"`
	Keywords  []string `gorm:"serializer:json;type:text"`
	Position  int      `gorm:"not null;default:0;index"`
}

// CategoryRules converts stored categories, already ordered by position,
// into the extractor's keyword table.
func CategoryRules(cats []Category) []extract.CategoryRule {
	out := make([]extract.CategoryRule, 0, len(cats))
	for _, c := range cats {
		out = append(out, extract.CategoryRule{Name: c.Name, Keywords: c.Keywords})
	}
	return out
}
