package models

import (
	"time"

	"gastos/pkg/alerts"
)

// AlertRule is a persisted alerts.Rule owned by a user.
type AlertRule struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint    `gorm:"index;not null" json:"user_id"`
	User      User    `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type      string  `gorm:"size:16;not null" json:"type"`
	Threshold float64 `gorm:"not null;default:0" json:"threshold"`
	Category  string  `gorm:"size:64" json:"category,omitempty"`
	Timeframe string  `gorm:"size:16;not null;default:MONTHLY" json:"timeframe"`
	IsActive  bool    `gorm:"not null;default:true" json:"is_active"`
}

// Rule converts the record for evaluation.
func (a AlertRule) Rule() alerts.Rule {
	return alerts.Rule{
		ID:        a.ID,
		Type:      alerts.RuleType(a.Type),
		Threshold: a.Threshold,
		Category:  a.Category,
		Timeframe: alerts.Timeframe(a.Timeframe),
		IsActive:  a.IsActive,
	}
}
