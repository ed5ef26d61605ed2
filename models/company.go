package models

import "time"

// Company is a payer entity owned by a user. Receipts are booked against it.
type Company struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
	// Active is toggled instead of deleting companies that still have receipts.
	Active  bool   `gorm:"default:true;not null"`
	UserID  uint   `gorm:"index;not null;uniqueIndex:idx_company_user_rut"`
	User    User   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Name    string `gorm:"size:255;not null"`
	RUT     string `gorm:"column:rut;size:16;uniqueIndex:idx_company_user_rut"`
	Address string `gorm:"size:512"`
	Email   string `gorm:"size:255"`
	Phone   string `gorm:"size:64"`
}
