package models

import (
	"time"
)

// Document is an uploaded receipt file. It is kept even when recognition
// fails so the user can retry or enter the receipt by hand.
type Document struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserID      uint   `gorm:"index;not null"`
	User        User   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ClientID    string `gorm:"size:64;index"`
	FileName    string `gorm:"size:255;not null"`
	StorageKey  string `gorm:"size:512;not null"`
	ContentType string `gorm:"size:128"`
	Size        int64
	// Failed marks documents whose recognition failed; the record is kept for review.
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}
