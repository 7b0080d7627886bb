package main

import (
	"time"

	"gorm.io/gorm"
)

// ArchivedFile represents a PDF copy held by the archive
type ArchivedFile struct {
	gorm.Model
	FileName         string    `gorm:"not null"` // Display name supplied by the review server
	StoredPath       string    `gorm:"not null"`
	ExpectedChecksum string    `gorm:"not null"` // SHA-256 reported at upload time
	FileSize         int64     `gorm:"not null"`
	UploadTime       time.Time `gorm:"not null"`
	Verified         bool      `gorm:"default:false"`
}

// IntegrityCheck stores the result of verifying an archived copy
type IntegrityCheck struct {
	gorm.Model
	FileID           uint         `gorm:"not null"`
	ArchivedFile     ArchivedFile `gorm:"foreignKey:FileID"`
	ComputedChecksum string       `gorm:"not null"`
	Status           string       `gorm:"not null"` // "pending", "verified", "mismatch", "failed"
	StartTime        time.Time    `gorm:"not null"`
	EndTime          *time.Time
	Error            *string
}
