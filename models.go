// models.go
package main

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a registered reviewer with a username and password hash.
type User struct {
	gorm.Model
	Username     string `gorm:"unique;not null"` // Unique username
	PasswordHash string `gorm:"not null"`        // Hashed password
}

// SetPassword hashes the given password and stores it in PasswordHash.
func (user *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the given password with the stored PasswordHash.
func (user *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	return err == nil
}

// File is a source document under review: one uploaded PDF paired with the
// JSON extracted from it. Soft-deleted only; DeletedAt doubles as the
// deletion flag and timestamp, and gorm excludes soft-deleted rows by default.
type File struct {
	gorm.Model
	Name         string         `gorm:"not null"`                        // Display name
	FileType     string         `gorm:"not null;default:other"`          // cv, paper, report or other
	Status       string         `gorm:"not null;default:pending"`        // See FileStatus* constants
	PDFPath      string         `gorm:"not null"`                        // Stored PDF location on disk
	JSONPath     string         `gorm:"not null"`                        // Stored JSON location on disk
	UploadedByID uint           `gorm:"not null;index"`                  // Reviewer who uploaded the file
	UploadedBy   User           `gorm:"foreignKey:UploadedByID"`
	PageCount    int            `gorm:"not null;default:0"`              // Pages in the PDF
	FileSize     int64          `gorm:"not null;default:0"`              // PDF size in bytes
	Checksum     string         `gorm:"size:64"`                         // SHA-256 of the PDF content
	Metadata     datatypes.JSON // Free-form metadata, carries progress stats
	Annotations  []Annotation   `gorm:"foreignKey:FileID;references:ID"` // Owned annotation records
}

// SoftDelete marks the file deleted and cascades the soft delete to every
// annotation it owns. Must run inside the caller's transaction so the cascade
// is atomic. History rows are never touched.
func (f *File) SoftDelete(tx *gorm.DB) error {
	if err := tx.Where("file_id = ?", f.ID).Delete(&Annotation{}).Error; err != nil {
		return err
	}
	return tx.Delete(f).Error
}

// Annotation is the current, mutable structured-content state for a file.
// The dominant usage is a single root record holding the whole parsed JSON;
// batch verification additionally creates per-field records.
type Annotation struct {
	gorm.Model
	FileID             uint           `gorm:"not null;index"`           // Owning file
	File               File           `gorm:"foreignKey:FileID"`
	FieldType          string         `gorm:"size:50;not null"`         // Section classification, "root" for whole-document records
	FieldPath          string         `gorm:"size:255;not null"`        // Dotted path, e.g. "personal_info.name"
	PDFContent         string         // Literal text observed in the PDF
	Content            datatypes.JSON `gorm:"not null"`                 // Current JSON value
	Position           datatypes.JSON // {page, x1, y1, x2, y2} in the PDF
	VerificationStatus string         `gorm:"not null;default:pending"` // See Verification* constants
	IsCorrect          bool           `gorm:"not null;default:false"`
	ConfidenceScore    float64        `gorm:"not null;default:0"`       // Extractor confidence in [0,1]
	Comment            string         // Reviewer free text
	AnnotatorID        uint           `gorm:"not null;index"`           // Acting reviewer
	Annotator          User           `gorm:"foreignKey:AnnotatorID"`
	Version            int            `gorm:"not null;default:1"`       // Bumped by exactly 1 on every durable mutation
}

// OrderedContent returns the JSON content with its top-level keys in the
// configured canonical order. Non-object content passes through unchanged.
func (a *Annotation) OrderedContent(order []string) datatypes.JSON {
	return datatypes.JSON(orderContent([]byte(a.Content), order))
}

// AnnotationHistory is an immutable audit record of one state transition of
// an Annotation. Append-only: rows are never updated or deleted, so the
// struct deliberately has no DeletedAt and no UpdatedAt.
type AnnotationHistory struct {
	ID                 uint           `gorm:"primaryKey"`
	AnnotationID       uint           `gorm:"not null;uniqueIndex:idx_history_version,priority:1"` // Owning annotation record
	Annotation         Annotation     `gorm:"foreignKey:AnnotationID"`
	FieldPath          string         `gorm:"size:255;not null"` // Path affected by the change
	OldValue           datatypes.JSON // Value before the change, null on create/verify
	NewValue           datatypes.JSON `gorm:"not null"`          // Value after the change
	PDFContent         string         // Source text at the time of change
	Position           datatypes.JSON // Source location at the time of change
	VerificationStatus string         `gorm:"not null"`          // Record status at the time of change
	ChangeType         string         `gorm:"size:20;not null"`  // See ChangeType* constants
	ChangeDescription  string         // Human-readable summary
	ModifiedByID       uint           `gorm:"not null"`          // Acting reviewer
	ModifiedBy         User           `gorm:"foreignKey:ModifiedByID"`
	ModifiedAt         time.Time      `gorm:"autoCreateTime;index"`
	Version            int            `gorm:"not null;uniqueIndex:idx_history_version,priority:2"` // Version the record reached through this change
}

// ArchiveDelivery tracks shipment of a stored PDF to the archive server.
// One row per queued delivery; the retry sweep re-submits rows that are still
// pending and have attempts left.
type ArchiveDelivery struct {
	gorm.Model
	FileID     uint   `gorm:"not null;index"`
	File       File   `gorm:"foreignKey:FileID"`
	Status     string `gorm:"not null;default:'pending'"` // See Delivery* constants
	RetryCount int    `gorm:"not null;default:0"`
}
