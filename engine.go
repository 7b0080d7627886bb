// engine.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnnotationEngine applies every state transition of annotation records.
// Durable mutations (create, update, verify, rollback) bump the version and
// append exactly one history row inside a single transaction, guarded by an
// optimistic version check so concurrent writers on the same record cannot
// produce gaps or duplicates in the version sequence. EditField and
// AddMissingField are the draft tier: they mutate live state without a
// version bump or history row.
type AnnotationEngine struct {
	db  *gorm.DB
	cfg *ServerConfig
}

// NewAnnotationEngine creates an engine bound to a database and config.
func NewAnnotationEngine(db *gorm.DB, cfg *ServerConfig) *AnnotationEngine {
	return &AnnotationEngine{db: db, cfg: cfg}
}

// CreateAnnotationParams carries the inputs of an explicit annotation create.
type CreateAnnotationParams struct {
	FileID             uint
	FieldType          string
	FieldPath          string
	PDFContent         string
	Content            json.RawMessage
	Position           json.RawMessage
	VerificationStatus string // Defaults to pending
	IsCorrect          bool
	ConfidenceScore    float64
	Comment            string
}

// Get returns a live annotation by id.
func (e *AnnotationEngine) Get(id uint) (*Annotation, error) {
	var annotation Annotation
	if err := e.db.First(&annotation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("annotation %d not found", id)
		}
		return nil, StorageError(err, "failed to load annotation %d", id)
	}
	return &annotation, nil
}

// LatestForFile returns the newest live annotation version for a file.
func (e *AnnotationEngine) LatestForFile(fileID uint) (*Annotation, error) {
	var annotation Annotation
	err := e.db.Where("file_id = ?", fileID).Order("version DESC").First(&annotation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("no annotation found for file %d", fileID)
		}
		return nil, StorageError(err, "failed to load annotation for file %d", fileID)
	}
	return &annotation, nil
}

// GetFile returns a live file by id.
func (e *AnnotationEngine) GetFile(id uint) (*File, error) {
	var file File
	if err := e.db.First(&file, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("file %d not found", id)
		}
		return nil, StorageError(err, "failed to load file %d", id)
	}
	return &file, nil
}

// Ingest persists a new file together with its root annotation (holding the
// entire parsed JSON) and the initial create history row, all in one
// transaction.
func (e *AnnotationEngine) Ingest(file *File, content json.RawMessage, user *User) (*Annotation, error) {
	if len(content) == 0 || !json.Valid(content) {
		return nil, ValidationError("json content is required")
	}

	canonical := orderContent(content, e.cfg.Annotation.FieldOrder)
	annotation := &Annotation{
		FieldType:          FieldTypeRoot,
		FieldPath:          FieldTypeRoot,
		Content:            datatypes.JSON(canonical),
		Position:           datatypes.JSON([]byte(`{}`)),
		VerificationStatus: VerificationPending,
		AnnotatorID:        user.ID,
		Version:            1,
	}

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return StorageError(err, "failed to save file")
		}
		annotation.FileID = file.ID
		if err := tx.Create(annotation).Error; err != nil {
			return StorageError(err, "failed to save root annotation")
		}
		history := &AnnotationHistory{
			AnnotationID:       annotation.ID,
			FieldPath:          FieldTypeRoot,
			OldValue:           nil,
			NewValue:           datatypes.JSON(canonical),
			Position:           datatypes.JSON([]byte(`{}`)),
			VerificationStatus: VerificationPending,
			ChangeType:         ChangeTypeCreate,
			ChangeDescription:  "created initial JSON",
			ModifiedByID:       user.ID,
			Version:            1,
		}
		if err := tx.Create(history).Error; err != nil {
			return StorageError(err, "failed to save initial history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

// Create makes a new annotation record at version 1 with its create history
// row. Used for explicit single creates and batch verification.
func (e *AnnotationEngine) Create(params CreateAnnotationParams, user *User) (*Annotation, error) {
	if len(params.Content) == 0 || !json.Valid(params.Content) {
		return nil, ValidationError("json_content is required")
	}
	if params.FieldPath == "" {
		return nil, ValidationError("field_path is required")
	}

	if _, err := e.GetFile(params.FileID); err != nil {
		return nil, err
	}

	status := params.VerificationStatus
	if status == "" {
		status = VerificationPending
	}
	fieldType := params.FieldType
	if fieldType == "" {
		fieldType = fieldTypeForPath(params.FieldPath)
	}
	position := params.Position
	if len(position) == 0 {
		position = json.RawMessage(`{}`)
	}

	canonical := orderContent(params.Content, e.cfg.Annotation.FieldOrder)
	annotation := &Annotation{
		FileID:             params.FileID,
		FieldType:          fieldType,
		FieldPath:          params.FieldPath,
		PDFContent:         params.PDFContent,
		Content:            datatypes.JSON(canonical),
		Position:           datatypes.JSON(position),
		VerificationStatus: status,
		IsCorrect:          params.IsCorrect,
		ConfidenceScore:    params.ConfidenceScore,
		Comment:            params.Comment,
		AnnotatorID:        user.ID,
		Version:            1,
	}

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(annotation).Error; err != nil {
			return StorageError(err, "failed to save annotation")
		}
		history := &AnnotationHistory{
			AnnotationID:       annotation.ID,
			FieldPath:          annotation.FieldPath,
			OldValue:           nil,
			NewValue:           datatypes.JSON(canonical),
			PDFContent:         annotation.PDFContent,
			Position:           annotation.Position,
			VerificationStatus: annotation.VerificationStatus,
			ChangeType:         ChangeTypeCreate,
			ChangeDescription:  "created initial annotation",
			ModifiedByID:       user.ID,
			Version:            1,
		}
		if err := tx.Create(history).Error; err != nil {
			return StorageError(err, "failed to save initial history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

// UpdateContent replaces the record's entire JSON content as a new named
// version: one history row, version bumped by exactly one.
func (e *AnnotationEngine) UpdateContent(id uint, newContent json.RawMessage, user *User) (*Annotation, error) {
	if len(newContent) == 0 || !json.Valid(newContent) {
		return nil, ValidationError("json_content is required")
	}

	annotation, err := e.Get(id)
	if err != nil {
		return nil, err
	}

	canonical := orderContent(newContent, e.cfg.Annotation.FieldOrder)
	nextVersion := annotation.Version + 1

	err = e.db.Transaction(func(tx *gorm.DB) error {
		// Guarded update first so a stale writer fails with a conflict
		// before touching the history table's unique index
		if err := e.bumpVersion(tx, annotation, map[string]interface{}{
			"content": datatypes.JSON(canonical),
			"version": nextVersion,
		}); err != nil {
			return err
		}
		history := &AnnotationHistory{
			AnnotationID:       annotation.ID,
			FieldPath:          FieldTypeRoot,
			OldValue:           annotation.Content,
			NewValue:           datatypes.JSON(canonical),
			PDFContent:         annotation.PDFContent,
			Position:           annotation.Position,
			VerificationStatus: VerificationPending,
			ChangeType:         ChangeTypeUpdate,
			ChangeDescription:  fmt.Sprintf("updated JSON content to version %d", nextVersion),
			ModifiedByID:       user.ID,
			Version:            nextVersion,
		}
		if err := tx.Create(history).Error; err != nil {
			return StorageError(err, "failed to save history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.Get(id)
}

// EditField replaces the record's content in place without creating a new
// version or history row. Returns the updated record and its recomputed
// progress. The draft tier beneath UpdateContent.
func (e *AnnotationEngine) EditField(id uint, newContent json.RawMessage) (*Annotation, ProgressStats, error) {
	if len(newContent) == 0 || !json.Valid(newContent) {
		return nil, ProgressStats{}, ValidationError("json_content is required")
	}

	annotation, err := e.Get(id)
	if err != nil {
		return nil, ProgressStats{}, err
	}

	canonical := orderContent(newContent, e.cfg.Annotation.FieldOrder)
	res := e.db.Model(annotation).Update("content", datatypes.JSON(canonical))
	if res.Error != nil {
		return nil, ProgressStats{}, StorageError(res.Error, "failed to edit annotation %d", id)
	}

	stats, err := e.refreshFileProgress(annotation.FileID, canonical)
	if err != nil {
		return nil, ProgressStats{}, err
	}
	updated, err := e.Get(id)
	if err != nil {
		return nil, ProgressStats{}, err
	}
	return updated, stats, nil
}

// VerifyField marks one nested field, addressed by dotted path, as verified
// or unverified. The path must fully resolve or the operation fails with a
// not-found error and no mutation. On success the version bumps and a verify
// history row is appended.
func (e *AnnotationEngine) VerifyField(id uint, path string, verified bool, user *User) (*Annotation, error) {
	if path == "" {
		return nil, ValidationError("field_path is required")
	}

	annotation, err := e.Get(id)
	if err != nil {
		return nil, err
	}

	updated, err := setFieldVerified([]byte(annotation.Content), splitFieldPath(path), verified)
	if err != nil {
		if errors.Is(err, errPathNotFound) {
			return nil, NotFoundError("field %s does not exist", path)
		}
		return nil, StorageError(err, "failed to resolve field %s", path)
	}

	canonical := orderContent(updated, e.cfg.Annotation.FieldOrder)
	nextVersion := annotation.Version + 1
	status := VerificationPending
	action := "unverified"
	if verified {
		status = VerificationVerified
		action = "verified"
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.bumpVersion(tx, annotation, map[string]interface{}{
			"content":             datatypes.JSON(canonical),
			"version":             nextVersion,
			"verification_status": status,
		}); err != nil {
			return err
		}
		history := &AnnotationHistory{
			AnnotationID:       annotation.ID,
			FieldPath:          path,
			OldValue:           nil,
			NewValue:           datatypes.JSON(fmt.Sprintf(`{"verified":%t}`, verified)),
			PDFContent:         annotation.PDFContent,
			Position:           annotation.Position,
			VerificationStatus: status,
			ChangeType:         ChangeTypeVerify,
			ChangeDescription:  fmt.Sprintf("%s field %s", action, path),
			ModifiedByID:       user.ID,
			Version:            nextVersion,
		}
		if err := tx.Create(history).Error; err != nil {
			return StorageError(err, "failed to save history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.Get(id)
}

// AddMissingField records that the reviewer found content in the PDF that the
// JSON does not contain. Mutation-only: the live record's status, source text
// and location are overwritten with no version bump and no history row.
func (e *AnnotationEngine) AddMissingField(id uint, path, pdfContent string, position json.RawMessage, user *User) (*Annotation, error) {
	if path == "" {
		return nil, ValidationError("field_path is required")
	}

	annotation, err := e.Get(id)
	if err != nil {
		return nil, err
	}

	if len(position) == 0 {
		position = json.RawMessage(`{}`)
	}
	res := e.db.Model(annotation).Updates(map[string]interface{}{
		"verification_status": VerificationMissing,
		"pdf_content":         pdfContent,
		"position":            datatypes.JSON(position),
		"comment":             fmt.Sprintf("missing field in JSON: %s", path),
	})
	if res.Error != nil {
		return nil, StorageError(res.Error, "failed to record missing field on annotation %d", id)
	}
	return e.Get(id)
}

// Rollback restores the content a past version produced. Forward-only: the
// restored content is appended as a new version with a rollback history row;
// the old history is never reused or deleted.
func (e *AnnotationEngine) Rollback(id uint, targetVersion int, user *User) (*Annotation, error) {
	if targetVersion <= 0 {
		return nil, ValidationError("target version is required")
	}

	annotation, err := e.Get(id)
	if err != nil {
		return nil, err
	}

	var target AnnotationHistory
	err = e.db.Where("annotation_id = ? AND version = ?", annotation.ID, targetVersion).First(&target).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("version %d does not exist for annotation %d", targetVersion, annotation.ID)
		}
		return nil, StorageError(err, "failed to load history for annotation %d", annotation.ID)
	}

	restored := orderContent([]byte(target.NewValue), e.cfg.Annotation.FieldOrder)
	nextVersion := annotation.Version + 1

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.bumpVersion(tx, annotation, map[string]interface{}{
			"content": datatypes.JSON(restored),
			"version": nextVersion,
		}); err != nil {
			return err
		}
		history := &AnnotationHistory{
			AnnotationID:       annotation.ID,
			FieldPath:          FieldTypeRoot,
			OldValue:           annotation.Content,
			NewValue:           datatypes.JSON(restored),
			PDFContent:         annotation.PDFContent,
			Position:           annotation.Position,
			VerificationStatus: annotation.VerificationStatus,
			ChangeType:         ChangeTypeRollback,
			ChangeDescription:  fmt.Sprintf("rolled back to version %d", targetVersion),
			ModifiedByID:       user.ID,
			Version:            nextVersion,
		}
		if err := tx.Create(history).Error; err != nil {
			return StorageError(err, "failed to save history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.Get(id)
}

// Progress computes verification progress over the file's latest annotation
// and persists the derived stats into the file's metadata.
func (e *AnnotationEngine) Progress(fileID uint) (ProgressStats, error) {
	if _, err := e.GetFile(fileID); err != nil {
		return ProgressStats{}, err
	}
	annotation, err := e.LatestForFile(fileID)
	if err != nil {
		return ProgressStats{}, err
	}
	return e.refreshFileProgress(fileID, []byte(annotation.Content))
}

// ListHistory returns the audit trail across all annotations of a file,
// newest modification first. Soft-deleted annotations stay in the trail.
func (e *AnnotationEngine) ListHistory(fileID uint) ([]AnnotationHistory, error) {
	if _, err := e.GetFile(fileID); err != nil {
		return nil, err
	}

	var annotationIDs []uint
	err := e.db.Unscoped().Model(&Annotation{}).
		Where("file_id = ?", fileID).
		Pluck("id", &annotationIDs).Error
	if err != nil {
		return nil, StorageError(err, "failed to list annotations for file %d", fileID)
	}
	if len(annotationIDs) == 0 {
		return []AnnotationHistory{}, nil
	}

	var history []AnnotationHistory
	err = e.db.Preload("ModifiedBy").
		Where("annotation_id IN ?", annotationIDs).
		Order("modified_at DESC").
		Find(&history).Error
	if err != nil {
		return nil, StorageError(err, "failed to list history for file %d", fileID)
	}
	return history, nil
}

// ListHistoryForAnnotation returns one record's history ordered by version
// descending.
func (e *AnnotationEngine) ListHistoryForAnnotation(annotationID uint) ([]AnnotationHistory, error) {
	var history []AnnotationHistory
	err := e.db.Where("annotation_id = ?", annotationID).
		Order("version DESC").
		Find(&history).Error
	if err != nil {
		return nil, StorageError(err, "failed to list history for annotation %d", annotationID)
	}
	return history, nil
}

// DeleteFile soft-deletes a file and cascades to its annotations. History
// rows are kept for audit continuity. Returns the blob paths so the caller
// can remove them from disk.
func (e *AnnotationEngine) DeleteFile(fileID uint) (pdfPath, jsonPath string, err error) {
	file, err := e.GetFile(fileID)
	if err != nil {
		return "", "", err
	}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := file.SoftDelete(tx); err != nil {
			return StorageError(err, "failed to delete file %d", fileID)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return file.PDFPath, file.JSONPath, nil
}

// bumpVersion applies a durable mutation guarded by the version the caller
// read. Zero rows affected means another writer got there first; the
// surrounding transaction rolls back before any history row is written, so
// the loser observes a conflict rather than a unique-index failure.
func (e *AnnotationEngine) bumpVersion(tx *gorm.DB, annotation *Annotation, updates map[string]interface{}) error {
	res := tx.Model(&Annotation{}).
		Where("id = ? AND version = ?", annotation.ID, annotation.Version).
		Updates(updates)
	if res.Error != nil {
		return StorageError(res.Error, "failed to update annotation %d", annotation.ID)
	}
	if res.RowsAffected == 0 {
		return ConflictError("annotation %d was modified concurrently, retry with fresh state", annotation.ID)
	}
	return nil
}

// refreshFileProgress recomputes field counts for the given content and
// merges them into the owning file's metadata.
func (e *AnnotationEngine) refreshFileProgress(fileID uint, content []byte) (ProgressStats, error) {
	stats, err := computeProgress(content, e.cfg.Annotation.MarkerSuffix)
	if err != nil {
		return ProgressStats{}, StorageError(err, "failed to compute progress for file %d", fileID)
	}

	file, err := e.GetFile(fileID)
	if err != nil {
		return ProgressStats{}, err
	}

	metadata := map[string]interface{}{}
	if len(file.Metadata) > 0 {
		// Best effort: unreadable metadata is replaced rather than fatal
		json.Unmarshal([]byte(file.Metadata), &metadata)
	}
	metadata["total_fields"] = stats.TotalFields
	metadata["verified_fields"] = stats.VerifiedFields
	metadata["progress"] = stats.Progress

	raw, err := json.Marshal(metadata)
	if err != nil {
		return ProgressStats{}, StorageError(err, "failed to encode metadata for file %d", fileID)
	}
	res := e.db.Model(file).Update("metadata", datatypes.JSON(raw))
	if res.Error != nil {
		return ProgressStats{}, StorageError(res.Error, "failed to save metadata for file %d", fileID)
	}
	return stats, nil
}

// fieldTypeForPath classifies an annotation by the first segment of its path.
func fieldTypeForPath(fieldPath string) string {
	known := []string{
		"personal_info", "education", "work_experience", "skills",
		"projects", "certificates", "languages",
	}
	for _, prefix := range known {
		if strings.HasPrefix(fieldPath, prefix) {
			return prefix
		}
	}
	return "others"
}
