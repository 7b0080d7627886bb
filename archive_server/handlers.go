package main

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// healthCheck responds with server status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"service": "pdf-anno-archive",
	})
}

// handleFileUpload handles incoming archive copies from the review server
func handleFileUpload(c *gin.Context) {
	// Get file from form data
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file received"})
		return
	}
	defer file.Close()

	// Get metadata from form
	name := c.PostForm("name")
	checksum := c.PostForm("checksum")

	if name == "" {
		name = header.Filename
	}
	if checksum == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing checksum"})
		return
	}

	// Store under a generated name so repeated deliveries cannot collide
	storedPath := filepath.Join(config.StoragePath, uuid.NewString()+".pdf")

	// Create the file
	out, err := os.Create(storedPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create file"})
		return
	}
	defer out.Close()

	// Copy the file data
	if _, err := io.Copy(out, file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	// Get file info for size
	fileInfo, err := out.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get file info"})
		return
	}

	// Create database record
	archived := ArchivedFile{
		FileName:         name,
		StoredPath:       storedPath,
		ExpectedChecksum: checksum,
		FileSize:         fileInfo.Size(),
		UploadTime:       time.Now(),
	}

	if err := db.Create(&archived).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file metadata"})
		return
	}

	// Verify the copy in a goroutine
	go verifyArchivedFile(archived)

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"file_id": archived.ID,
	})
}

// getIntegrityCheck returns the integrity result for a specific file
func getIntegrityCheck(c *gin.Context) {
	fileID := c.Param("file_id")

	var check IntegrityCheck
	if err := db.Where("file_id = ?", fileID).Order("id DESC").First(&check).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integrity check not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            check.Status,
		"computed_checksum": check.ComputedChecksum,
		"start_time":        check.StartTime,
		"end_time":          check.EndTime,
		"error":             check.Error,
	})
}

// listFiles returns a list of all archived files and their verification status
func listFiles(c *gin.Context) {
	var files []ArchivedFile
	if err := db.Find(&files).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

// verifyArchivedFile recomputes the checksum of a stored copy and records
// whether it matches what the review server reported
func verifyArchivedFile(file ArchivedFile) {
	check := IntegrityCheck{
		FileID:    file.ID,
		Status:    "pending",
		StartTime: time.Now(),
	}

	// Save initial check record
	if err := db.Create(&check).Error; err != nil {
		log.Printf("Failed to create integrity check record: %v", err)
		return
	}

	computed, err := checksumOf(file.StoredPath)
	now := time.Now()
	check.EndTime = &now

	if err != nil {
		errStr := err.Error()
		check.Status = "failed"
		check.Error = &errStr
	} else {
		check.ComputedChecksum = computed
		if computed == file.ExpectedChecksum {
			check.Status = "verified"
		} else {
			check.Status = "mismatch"
			log.Printf("Checksum mismatch for %s: expected %s, got %s", file.FileName, file.ExpectedChecksum, computed)
		}
	}

	// Update check record
	if err := db.Save(&check).Error; err != nil {
		log.Printf("Failed to update integrity check record: %v", err)
		return
	}

	// Update file's verified status
	file.Verified = check.Status == "verified"
	if err := db.Save(&file).Error; err != nil {
		log.Printf("Failed to update file status: %v", err)
	}
}

// checksumOf returns the SHA-256 hex digest of a stored file
func checksumOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
