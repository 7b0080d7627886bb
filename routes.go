// Package main declares the main package of the application
package main

// Import necessary packages
import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// authRequired checks for a session cookie, a Bearer token or Basic Auth
func authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("user_id")
		authenticated := session.Get("authenticated")

		if userID != nil && authenticated != nil {
			c.Set("user_id", userID)
			c.Next()
			return
		}

		// Bearer token issued by the login endpoint
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(serverConfig.Security.SecretKey), nil
			})
			if err != nil || !token.Valid {
				RespondUnauthorized(c, "Invalid or expired token")
				c.Abort()
				return
			}
			id, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil {
				RespondUnauthorized(c, "Invalid or expired token")
				c.Abort()
				return
			}
			c.Set("user_id", uint(id))
			c.Next()
			return
		}

		// If no valid session or token, check for Basic Auth
		username, password, hasAuth := c.Request.BasicAuth()
		if hasAuth {
			// Sanitize input
			username = sanitizeInput(username)

			// Verify credentials
			var user User
			if err := db.Where("username = ?", username).First(&user).Error; err != nil {
				RespondUnauthorized(c, "Invalid credentials")
				c.Abort()
				return
			}

			if !user.CheckPassword(password) {
				RespondUnauthorized(c, "Invalid credentials")
				c.Abort()
				return
			}

			// Set user ID in context
			c.Set("user_id", user.ID)
			c.Next()
			return
		}

		// No valid authentication method found
		RespondUnauthorized(c, "Authentication required")
		c.Abort()
	}
}

// currentUser loads the authenticated user set by authRequired
func currentUser(c *gin.Context) (*User, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return nil, false
	}
	var id uint
	switch v := raw.(type) {
	case uint:
		id = v
	case int:
		id = uint(v)
	case float64:
		id = uint(v)
	default:
		return nil, false
	}
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, false
	}
	return &user, true
}

// healthCheck responds with server status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"service": "pdf-anno-system",
	})
}

// registerRoutes sets up all the API endpoints for the server
func registerRoutes(r *gin.Engine) {
	// Health check endpoint (no authentication required)
	r.GET("/", healthCheck) // Root path for basic connectivity check
	r.GET("/health", healthCheck)

	// Public routes (no authentication required)
	r.POST("/register_user", registerUser)
	r.POST("/api/auth/login", login)

	// Authenticated routes (require valid session, token or basic auth)
	api := r.Group("/api")
	api.Use(authRequired())
	{
		api.POST("/auth/logout", logout)

		api.GET("/files", listFiles)
		api.POST("/files", uploadFile)
		api.DELETE("/files/:id", deleteFile)
		api.GET("/files/:id/progress", fileProgress)
		api.GET("/files/:id/history", fileHistory)
		api.GET("/files/:id/pdf_info", filePDFInfo)

		api.GET("/annotations", latestAnnotation)
		api.POST("/annotations", createAnnotation)
		api.POST("/annotations/batch_verify", batchVerify)
		api.GET("/annotations/:id", getAnnotation)
		api.GET("/annotations/:id/history", annotationHistory)
		api.PUT("/annotations/:id/update_content", updateContent)
		api.PUT("/annotations/:id/edit_field", editField)
		api.PUT("/annotations/:id/verify", editField) // Draft save used by review UIs
		api.POST("/annotations/:id/verify_field", verifyField)
		api.POST("/annotations/:id/add_missing_field", addMissingField)
		api.POST("/annotations/:id/rollback", rollbackAnnotation)

		api.GET("/stats", poolStats)
	}
}

// sanitizeInput cleans the input string to prevent injection attacks
func sanitizeInput(input string) string {
	input = strings.TrimSpace(input) // Remove leading/trailing whitespace
	re := regexp.MustCompile(`[^\w@.-]`)
	return re.ReplaceAllString(input, "") // Remove unwanted characters
}

// registerUser handles the registration of a new reviewer account
func registerUser(c *gin.Context) {
	secretKey := c.PostForm("secret_key")
	expectedSecretKey := os.Getenv("SECRET_KEY") // Expected secret key from environment variables

	// Validate secret key
	if secretKey != expectedSecretKey {
		RespondForbidden(c, "Invalid secret key")
		return
	}

	username := c.PostForm("username")
	password := c.PostForm("password")

	// Validate input
	if username == "" || password == "" {
		RespondBadRequest(c, "Username and password are required")
		return
	}

	// Sanitize username only
	username = sanitizeInput(username)

	// Check if username already exists
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err == nil {
		RespondBadRequest(c, "Username already exists")
		return
	}

	// Create new user
	newUser := User{Username: username}
	if err := newUser.SetPassword(password); err != nil {
		RespondInternalError(c, "Failed to set password")
		return
	}

	// Save user to database
	if err := db.Create(&newUser).Error; err != nil {
		RespondInternalError(c, "Failed to register user")
		return
	}

	RespondSuccess(c, "User registered successfully")
}

// login handles user login and issues a signed token alongside the session
func login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	// Validate input
	if username == "" || password == "" {
		RespondBadRequest(c, "Username and password are required")
		return
	}

	// Sanitize username only
	username = sanitizeInput(username)

	// Fetch user from database
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		RespondBadRequest(c, "Invalid username or password")
		return
	}

	// Check password
	if !user.CheckPassword(password) {
		RespondBadRequest(c, "Invalid username or password")
		return
	}

	// Create session with maximum age and path settings
	session := sessions.Default(c)
	session.Options(sessions.Options{
		MaxAge:   serverConfig.Security.SessionMaxAge,
		Path:     "/",
		HttpOnly: true,
	})
	session.Set("user_id", user.ID)
	session.Set("authenticated", true) // Add explicit authentication flag
	if err := session.Save(); err != nil {
		RespondInternalError(c, "Failed to create session")
		return
	}

	// Issue a token for clients that cannot hold cookies
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(serverConfig.Security.TokenMaxAge) * time.Second)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(serverConfig.Security.SecretKey))
	if err != nil {
		RespondInternalError(c, "Failed to issue token")
		return
	}

	RespondSuccessWithData(c, "Logged in successfully", gin.H{
		"token":    signed,
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// logout handles user logout
func logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	RespondSuccess(c, "Logged out successfully")
}

// fileResponse shapes a File record for API responses
func fileResponse(f *File) gin.H {
	resp := gin.H{
		"id":         f.ID,
		"name":       f.Name,
		"file_type":  f.FileType,
		"status":     f.Status,
		"page_count": f.PageCount,
		"file_size":  f.FileSize,
		"checksum":   f.Checksum,
		"created_at": f.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": f.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if len(f.Metadata) > 0 {
		resp["metadata"] = json.RawMessage(f.Metadata)
	}
	return resp
}

// annotationResponse shapes an Annotation with canonically ordered content
func annotationResponse(a *Annotation) gin.H {
	resp := gin.H{
		"id":                  a.ID,
		"file_id":             a.FileID,
		"field_type":          a.FieldType,
		"field_path":          a.FieldPath,
		"version":             a.Version,
		"verification_status": a.VerificationStatus,
		"is_correct":          a.IsCorrect,
		"confidence_score":    a.ConfidenceScore,
		"comment":             a.Comment,
		"created_at":          a.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":          a.UpdatedAt.UTC().Format(time.RFC3339),
		"data":                json.RawMessage(a.OrderedContent(serverConfig.Annotation.FieldOrder)),
	}
	if len(a.Position) > 0 {
		resp["position"] = json.RawMessage(a.Position)
	}
	return resp
}

// historyResponse shapes a history entry for API responses
func historyResponse(h *AnnotationHistory) gin.H {
	modifiedBy := ""
	if h.ModifiedBy.ID != 0 {
		modifiedBy = h.ModifiedBy.Username
	}
	return gin.H{
		"id":                  h.ID,
		"annotation_id":       h.AnnotationID,
		"version":             h.Version,
		"field_path":          h.FieldPath,
		"change_type":         h.ChangeType,
		"change_description":  h.ChangeDescription,
		"verification_status": h.VerificationStatus,
		"modified_by":         modifiedBy,
		"modified_at":         h.ModifiedAt.UTC().Format(time.RFC3339),
	}
}

// listFiles returns all files visible to the reviewer, newest first
func listFiles(c *gin.Context) {
	var files []File
	query := db.Order("created_at DESC")
	if fileType := c.Query("file_type"); fileType != "" {
		query = query.Where("file_type = ?", fileType)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&files).Error; err != nil {
		RespondInternalError(c, "Failed to retrieve files")
		return
	}

	fileList := make([]gin.H, len(files))
	for i := range files {
		fileList[i] = fileResponse(&files[i])
	}

	c.JSON(http.StatusOK, gin.H{"files": fileList, "count": len(fileList)})
}

// uploadFile ingests a PDF plus its extracted JSON as a new review unit
func uploadFile(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	fileType := c.PostForm("file_type")
	if fileType == "" {
		fileType = FileTypeCV
	}

	if name == "" {
		RespondBadRequest(c, "File name is required")
		return
	}
	if err := validateFileType(fileType); err != nil {
		RespondEngineError(c, err)
		return
	}

	// Retrieve the PDF from the form data
	pdfFile, pdfHeader, err := c.Request.FormFile("pdf_file")
	if err != nil {
		RespondBadRequest(c, "PDF file is required")
		return
	}
	defer pdfFile.Close()

	if pdfHeader.Size > serverConfig.Uploads.MaxPDFBytes {
		RespondBadRequest(c, fmt.Sprintf("PDF exceeds maximum size of %d bytes", serverConfig.Uploads.MaxPDFBytes))
		return
	}

	pdfData, err := io.ReadAll(io.LimitReader(pdfFile, serverConfig.Uploads.MaxPDFBytes+1))
	if err != nil {
		RespondInternalError(c, "Failed to read PDF upload")
		return
	}
	if int64(len(pdfData)) > serverConfig.Uploads.MaxPDFBytes {
		RespondBadRequest(c, fmt.Sprintf("PDF exceeds maximum size of %d bytes", serverConfig.Uploads.MaxPDFBytes))
		return
	}

	info, err := inspectPDF(pdfData)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	// Retrieve the extracted JSON from the form data
	jsonFile, _, err := c.Request.FormFile("json_file")
	if err != nil {
		RespondBadRequest(c, "JSON file is required")
		return
	}
	defer jsonFile.Close()

	jsonData, err := io.ReadAll(jsonFile)
	if err != nil {
		RespondInternalError(c, "Failed to read JSON upload")
		return
	}

	if fileType == FileTypeCV {
		if err := validateCVJSON(jsonData); err != nil {
			RespondEngineError(c, err)
			return
		}
	} else if !json.Valid(jsonData) {
		RespondBadRequest(c, "Uploaded JSON is not valid")
		return
	}

	// Store blobs under generated names so originals cannot collide
	pdfName := uuid.NewString() + ".pdf"
	jsonName := uuid.NewString() + ".json"
	pdfPath := filepath.Join(serverConfig.Uploads.PDFDir, pdfName)
	jsonPath := filepath.Join(serverConfig.Uploads.JSONDir, jsonName)

	for _, dir := range []string{serverConfig.Uploads.PDFDir, serverConfig.Uploads.JSONDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			RespondInternalError(c, "Failed to create upload directory")
			return
		}
	}
	if err := os.WriteFile(pdfPath, pdfData, 0644); err != nil {
		RespondInternalError(c, "Failed to save PDF")
		return
	}
	if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
		os.Remove(pdfPath)
		RespondInternalError(c, "Failed to save JSON")
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	file := File{
		Name:         name,
		FileType:     fileType,
		Status:       FileStatusReady,
		PDFPath:      pdfPath,
		JSONPath:     jsonPath,
		UploadedByID: user.ID,
		PageCount:    info.PageCount,
		FileSize:     info.FileSize,
		Checksum:     info.Checksum,
	}

	annotation, err := engine.Ingest(&file, jsonData, user)
	if err != nil {
		os.Remove(pdfPath)
		os.Remove(jsonPath)
		RespondEngineError(c, err)
		return
	}

	// Ship an archive copy and warm the progress stats off the request path
	queueArchiveDelivery(file.ID)
	queueProgressRefresh(file.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message":    "File uploaded successfully",
		"file":       fileResponse(&file),
		"annotation": annotationResponse(annotation),
	})
}

// deleteFile soft-deletes a file, its annotations and the stored blobs
func deleteFile(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid file ID")
		return
	}

	pdfPath, jsonPath, err := engine.DeleteFile(uint(id))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	// Blob removal failures are logged, not fatal: the rows are already gone
	for _, path := range []string{pdfPath, jsonPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: Failed to delete stored blob %s: %v", path, err)
		}
	}

	RespondSuccess(c, "File deleted successfully")
}

// fileProgress reports verification progress for a file
func fileProgress(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid file ID")
		return
	}

	stats, err := engine.Progress(uint(id))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id":         uint(id),
		"total_fields":    stats.TotalFields,
		"verified_fields": stats.VerifiedFields,
		"progress":        stats.Progress,
	})
}

// fileHistory returns the full modification ledger of a file, newest first
func fileHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid file ID")
		return
	}

	entries, err := engine.ListHistory(uint(id))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	history := make([]gin.H, len(entries))
	for i := range entries {
		history[i] = historyResponse(&entries[i])
	}

	c.JSON(http.StatusOK, gin.H{"file_id": uint(id), "history": history, "count": len(history)})
}

// filePDFInfo returns checksum, page count and size of the stored PDF
func filePDFInfo(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid file ID")
		return
	}

	file, err := engine.GetFile(uint(id))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id":    file.ID,
		"name":       file.Name,
		"checksum":   file.Checksum,
		"page_count": file.PageCount,
		"file_size":  file.FileSize,
		"pdf_path":   file.PDFPath,
	})
}

// latestAnnotation returns the newest annotation for a file
func latestAnnotation(c *gin.Context) {
	fileID, err := strconv.ParseUint(c.Query("file_id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "file_id query parameter is required")
		return
	}

	annotation, err := engine.LatestForFile(uint(fileID))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, annotationResponse(annotation))
}

// getAnnotation returns a single annotation by ID
func getAnnotation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	annotation, err := engine.Get(uint(id))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, annotationResponse(annotation))
}

// createAnnotationPayload is the request body for creating annotations
type createAnnotationPayload struct {
	FileID             uint            `json:"file_id" binding:"required"`
	FieldType          string          `json:"field_type"`
	FieldPath          string          `json:"field_path"`
	PDFContent         string          `json:"pdf_content"`
	Content            json.RawMessage `json:"content" binding:"required"`
	Position           json.RawMessage `json:"position"`
	VerificationStatus string          `json:"verification_status"`
	IsCorrect          bool            `json:"is_correct"`
	ConfidenceScore    float64         `json:"confidence_score"`
	Comment            string          `json:"comment"`
}

// createAnnotation records a new annotation with its initial history entry
func createAnnotation(c *gin.Context) {
	var payload createAnnotationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	annotation, err := engine.Create(CreateAnnotationParams{
		FileID:             payload.FileID,
		FieldType:          payload.FieldType,
		FieldPath:          payload.FieldPath,
		PDFContent:         payload.PDFContent,
		Content:            payload.Content,
		Position:           payload.Position,
		VerificationStatus: payload.VerificationStatus,
		IsCorrect:          payload.IsCorrect,
		ConfidenceScore:    payload.ConfidenceScore,
		Comment:            payload.Comment,
	}, user)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, annotationResponse(annotation))
}

// updateContent replaces the JSON content, bumping the version
func updateContent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	var payload struct {
		Content json.RawMessage `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	annotation, err := engine.UpdateContent(uint(id), payload.Content, user)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, annotationResponse(annotation))
}

// editField saves draft content without a version bump or history entry
func editField(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	var payload struct {
		Content json.RawMessage `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	annotation, stats, err := engine.EditField(uint(id), payload.Content)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	resp := annotationResponse(annotation)
	resp["progress"] = gin.H{
		"total_fields":    stats.TotalFields,
		"verified_fields": stats.VerifiedFields,
		"progress":        stats.Progress,
	}
	c.JSON(http.StatusOK, resp)
}

// verifyField flags a single field container as verified or unverified
func verifyField(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	var payload struct {
		FieldPath string `json:"field_path" binding:"required"`
		Verified  *bool  `json:"verified" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	annotation, err := engine.VerifyField(uint(id), payload.FieldPath, *payload.Verified, user)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, annotationResponse(annotation))
}

// addMissingField records source evidence for a field absent from the JSON
func addMissingField(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	var payload struct {
		FieldPath  string          `json:"field_path" binding:"required"`
		PDFContent string          `json:"pdf_content" binding:"required"`
		Position   json.RawMessage `json:"position"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	annotation, err := engine.AddMissingField(uint(id), payload.FieldPath, payload.PDFContent, payload.Position, user)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, annotationResponse(annotation))
}

// rollbackAnnotation restores content from an earlier version as a new version
func rollbackAnnotation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	var payload struct {
		Version int `json:"version" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	annotation, err := engine.Rollback(uint(id), payload.Version, user)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, annotationResponse(annotation))
}

// annotationHistory returns the version ledger of one annotation, newest first
func annotationHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid annotation ID")
		return
	}

	if _, err := engine.Get(uint(id)); err != nil {
		RespondEngineError(c, err)
		return
	}

	entries, err := engine.ListHistoryForAnnotation(uint(id))
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	history := make([]gin.H, len(entries))
	for i := range entries {
		history[i] = historyResponse(&entries[i])
	}

	c.JSON(http.StatusOK, gin.H{"annotation_id": uint(id), "history": history, "count": len(history)})
}

// batchVerifyPayload carries multiple annotations to record in one request
type batchVerifyPayload struct {
	FileID      uint                      `json:"file_id" binding:"required"`
	Annotations []createAnnotationPayload `json:"annotations" binding:"required"`
}

// batchVerify records several annotations for one file. Each record goes
// through the same path as single creation, so each gets its own initial
// history entry. Processing stops at the first failure.
func batchVerify(c *gin.Context) {
	var payload batchVerifyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	if len(payload.Annotations) == 0 {
		RespondBadRequest(c, "At least one annotation is required")
		return
	}

	user, ok := currentUser(c)
	if !ok {
		RespondUnauthorized(c, "Authentication required")
		return
	}

	if _, err := engine.GetFile(payload.FileID); err != nil {
		RespondEngineError(c, err)
		return
	}

	created := make([]gin.H, 0, len(payload.Annotations))
	for _, item := range payload.Annotations {
		// Bulk review marks each field by its correctness verdict unless
		// the client sent an explicit status
		status := item.VerificationStatus
		if status == "" {
			if item.IsCorrect {
				status = VerificationVerified
			} else {
				status = VerificationIncorrect
			}
		}
		annotation, err := engine.Create(CreateAnnotationParams{
			FileID:             payload.FileID,
			FieldType:          item.FieldType,
			FieldPath:          item.FieldPath,
			PDFContent:         item.PDFContent,
			Content:            item.Content,
			Position:           item.Position,
			VerificationStatus: status,
			IsCorrect:          item.IsCorrect,
			ConfidenceScore:    item.ConfidenceScore,
			Comment:            item.Comment,
		}, user)
		if err != nil {
			c.JSON(http.StatusMultiStatus, gin.H{
				"message":   "Batch partially processed",
				"created":   created,
				"failed_at": len(created),
				"error":     err.Error(),
			})
			return
		}
		created = append(created, annotationResponse(annotation))
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Annotations recorded successfully",
		"annotations": created,
		"count":       len(created),
	})
}

// poolStats exposes background worker statistics
func poolStats(c *gin.Context) {
	stats := gin.H{"archive_enabled": serverConfig.Archive.Enabled}
	if workerPool != nil {
		stats["worker_pool"] = workerPool.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}
