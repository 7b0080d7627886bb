package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Integration test suite
func TestIntegrationSuite(t *testing.T) {
	// Setup test environment
	gin.SetMode(gin.TestMode)

	secret := strings.Repeat("s", 32)
	t.Setenv("SECRET_KEY", secret)

	// Create test database
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate the schema
	testDB.AutoMigrate(&User{}, &File{}, &Annotation{}, &AnnotationHistory{}, &ArchiveDelivery{})

	testConfig := &ServerConfig{
		Server: ServerSettings{
			Interface: ":8080",
		},
		Security: SecuritySettings{
			SecretKey:         secret,
			RateLimitRequests: 1000,
			RateLimitWindow:   60,
			SessionMaxAge:     3600,
			TokenMaxAge:       3600,
			EnableHTTPS:       false,
			AllowedOrigins:    []string{"http://localhost:3000"},
		},
		Database: DatabaseSettings{
			Path: ":memory:",
		},
		Uploads: UploadSettings{
			PDFDir:      t.TempDir(),
			JSONDir:     t.TempDir(),
			MaxPDFBytes: 50 << 20,
		},
		Annotation: AnnotationSettings{
			MarkerSuffix: DefaultMarkerSuffix,
			FieldOrder:   defaultFieldOrder,
		},
	}

	// Replace globals with test instances
	originalDB, originalConfig, originalEngine, originalPool := db, serverConfig, engine, workerPool
	db = testDB
	serverConfig = testConfig
	engine = NewAnnotationEngine(testDB, testConfig)
	workerPool = nil
	defer func() {
		db, serverConfig, engine, workerPool = originalDB, originalConfig, originalEngine, originalPool
	}()

	// Create test router with middleware
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(testConfig.Security.AllowedOrigins))
	router.Use(RateLimitMiddleware(testConfig.Security.RateLimitRequests, time.Duration(testConfig.Security.RateLimitWindow)*time.Second))

	// Setup sessions
	store := cookie.NewStore([]byte(testConfig.Security.SecretKey))
	store.Options(sessions.Options{
		MaxAge:   testConfig.Security.SessionMaxAge,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Disable for testing
	})
	router.Use(sessions.Sessions("testsession", store))

	// Register routes
	registerRoutes(router)

	// Run integration tests
	t.Run("HealthCheck", func(t *testing.T) {
		testHealthCheck(t, router)
	})
	t.Run("AuthenticationFlow", func(t *testing.T) {
		testAuthenticationFlow(t, router, secret)
	})
	t.Run("AnnotationLifecycle", func(t *testing.T) {
		testAnnotationLifecycle(t, router)
	})
	t.Run("BatchVerify", func(t *testing.T) {
		testBatchVerify(t, router)
	})
	t.Run("UploadValidation", func(t *testing.T) {
		testUploadValidation(t, router)
	})
	t.Run("ErrorFormat", func(t *testing.T) {
		testErrorFormat(t, router)
	})
}

func testHealthCheck(t *testing.T, router *gin.Engine) {
	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", resp["status"])
	}
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func testAuthenticationFlow(t *testing.T, router *gin.Engine, secret string) {
	// Registration with a bad secret key is rejected
	w := postForm(router, "/register_user", url.Values{
		"secret_key": {"wrong"},
		"username":   {"alice"},
		"password":   {"password123"},
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for bad secret, got %d", w.Code)
	}

	// Registration with the correct secret succeeds
	w = postForm(router, "/register_user", url.Values{
		"secret_key": {secret},
		"username":   {"alice"},
		"password":   {"password123"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for registration, got %d: %s", w.Code, w.Body.String())
	}

	// Duplicate username is rejected
	w = postForm(router, "/register_user", url.Values{
		"secret_key": {secret},
		"username":   {"alice"},
		"password":   {"password123"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for duplicate username, got %d", w.Code)
	}

	// Login with bad credentials fails
	w = postForm(router, "/api/auth/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad login, got %d", w.Code)
	}

	// Login succeeds and yields a token
	w = postForm(router, "/api/auth/login", url.Values{
		"username": {"alice"},
		"password": {"password123"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for login, got %d: %s", w.Code, w.Body.String())
	}

	var loginResp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	if loginResp.Data.Token == "" {
		t.Fatal("Expected a token in the login response")
	}

	// Unauthenticated API access is rejected
	req, _ := http.NewRequest("GET", "/api/files", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	if w2.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without auth, got %d", w2.Code)
	}

	// Bearer token grants access
	req, _ = http.NewRequest("GET", "/api/files", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Data.Token)
	w3 := httptest.NewRecorder()
	router.ServeHTTP(w3, req)
	if w3.Code != http.StatusOK {
		t.Errorf("Expected status 200 with token, got %d: %s", w3.Code, w3.Body.String())
	}

	// Garbage token is rejected
	req, _ = http.NewRequest("GET", "/api/files", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w4 := httptest.NewRecorder()
	router.ServeHTTP(w4, req)
	if w4.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for garbage token, got %d", w4.Code)
	}

	// Basic auth works as a fallback
	req, _ = http.NewRequest("GET", "/api/files", nil)
	req.SetBasicAuth("alice", "password123")
	w5 := httptest.NewRecorder()
	router.ServeHTTP(w5, req)
	if w5.Code != http.StatusOK {
		t.Errorf("Expected status 200 with basic auth, got %d", w5.Code)
	}
}

// seedReviewer ensures a reviewer account exists for direct engine seeding
func seedReviewer(t *testing.T, username string) *User {
	t.Helper()
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err == nil {
		return &user
	}
	user = User{Username: username}
	if err := user.SetPassword("password123"); err != nil {
		t.Fatalf("Failed to set password: %v", err)
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create reviewer: %v", err)
	}
	return &user
}

func authedJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("bob", "password123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func testAnnotationLifecycle(t *testing.T, router *gin.Engine) {
	user := seedReviewer(t, "bob")

	file := &File{
		Name:         "cv_under_review",
		FileType:     FileTypeCV,
		Status:       FileStatusReady,
		PDFPath:      "media/pdfs/lifecycle.pdf",
		JSONPath:     "media/jsons/lifecycle.json",
		UploadedByID: user.ID,
	}
	annotation, err := engine.Ingest(file, json.RawMessage(`{"publications":[],"personal_info":{"name":{"value":"Jane"}}}`), user)
	if err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	// Latest annotation comes back with canonically ordered content
	w := authedJSON(t, router, "GET", "/api/annotations?file_id="+itoa(file.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for latest annotation, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"version":1`) {
		t.Errorf("Expected version 1 in response: %s", body)
	}
	pi := strings.Index(body, "personal_info")
	pub := strings.Index(body, "publications")
	if pi == -1 || pub == -1 || pi > pub {
		t.Errorf("Expected canonical key order in data: %s", body)
	}

	// Update content bumps the version
	w = authedJSON(t, router, "PUT", "/api/annotations/"+itoa(annotation.ID)+"/update_content", gin.H{
		"content": json.RawMessage(`{"personal_info":{"name":{"value":"Janet"}}}`),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for update, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"version":2`) {
		t.Errorf("Expected version 2 after update: %s", w.Body.String())
	}

	// Verify a field
	w = authedJSON(t, router, "POST", "/api/annotations/"+itoa(annotation.ID)+"/verify_field", gin.H{
		"field_path": "personal_info.name",
		"verified":   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for verify, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"verified":true`) {
		t.Errorf("Expected verified flag in content: %s", w.Body.String())
	}

	// Verifying an unknown path returns 404
	w = authedJSON(t, router, "POST", "/api/annotations/"+itoa(annotation.ID)+"/verify_field", gin.H{
		"field_path": "personal_info.ghost",
		"verified":   true,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown path, got %d", w.Code)
	}

	// Roll back to the first version
	w = authedJSON(t, router, "POST", "/api/annotations/"+itoa(annotation.ID)+"/rollback", gin.H{
		"version": 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for rollback, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"version":4`) {
		t.Errorf("Expected version 4 after rollback: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"Jane"`) {
		t.Errorf("Expected original content restored: %s", w.Body.String())
	}

	// History lists every change, newest first
	w = authedJSON(t, router, "GET", "/api/annotations/"+itoa(annotation.ID)+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for history, got %d", w.Code)
	}
	var histResp struct {
		Count   int `json:"count"`
		History []struct {
			Version    int    `json:"version"`
			ChangeType string `json:"change_type"`
		} `json:"history"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &histResp); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if histResp.Count != 4 {
		t.Errorf("Expected 4 history rows, got %d", histResp.Count)
	}
	if len(histResp.History) > 0 && histResp.History[0].ChangeType != ChangeTypeRollback {
		t.Errorf("Expected newest entry to be the rollback, got %s", histResp.History[0].ChangeType)
	}

	// Progress over the latest content
	w = authedJSON(t, router, "GET", "/api/files/"+itoa(file.ID)+"/progress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for progress, got %d", w.Code)
	}
	var progResp struct {
		TotalFields    int     `json:"total_fields"`
		VerifiedFields int     `json:"verified_fields"`
		Progress       float64 `json:"progress"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &progResp); err != nil {
		t.Fatalf("Failed to decode progress: %v", err)
	}
	if progResp.TotalFields == 0 {
		t.Error("Expected non-zero total fields")
	}

	// Delete the file; its annotations disappear from reads
	w = authedJSON(t, router, "DELETE", "/api/files/"+itoa(file.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for delete, got %d: %s", w.Code, w.Body.String())
	}
	w = authedJSON(t, router, "GET", "/api/annotations/"+itoa(annotation.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func testBatchVerify(t *testing.T, router *gin.Engine) {
	user := seedReviewer(t, "bob")

	file := &File{
		Name:         "batch_cv",
		FileType:     FileTypeCV,
		Status:       FileStatusReady,
		PDFPath:      "media/pdfs/batch.pdf",
		JSONPath:     "media/jsons/batch.json",
		UploadedByID: user.ID,
	}
	if _, err := engine.Ingest(file, json.RawMessage(`{"personal_info":{}}`), user); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	w := authedJSON(t, router, "POST", "/api/annotations/batch_verify", gin.H{
		"file_id": file.ID,
		"annotations": []gin.H{
			{"field_path": "education.0", "content": json.RawMessage(`{"value":"MIT"}`), "is_correct": true},
			{"field_path": "honors.0", "content": json.RawMessage(`{"value":"Award"}`), "is_correct": false},
			{"field_path": "skills.0", "content": json.RawMessage(`{"value":"Go"}`), "verification_status": "redundant"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for batch, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count       int `json:"count"`
		Annotations []struct {
			ID                 uint   `json:"id"`
			Version            int    `json:"version"`
			VerificationStatus string `json:"verification_status"`
		} `json:"annotations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode batch response: %v", err)
	}
	if resp.Count != 3 {
		t.Fatalf("Expected 3 created annotations, got %d", resp.Count)
	}

	// Status follows the correctness verdict unless sent explicitly
	wantStatus := []string{VerificationVerified, VerificationIncorrect, VerificationRedundant}
	for i, a := range resp.Annotations {
		if a.VerificationStatus != wantStatus[i] {
			t.Errorf("Expected status %q for annotation %d, got %q", wantStatus[i], i, a.VerificationStatus)
		}
	}

	// Every batch-created record has its own initial history entry
	for _, a := range resp.Annotations {
		var count int64
		db.Model(&AnnotationHistory{}).Where("annotation_id = ?", a.ID).Count(&count)
		if count != 1 {
			t.Errorf("Expected 1 history row for annotation %d, got %d", a.ID, count)
		}
	}

	// Unknown file fails up front
	w = authedJSON(t, router, "POST", "/api/annotations/batch_verify", gin.H{
		"file_id": 99999,
		"annotations": []gin.H{
			{"field_path": "education.0", "content": json.RawMessage(`{"value":"X"}`)},
		},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown file, got %d", w.Code)
	}
}

func testUploadValidation(t *testing.T, router *gin.Engine) {
	seedReviewer(t, "bob")

	// Missing multipart payload fails before any storage work
	req, _ := http.NewRequest("POST", "/api/files", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.SetBasicAuth("bob", "password123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty upload, got %d", w.Code)
	}
}

func testErrorFormat(t *testing.T, router *gin.Engine) {
	seedReviewer(t, "bob")

	w := authedJSON(t, router, "GET", "/api/annotations/999999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Code != ErrCodeNotFound {
		t.Errorf("Expected code %s, got %s", ErrCodeNotFound, resp.Code)
	}
	if resp.Error == "" {
		t.Error("Expected an error message")
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
