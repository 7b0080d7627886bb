// config.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	Server     ServerSettings     `json:"server"`
	Database   DatabaseSettings   `json:"database"`
	Security   SecuritySettings   `json:"security"`
	Uploads    UploadSettings     `json:"uploads"`
	Archive    ArchiveSettings    `json:"archive"`
	Annotation AnnotationSettings `json:"annotation"`
}

// ServerSettings contains server-specific configuration
type ServerSettings struct {
	Interface    string `json:"interface"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// DatabaseSettings contains database configuration
type DatabaseSettings struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// SecuritySettings contains security-related configuration
type SecuritySettings struct {
	SecretKey         string   `json:"-"` // Never serialize secret key
	SessionMaxAge     int      `json:"session_max_age"`
	TokenMaxAge       int      `json:"token_max_age"` // JWT lifetime in seconds
	RateLimitRequests int      `json:"rate_limit_requests"`
	RateLimitWindow   int      `json:"rate_limit_window"`
	EnableHTTPS       bool     `json:"enable_https"`
	CertFile          string   `json:"cert_file"`
	KeyFile           string   `json:"key_file"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

// UploadSettings contains local blob storage configuration
type UploadSettings struct {
	PDFDir      string `json:"pdf_dir"`
	JSONDir     string `json:"json_dir"`
	MaxPDFBytes int64  `json:"max_pdf_bytes"`
}

// ArchiveSettings contains archive server configuration
type ArchiveSettings struct {
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url"`
	HealthCheckURL string `json:"health_check_url"`
	Timeout        int    `json:"timeout"`
	RetryAttempts  int    `json:"retry_attempts"`
	RetryInterval  int    `json:"retry_interval"`
}

// AnnotationSettings contains the review-engine conventions. The field order
// is the canonical top-level key sequence enforced before every persist; the
// marker suffix is the legacy verified-field convention of the extraction
// pipeline.
type AnnotationSettings struct {
	MarkerSuffix string   `json:"marker_suffix"`
	FieldOrder   []string `json:"field_order"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	// Default configuration
	config := &ServerConfig{
		Server: ServerSettings{
			Interface:    ":5000",
			Port:         5000,
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
		},
		Database: DatabaseSettings{
			Type: "sqlite",
			Path: "annotations.db",
		},
		Security: SecuritySettings{
			SessionMaxAge:     86400, // 24 hours
			TokenMaxAge:       86400,
			RateLimitRequests: 100,
			RateLimitWindow:   60, // 1 minute
			EnableHTTPS:       false,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5000",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5000",
			},
		},
		Uploads: UploadSettings{
			PDFDir:      "media/pdfs",
			JSONDir:     "media/jsons",
			MaxPDFBytes: 50 << 20, // 50 MB
		},
		Archive: ArchiveSettings{
			Enabled:        false,
			URL:            "http://localhost:6000",
			HealthCheckURL: "http://localhost:6000/health",
			Timeout:        30,
			RetryAttempts:  MaxRetryAttempts,
			RetryInterval:  60,
		},
		Annotation: AnnotationSettings{
			MarkerSuffix: DefaultMarkerSuffix,
			FieldOrder:   defaultFieldOrder,
		},
	}

	// Load from file if it exists
	if configPath != "" {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %v", err)
		}
	}

	// Override with environment variables
	loadConfigFromEnv(config)

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from JSON file
func loadConfigFromFile(config *ServerConfig, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	return decoder.Decode(config)
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(config *ServerConfig) {
	// Security settings (most important)
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		config.Security.SecretKey = secretKey
	}

	// Server settings
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
			config.Server.Interface = fmt.Sprintf(":%d", p)
		}
	}
	if iface := os.Getenv("SERVER_INTERFACE"); iface != "" {
		config.Server.Interface = iface
	}

	// Database settings
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	// Upload settings
	if pdfDir := os.Getenv("PDF_DIR"); pdfDir != "" {
		config.Uploads.PDFDir = pdfDir
	}
	if jsonDir := os.Getenv("JSON_DIR"); jsonDir != "" {
		config.Uploads.JSONDir = jsonDir
	}

	// Archive settings
	if enabled := os.Getenv("ARCHIVE_ENABLED"); enabled != "" {
		config.Archive.Enabled = strings.ToLower(enabled) == "true"
	}
	if archiveURL := os.Getenv("ARCHIVE_URL"); archiveURL != "" {
		config.Archive.URL = archiveURL
		config.Archive.HealthCheckURL = archiveURL + "/health"
	}

	// Annotation settings
	if marker := os.Getenv("MARKER_SUFFIX"); marker != "" {
		config.Annotation.MarkerSuffix = marker
	}
	if order := os.Getenv("FIELD_ORDER"); order != "" {
		config.Annotation.FieldOrder = strings.Split(order, ",")
	}

	// Security settings
	if httpsEnabled := os.Getenv("ENABLE_HTTPS"); httpsEnabled != "" {
		config.Security.EnableHTTPS = strings.ToLower(httpsEnabled) == "true"
	}
	if certFile := os.Getenv("CERT_FILE"); certFile != "" {
		config.Security.CertFile = certFile
	}
	if keyFile := os.Getenv("KEY_FILE"); keyFile != "" {
		config.Security.KeyFile = keyFile
	}
}

// validateConfig validates the configuration
func validateConfig(config *ServerConfig) error {
	if config.Security.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	if len(config.Security.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters long")
	}

	if config.Security.EnableHTTPS {
		if config.Security.CertFile == "" || config.Security.KeyFile == "" {
			return fmt.Errorf("CERT_FILE and KEY_FILE are required when HTTPS is enabled")
		}
	}

	if config.Annotation.MarkerSuffix == "" {
		return fmt.Errorf("annotation marker_suffix must not be empty")
	}

	if len(config.Annotation.FieldOrder) == 0 {
		return fmt.Errorf("annotation field_order must not be empty")
	}

	if config.Archive.Enabled && config.Archive.URL == "" {
		return fmt.Errorf("archive URL is required when archive delivery is enabled")
	}

	return nil
}
