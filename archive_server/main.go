package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config holds the archive server configuration
type Config struct {
	ServerPort  string `json:"server_port"`
	StoragePath string `json:"storage_path"`
}

var (
	db     *gorm.DB
	config Config
)

func main() {
	// Load configuration
	if err := loadConfig(); err != nil {
		log.Printf("No config file, using defaults: %v", err)
		config = Config{ServerPort: "6000", StoragePath: "archive_files"}
	}

	// Initialize database
	var err error
	db, err = gorm.Open(sqlite.Open("archive.db"), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate the database schema
	if err := db.AutoMigrate(&ArchivedFile{}, &IntegrityCheck{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Create storage directory if it doesn't exist
	if err := os.MkdirAll(config.StoragePath, 0755); err != nil {
		log.Fatalf("Failed to create storage directory: %v", err)
	}

	// Initialize router
	r := gin.Default()
	setupRoutes(r)

	// Start server
	if err := r.Run(":" + config.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func loadConfig() error {
	configFile, err := os.Open("config.json")
	if err != nil {
		return err
	}
	defer configFile.Close()

	return json.NewDecoder(configFile).Decode(&config)
}

func setupRoutes(r *gin.Engine) {
	r.GET("/health", healthCheck)
	r.POST("/upload_file", handleFileUpload)
	r.GET("/files", listFiles)
	r.GET("/integrity/:file_id", getIntegrityCheck)
}
