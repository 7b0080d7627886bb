// main.go
package main

import (
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

var (
	db           *gorm.DB
	serverConfig *ServerConfig
	engine       *AnnotationEngine
	workerPool   *WorkerPool
)

func main() {
	var err error

	// Load server configuration
	serverConfig, err = LoadConfig("config.json")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the SQLite database connection
	db, err = gorm.Open(sqlite.Open(serverConfig.Database.Path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Perform automatic schema migration
	db.AutoMigrate(&User{}, &File{}, &Annotation{}, &AnnotationHistory{}, &ArchiveDelivery{})

	// Build the review engine on top of the database
	engine = NewAnnotationEngine(db, serverConfig)

	// Create a new Gin router for handling HTTP requests
	r := gin.Default()

	// Add security middleware
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(serverConfig.Security.AllowedOrigins))
	r.Use(LoggingMiddleware())
	r.Use(RateLimitMiddleware(serverConfig.Security.RateLimitRequests, time.Duration(serverConfig.Security.RateLimitWindow)*time.Second))

	// Retrieve secret key for the session store
	secretKey := serverConfig.Security.SecretKey
	if secretKey == "" {
		log.Fatalf("SECRET_KEY environment variable is required")
	}

	log.Printf("Session store initialized successfully")

	// Set up session middleware using the secret key
	store := cookie.NewStore([]byte(secretKey))
	store.Options(sessions.Options{
		MaxAge:   serverConfig.Security.SessionMaxAge,
		Path:     "/",
		HttpOnly: true,
		Secure:   serverConfig.Security.EnableHTTPS,
	})
	r.Use(sessions.Sessions("annosession", store))

	// Register all the API routes
	registerRoutes(r)

	// Start the background workers for archive delivery and progress refresh
	workerPool = NewWorkerPool(0, 100)
	workerPool.Start()

	if serverConfig.Archive.Enabled {
		log.Println("Starting archive delivery retry service...")
		startArchiveRetryService()

		// Run a check for archive server availability
		go func() {
			// Initial check
			if isArchiveServerOnline() {
				log.Println("Archive server is online and responding to health checks")
			} else {
				log.Println("WARNING: Archive server is offline! Deliveries will be queued until it's available.")
			}

			// Periodically check status
			ticker := time.NewTicker(5 * time.Minute)
			for range ticker.C {
				if isArchiveServerOnline() {
					log.Println("Archive server connection status: Online")
				} else {
					log.Println("Archive server connection status: Offline")
				}
			}
		}()
	}

	// Run the Gin server on the configured interface
	if serverConfig.Security.EnableHTTPS && serverConfig.Security.CertFile != "" && serverConfig.Security.KeyFile != "" {
		log.Printf("Starting HTTPS server on %s", serverConfig.Server.Interface)
		if err := r.RunTLS(serverConfig.Server.Interface, serverConfig.Security.CertFile, serverConfig.Security.KeyFile); err != nil {
			log.Fatalf("Failed to run HTTPS server: %v", err)
		}
	} else {
		log.Printf("Starting HTTP server on %s", serverConfig.Server.Interface)
		if err := r.Run(serverConfig.Server.Interface); err != nil {
			log.Fatalf("Failed to run server: %v", err)
		}
	}
}
