package main

import (
	"log"
	"os"

	"photo-vault-api/config"
	"photo-vault-api/controllers"
	"photo-vault-api/middleware"
	"photo-vault-api/models"
	"photo-vault-api/routes"
	"photo-vault-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitLogging()

	// Initialize database
	config.InitDB()

	if err := models.Migrate(config.DB); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Seed the provider catalog
	catalog, err := config.LoadCatalog()
	if err != nil {
		log.Fatal("Failed to load provider catalog:", err)
	}
	registry := services.NewServiceRegistry(config.DB)
	if err := registry.Seed(catalog); err != nil {
		log.Fatal("Failed to seed provider catalog:", err)
	}

	controllers.Init(registry)

	// Restart workers for jobs orphaned by a previous process
	if err := controllers.ImportJobService().ReclaimAbandoned(); err != nil {
		log.Printf("Warning: failed to reclaim abandoned jobs: %v", err)
	}

	// Set Gin mode
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add logging middleware
	router.Use(gin.Logger())

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Add CORS middleware
	router.Use(middleware.CORSMiddleware())

	// Setup routes
	routes.SetupRoutes(router)

	// Create vault storage directory if not exists
	storagePath := os.Getenv("VAULT_STORAGE_PATH")
	if storagePath == "" {
		storagePath = "./vault-data"
	}
	if err := os.MkdirAll(storagePath, os.ModePerm); err != nil {
		log.Printf("Warning: Failed to create vault storage directory: %v", err)
	}

	// Start server
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
