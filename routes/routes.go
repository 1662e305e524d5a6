package routes

import (
	"photo-vault-api/controllers"
	"photo-vault-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			// Authentication
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Photo Vault API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)

			// Plan quota
			protected.GET("/plan", controllers.GetPlan)

			// Provider catalog
			protected.GET("/services", controllers.ListServices)

			// Import sources
			sources := protected.Group("/sources")
			{
				sources.GET("", controllers.ListSources)
				sources.POST("/connect", controllers.ConnectSource)
				sources.DELETE("/:id", controllers.DisconnectSource)
				sources.GET("/:id/albums", controllers.ListSourceAlbums)
				sources.GET("/:id/check-new", controllers.CheckNewAssets)
			}

			// Import jobs
			jobs := protected.Group("/import-jobs")
			{
				jobs.POST("", controllers.StartImportJob)
				jobs.GET("/:id", controllers.GetImportJob)
				jobs.POST("/:id/cancel", controllers.CancelImportJob)
				jobs.POST("/:id/pause", controllers.PauseImportJob)
				jobs.POST("/:id/resume", controllers.ResumeImportJob)
				jobs.POST("/:id/rollback", controllers.RollbackImportJob)
			}

			// Deduplication
			dedup := protected.Group("/dedup")
			{
				dedup.POST("/scans", controllers.StartDedupScan)
				dedup.GET("/scans/:id", controllers.GetDedupScan)
				dedup.GET("/groups", controllers.ListDuplicateGroups)
				dedup.POST("/groups/:id/resolve", controllers.ResolveDuplicateGroup)
			}
		}
	}
}
