package api

import (
	"hound-api/internal/metrics"
	"hound-api/internal/middleware"
	"hound-api/internal/services"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handlers, families services.FamilyDirectory) {
	r.Use(metrics.GinMiddleware())

	// API route group
	api := r.Group("/api/v1")
	{
		// App Store notification routes (no authentication, Apple calls these)
		appstore := api.Group("/appstore")
		{
			appstore.POST("/notifications", h.AppStoreNotification)
		}

		// Ledger routes, scoped to a family member
		transactions := api.Group("/user/:userId/family/:familyId/transactions")
		transactions.Use(middleware.FamilyScope(families))
		{
			transactions.POST("", h.ReconcileReceipt)
			transactions.GET("", h.GetTransactions)
			transactions.GET("/active", h.GetActiveTransaction)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "hound-api",
		})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}
