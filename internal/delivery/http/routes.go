package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartwise/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check and metrics endpoints
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	if cfg.RateLimit.PerIP > 0 {
		v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP, cfg.RateLimit.Burst))
	}
	{
		v1.POST("/cart/substitutions", handler.SuggestSubstitutions)
		v1.POST("/checkout", handler.Checkout)

		v1.POST("/intent/events", handler.RecordIntentEvent)
		v1.POST("/interactions", handler.RecordInteraction)

		v1.GET("/products/:id", handler.GetProduct)

		users := v1.Group("/users/:userId")
		{
			users.GET("/recommendations", handler.GetRecommendations)
			users.GET("/intent", handler.GetIntent)
			users.DELETE("/intent", handler.ResetIntent)
			users.GET("/interactions", handler.ListInteractions)
		}
	}

	return router
}
