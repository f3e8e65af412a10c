package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quantsmith/quantsmith/internal/api/handlers"
	log "github.com/sirupsen/logrus"
)

// SetupRoutes builds the read-only router over h
func SetupRoutes(h *handlers.Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(requestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.Health)

		v1.GET("/manifest", h.GetManifest)
		v1.GET("/manifest/verify", h.VerifyManifest)
		v1.GET("/artifact", h.GetArtifact)

		models := v1.Group("/models")
		{
			models.GET("", h.ListModels)
			models.GET("/*name", h.GetModel)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.WithFields(log.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("request completed")
	}
}

// corsMiddleware adds CORS headers for local development
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "http://localhost:*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
