package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tbc/persons/api-gateway/internal/proxy"
	"github.com/tbc/persons/shared/config"
	"github.com/tbc/persons/shared/middleware"
)

func main() {
	var cfg config.Gateway
	if err := config.Parse(&cfg); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	router := NewRouter(cfg, &http.Client{Timeout: 30 * time.Second}, logger)

	logger.Info("api gateway starting", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// NewRouter registers the public person routes. Reads are open, mutations
// need a bearer token.
func NewRouter(cfg config.Gateway, client *http.Client, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.LoggingMiddleware(logger),
		middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "api-gateway"})
	})

	auth := middleware.AuthMiddleware(middleware.AuthConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		Leeway: 30 * time.Second,
	})
	persons := proxy.To(cfg.PersonServiceURL, client, logger)

	// Person routes
	router.GET("/v1/persons", persons)
	router.GET("/v1/persons/:personId", persons)
	router.POST("/v1/persons", auth, persons)
	router.PATCH("/v1/persons/:personId", auth, persons)
	router.DELETE("/v1/persons/:personId", auth, persons)
	router.PUT("/v1/persons/:personId/image", auth, persons)

	// City routes
	router.GET("/v1/cities/:cityId/stats", persons)

	return router
}
