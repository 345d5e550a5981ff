// Package server assembles the gin engine for the user service.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/receiptmaster/backend/shared/metrics"
	"github.com/receiptmaster/backend/shared/middleware"
	"github.com/receiptmaster/backend/user-service/internal/config"
	"github.com/receiptmaster/backend/user-service/internal/handler"
)

// Dependencies are the collaborators the router needs. Metrics may be nil.
type Dependencies struct {
	Config  config.Config
	Users   *handler.UserHandler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", deps.Config.Auth.APIKeyHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", deps.Metrics.Handler())
	}

	router.GET("/", rootHandler(deps.Config))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := router.Group("/users", middleware.APIKeyMiddleware(deps.Config.Auth.APIKeyHeader, deps.Config.Auth.APIKey))
	deps.Users.RegisterRoutes(users)

	return router
}

func rootHandler(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.App.Name,
			"version": cfg.App.Version,
			"env":     cfg.App.Env,
			"health":  "/health",
			"api":     "/users",
		})
	}
}
