package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sitepulse.io/sitepulse/internal/api/handlers"
	"sitepulse.io/sitepulse/internal/api/middleware"
	"sitepulse.io/sitepulse/internal/broadcast"
	"sitepulse.io/sitepulse/internal/config"
)

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	router.GET("/healthz", server.GetHealth)
	router.GET("/ws", broadcast.WSHandler(server.Hub()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/projects/:id", server.GetProject)
		v1.GET("/projects/:id/ledger", server.GetProjectLedger)
		v1.GET("/projects/:id/notifications", server.GetProjectNotifications)
		v1.POST("/changes", server.PostChange)
	}

	return router
}

// buildCORSConfig derives the CORS policy from server config. Browser
// dashboards consume the API and the websocket stream directly.
func buildCORSConfig(cfg *config.Config) cors.Config {
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		return corsConfig
	}
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	return corsConfig
}
