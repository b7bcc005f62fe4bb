package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cartsync/cartsync-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName   string
	AllowOrigins  []string
	HealthHandler *handlers.HealthHandler
	ListHandler   *handlers.ListHandler
	WSHandler     *handlers.WSHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	// Command/subscription channel
	router.GET("/ws", cfg.WSHandler.Serve)

	// Read-only REST surface
	api := router.Group("/api")
	{
		api.GET("/lists", cfg.ListHandler.GetLists)
		api.GET("/lists/:id", cfg.ListHandler.GetList)
	}

	return router
}
