package handlers

import (
	"spabridge/internal/logger"
	"spabridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// WebSocket push of mirror updates — same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerSpaRoutes(api)
	}
}

func (h *Handler) registerSpaRoutes(api *gin.RouterGroup) {
	spa := api.Group("/spa")
	{
		spa.GET("/state", h.getState)
		spa.POST("/refresh", h.forceRefresh)
		// Body example: {"on":true}
		spa.PUT("/power", h.setPower)
		spa.PUT("/heating", h.setHeating)
		spa.PUT("/filter", h.setFilter)
		spa.PUT("/waves", h.setWaves)
		// Body example: {"target_temp_c":35}
		spa.PUT("/temperature", h.setTemperature)
	}
}
