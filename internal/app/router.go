package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"campusride/internal/auth"
	"campusride/internal/gateway"
	"campusride/internal/handler"
	"campusride/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler *handler.TripHandler
	UserHandler *handler.UserHandler
	Gateway     *gateway.Gateway
	Verifier    *auth.Verifier
	RedisClient *redis.Client
	NewRelicApp *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check and metrics.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Websocket gateway authenticates inside the handshake.
	router.GET("/ws", deps.Gateway.Handle)

	// API v1 routes, all behind bearer auth.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthRequired(deps.Verifier))
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		// User routes.
		users := v1.Group("/users")
		{
			users.GET("/me", deps.UserHandler.GetMe)
			users.PUT("/me/push-token", deps.UserHandler.RegisterPushToken)
		}

		// Trip routes.
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.Create)
			trips.GET("", deps.TripHandler.GetAvailable)
			trips.GET("/my-driver-trips", deps.TripHandler.GetMyDriverTrips)
			trips.GET("/my-passenger-trips", deps.TripHandler.GetMyPassengerTrips)
			trips.GET("/:id", deps.TripHandler.Get)
			trips.POST("/:id/book", deps.TripHandler.Book)
			trips.PUT("/:id/bookings/:passengerId", deps.TripHandler.ManageBooking)
			trips.PUT("/:id/start", deps.TripHandler.Start)
			trips.PUT("/:id/cancel", deps.TripHandler.Cancel)
			trips.DELETE("/:id/leave", deps.TripHandler.Leave)
			trips.PUT("/:id/complete", deps.TripHandler.Complete)
			trips.PUT("/:id/confirm-in-vehicle", deps.TripHandler.ConfirmInVehicle)
			trips.GET("/:id/chat", deps.TripHandler.GetChatHistory)
		}
	}

	return router
}
