package routes

import (
	"medresponse/internal/handlers"
	"medresponse/internal/middleware"
	"medresponse/pkg/logger"
	"medresponse/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// Setup wires the full HTTP surface: emergency lifecycle, dashboards, the
// websocket endpoint, and health.
func Setup(
	router *gin.Engine,
	emergencyHandler *handlers.EmergencyHandler,
	dashboardHandler *handlers.DashboardHandler,
	wsHandler *websocket.Handler,
	log *logger.Logger,
) {
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/ws", wsHandler.HandleWebSocket)

	v1 := router.Group("/api/v1")

	emergencies := v1.Group("/emergencies")
	{
		emergencies.POST("/sos", emergencyHandler.CreateSOS)
		emergencies.POST("/bookings", emergencyHandler.CreateBooking)
		emergencies.GET("/history", emergencyHandler.GetHistory)
		emergencies.GET("/:id", emergencyHandler.GetEmergency)
		emergencies.POST("/:id/accept", emergencyHandler.AcceptEmergency)
		emergencies.PATCH("/:id/status", emergencyHandler.UpdateStatus)
	}

	ambulances := v1.Group("/ambulances")
	{
		ambulances.PUT("/:id/location", emergencyHandler.UpdateAmbulanceLocation)
	}

	trips := v1.Group("/trips")
	{
		trips.GET("/completed", emergencyHandler.GetCompletedTrips)
	}

	dashboards := v1.Group("/dashboard")
	{
		dashboards.GET("/hospital", dashboardHandler.GetHospitalView)
		dashboards.GET("/police", dashboardHandler.GetPoliceView)
		dashboards.GET("/admin", dashboardHandler.GetAdminView)
	}

	users := v1.Group("/users")
	{
		users.GET("/:id/active-emergency", dashboardHandler.GetUserView)
	}
}
