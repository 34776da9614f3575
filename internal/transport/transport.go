package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/yoye-booking/config"
	"github.com/ds124wfegd/yoye-booking/internal/transport/middleware"
)

const countdownRoute = "/api/v1/sessions/:id/countdown"

func InitRoutes(cfg *config.Config, eventHandler *EventHandler, sessionHandler *SessionHandler, bookingHandler *BookingHandler) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.Logger("/health"))
	if cfg.RateLimit.RequestsPerSecond > 0 {
		router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}
	// отсчёт оплаты стримится до отключения клиента
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout, countdownRoute))

	// API routes
	api := router.Group("/api/v1")
	{
		// Catalog routes
		events := api.Group("/events")
		{
			events.GET("", eventHandler.GetAllEvents)
			events.GET("/:id", eventHandler.GetEvent)
		}

		// Wizard routes
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.POST("/:id/terms", sessionHandler.AcceptTerms)
			sessions.POST("/:id/next", sessionHandler.Next)
			sessions.POST("/:id/back", sessionHandler.Back)
			sessions.POST("/:id/event", sessionHandler.SelectEvent)
			sessions.PATCH("/:id/form", sessionHandler.UpdateForm)
			sessions.POST("/:id/form/tickets", sessionHandler.AdjustTickets)
			sessions.POST("/:id/payment/proof", sessionHandler.AttachProof)
			sessions.GET("/:id/countdown", sessionHandler.Countdown)
			sessions.POST("/:id/submit", sessionHandler.Submit)
			sessions.POST("/:id/expire", sessionHandler.Expire)
			sessions.POST("/:id/reset", sessionHandler.Reset)
		}

		// Tracking routes
		api.GET("/tracking", bookingHandler.GetTracking)
		bookings := api.Group("/bookings")
		{
			bookings.GET("/:code", bookingHandler.GetBooking)
			bookings.PUT("/:code", bookingHandler.UpdateBooking)
		}

		// Admin routes
		admin := api.Group("/admin")
		{
			admin.PATCH("/bookings/:code/status", bookingHandler.UpdateStatus)
			admin.GET("/bookings/stats", bookingHandler.GetStats)
			admin.POST("/bookings/reminders", bookingHandler.SendReminders)
			admin.GET("/queue/stats", bookingHandler.GetQueueStats)
			admin.GET("/queue/dlq", bookingHandler.GetFailedTasks)
			admin.POST("/queue/dlq/:id/requeue", bookingHandler.RequeueFailedTask)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"version":   cfg.Server.AppVersion,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	return router
}
