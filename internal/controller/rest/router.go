package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret   []byte
	CORSOrigins []string
	// Idempotency может быть nil, тогда Idempotency-Key игнорируется
	Idempotency IdempotencyStore
}

func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(logger), gin.Recovery(), CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "route not found")
	})

	r.GET("/health", h.Health)

	var idempotent gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Idempotency != nil {
		idempotent = Idempotency(cfg.Idempotency, logger)
	}

	api := r.Group("/api", Auth(cfg.JWTSecret))
	{
		// Bookings
		api.POST("/bookings", idempotent, h.Reserve)
		api.POST("/bookings/:id/cancel", idempotent, h.CancelBooking)
		api.GET("/bookings/:id", h.GetBooking)
		api.GET("/me/bookings", h.MyBookings)

		// Slots
		api.GET("/slots", h.ListSlots)
		api.GET("/slots/:id", h.GetSlot)
		api.GET("/slots/:id/join", h.JoinLink)

		admin := api.Group("", RequireAdmin())
		admin.POST("/slots", h.CreateSlot)
		admin.POST("/slots/recurring", h.CreateRecurring)
		admin.POST("/slots/:id/cancel", h.CancelSlot)
		admin.PUT("/slots/:id/allow-list", h.SetAllowList)
		admin.GET("/slots/:id/bookings", h.SlotBookings)

		// Recurring schedules
		admin.GET("/recurring", h.ListRecurring)
		admin.POST("/recurring/:id/deactivate", h.DeactivateRecurring)
	}

	return r
}
