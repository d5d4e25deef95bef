package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"clubpoint-backend/config"
	"clubpoint-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Public routes. The webhook authenticates nobody: the provider
		// calls it and reconciliation is idempotent underneath.
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/payments/webhook", h.PaymentWebhook)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

		authed := api.Group("")
		authed.Use(h.RequireAuth())
		{
			authed.GET("/users/me", h.Me)

			authed.GET("/machines", caching, h.ListMachines)

			authed.GET("/sessions", h.ListMySessions)
			authed.POST("/sessions/start", h.StartSession)
			authed.POST("/sessions/:id/stop", h.StopSession)

			authed.GET("/payments", h.ListPayments)
			authed.POST("/payments/online", h.CreateOnlinePayment)

			authed.GET("/bookings", h.ListBookings)
			authed.POST("/bookings", h.CreateBooking)
			authed.POST("/bookings/:id/cancel", h.CancelBooking)
		}

		staff := api.Group("")
		staff.Use(h.RequireAuth(), h.RequireStaff())
		{
			staff.POST("/machines", h.CreateMachine)
			staff.PATCH("/machines/:id/status", h.SetMachineStatus)

			staff.POST("/sessions/:id/extend", h.ExtendSession)

			staff.POST("/payments/cash", h.CreateCashPayment)

			staff.GET("/reports/power", h.PowerReport)
			staff.GET("/reports/finance", h.FinanceReport)
			staff.GET("/reports/salaries", h.SalariesReport)

			staff.GET("/users", h.ListUsers)
		}

		admin := api.Group("")
		admin.Use(h.RequireAuth(), h.RequireAdmin())
		{
			admin.PATCH("/users/:id/role", h.SetUserRole)
			admin.GET("/audit", h.ListAuditLogs)
		}
	}

	return r
}
