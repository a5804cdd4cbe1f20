package http

import (
	"time"

	"questkeeper_notifications/internal/http/handlers"
	"questkeeper_notifications/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
)

// Deps is everything the router needs. Redis may be nil.
type Deps struct {
	Handler *handlers.Handler
	DB      handlers.Pinger
	Redis   *redis.Client
	Version string

	WebhookRateLimit  int
	WebhookRateWindow time.Duration
	// RequestTimeout bounds every webhook and notification request.
	RequestTimeout time.Duration
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := d.Handler
	healthHandler := handlers.NewHealthHandler(d.DB, d.Redis, d.Version)

	r.Use(middleware.RequestID(), middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ping", handlers.Ping)

	webhookRL := middleware.RedisRateLimit(d.Redis, "webhooks", d.WebhookRateLimit, d.WebhookRateWindow)
	timeout := middleware.Timeout(d.RequestTimeout)

	webhooks := r.Group("/webhooks", timeout, webhookRL)
	{
		webhooks.POST("/tasks", h.TaskWebhook)
		webhooks.POST("/profiles", h.ProfileWebhook)
	}

	notifications := r.Group("/notifications", timeout)
	{
		notifications.GET("/tasks/:taskId", h.ListTaskNotifications)
		notifications.POST("/send", h.SendNotification)
		notifications.POST("/notify", h.NotifyInApp)
	}

	// Legacy webhook paths still configured on older database triggers
	r.POST("/notifications", timeout, webhookRL, h.TaskWebhook)
	r.POST("/profiles", timeout, webhookRL, h.ProfileWebhook)
}
