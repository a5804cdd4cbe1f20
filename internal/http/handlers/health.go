package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	stateHealthy  = "healthy"
	stateDegraded = "degraded"
	stateDisabled = "disabled"
)

// dependency is one backing service of the notification API. Only required
// dependencies can make the instance unready.
type dependency struct {
	name     string
	required bool
	check    func(ctx context.Context) string
}

// HealthHandler reports whether Postgres and Redis are reachable.
type HealthHandler struct {
	deps    []dependency
	started time.Time
	version string
}

// NewHealthHandler builds the handler. rdb may be nil when Redis is not configured.
func NewHealthHandler(db Pinger, rdb *redis.Client, version string) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "database", required: true, check: func(ctx context.Context) string {
				if err := db.Ping(ctx); err != nil {
					return "unhealthy: " + err.Error()
				}
				return stateHealthy
			}},
			// token cache, dispatch claims and rate limits all fail open
			{name: "redis", check: func(ctx context.Context) string {
				if rdb == nil {
					return stateDisabled
				}
				if err := rdb.Ping(ctx).Err(); err != nil {
					return stateDegraded
				}
				return stateHealthy
			}},
		},
		started: time.Now(),
		version: version,
	}
}

// HealthResponse is the readiness payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness answers as long as the process serves HTTP.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness runs every dependency check and fails when a required one is down.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, ready := h.run(ctx, false)
	res := HealthResponse{
		Status:    stateHealthy,
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	code := http.StatusOK
	if !ready {
		res.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, res)
}

// Health is the short form: required dependencies only, no detail.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if _, ready := h.run(ctx, true); !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

func (h *HealthHandler) run(ctx context.Context, requiredOnly bool) (map[string]string, bool) {
	checks := make(map[string]string, len(h.deps))
	ready := true
	for _, d := range h.deps {
		if requiredOnly && !d.required {
			continue
		}
		state := d.check(ctx)
		checks[d.name] = state
		if d.required && state != stateHealthy {
			ready = false
		}
	}
	return checks, ready
}
