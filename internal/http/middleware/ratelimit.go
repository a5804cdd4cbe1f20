package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type fixedWindow struct {
	start time.Time
	count int
}

// SimpleRateLimit is the per-process fixed-window limiter used when Redis is
// not configured. Counters are kept per limiter, keyed by client IP.
func SimpleRateLimit(maxRequests int, period time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	clients := make(map[string]*fixedWindow)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		w, ok := clients[ip]
		if !ok || now.Sub(w.start) > period {
			w = &fixedWindow{start: now}
			clients[ip] = w
			// drop expired windows while we hold the lock
			for k, v := range clients {
				if now.Sub(v.start) > period {
					delete(clients, k)
				}
			}
		}
		w.count++
		blocked := w.count > maxRequests
		mu.Unlock()

		if blocked {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
				"message": "Too many requests",
			})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
