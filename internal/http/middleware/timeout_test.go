package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var deadline time.Time
	var hasDeadline bool
	r.GET("/slow", Timeout(50*time.Millisecond), func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		<-c.Request.Context().Done()
		c.Status(http.StatusGatewayTimeout)
	})

	start := time.Now()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

	if !hasDeadline {
		t.Fatal("handler context has no deadline")
	}
	if d := deadline.Sub(start); d > time.Second {
		t.Fatalf("deadline %v too far out", d)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("handler was not cut off, took %v", elapsed)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTimeoutZeroLeavesContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", Timeout(0), func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); ok {
			t.Error("unexpected deadline")
		}
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
