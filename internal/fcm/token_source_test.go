package fcm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"questkeeper_notifications/internal/domain"
)

type memCache struct {
	mu   sync.Mutex
	vals map[string]string
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok
}

func (m *memCache) Set(_ context.Context, key, token string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = token
	m.ttls[key] = ttl
}

func tokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != jwtBearerGrant {
			t.Errorf("grant_type = %q", got)
		}
		if r.PostForm.Get("assertion") == "" {
			t.Error("missing assertion")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ya29.test","expires_in":3600,"token_type":"Bearer"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testCredentials(t *testing.T) *Credentials {
	t.Helper()
	_, pemText := rsaKey(t)
	creds, err := NewCredentials("svc@example.com", pemText)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	return creds
}

func TestTokenSourceCachesInMemory(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls)
	ts := NewTokenSource(testCredentials(t), srv.URL, srv.Client(), nil)

	for i := 0; i < 3; i++ {
		tok, err := ts.Token(context.Background())
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		if tok != "ya29.test" {
			t.Fatalf("token = %q", tok)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one exchange, got %d", calls)
	}
}

func TestTokenSourceRefreshesBeforeExpiry(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls)
	ts := NewTokenSource(testCredentials(t), srv.URL, srv.Client(), nil)

	now := time.Now()
	ts.now = func() time.Time { return now }
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}

	// inside the refresh margin of a 1h token
	now = now.Add(time.Hour - 30*time.Second)
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected a refresh, got %d exchanges", calls)
	}
}

func TestTokenSourceSharesThroughCache(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls)
	cache := newMemCache()
	creds := testCredentials(t)

	first := NewTokenSource(creds, srv.URL, srv.Client(), cache)
	if _, err := first.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if ttl := cache.ttls["fcm:access_token:svc@example.com"]; ttl != time.Hour-refreshMargin {
		t.Fatalf("cached ttl = %v", ttl)
	}

	second := NewTokenSource(creds, srv.URL, srv.Client(), cache)
	tok, err := second.Token(context.Background())
	if err != nil || tok != "ya29.test" {
		t.Fatalf("token from cache: %q %v", tok, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("second source should not exchange, got %d calls", calls)
	}
}

func TestTokenSourceExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	ts := NewTokenSource(testCredentials(t), srv.URL, srv.Client(), nil)
	_, err := ts.Token(context.Background())
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected APIError with 400, got %v", err)
	}
}
