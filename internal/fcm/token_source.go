package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"questkeeper_notifications/internal/domain"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// refreshMargin keeps a cached token from being used right before it expires.
	refreshMargin = time.Minute
)

// TokenCache shares access tokens between replicas. Implementations must be
// safe for concurrent use; a miss or a failing backend is never an error.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, token string, ttl time.Duration)
}

// TokenSource exchanges signed assertions for OAuth access tokens and keeps
// the current token until shortly before expiry.
type TokenSource struct {
	creds      *Credentials
	tokenURL   string
	httpClient *http.Client
	cache      TokenCache
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source. cache may be nil.
func NewTokenSource(creds *Credentials, tokenURL string, httpClient *http.Client, cache TokenCache) *TokenSource {
	if tokenURL == "" {
		tokenURL = TokenAudience
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{
		creds:      creds,
		tokenURL:   tokenURL,
		httpClient: httpClient,
		cache:      cache,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token returns a valid access token, exchanging a fresh assertion when needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expiry.Add(-refreshMargin)) {
		return s.token, nil
	}

	cacheKey := "fcm:access_token:" + s.creds.ClientEmail()
	if s.cache != nil {
		if tok, ok := s.cache.Get(ctx, cacheKey); ok {
			// remote TTL is already trimmed by refreshMargin
			s.token = tok
			s.expiry = now.Add(refreshMargin + 30*time.Second)
			return tok, nil
		}
	}

	assertion, err := s.creds.SignAssertion(now)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Op: "token exchange", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", domain.ErrProvider, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token exchange returned no access_token", domain.ErrProvider)
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = assertionTTL
	}
	s.token = tr.AccessToken
	s.expiry = now.Add(ttl)

	if s.cache != nil && ttl > refreshMargin {
		s.cache.Set(ctx, cacheKey, tr.AccessToken, ttl-refreshMargin)
	}
	return s.token, nil
}
