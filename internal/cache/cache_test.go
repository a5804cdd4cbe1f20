package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

func TestConnectDisabledWithoutAddr(t *testing.T) {
	if c := Connect("", "", 0); c != nil {
		t.Fatal("expected nil client for empty address")
	}
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestTokenCacheAndClaims(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	client := Connect(addr, os.Getenv("REDIS_PASSWORD"), 0)
	if client == nil {
		t.Skip("redis unavailable")
	}
	defer client.Close()
	ctx := context.Background()

	suffix := strconv.FormatInt(time.Now().UnixNano(), 10)

	tc := NewTokenCache(client)
	if _, ok := tc.Get(ctx, "test:token:"+suffix); ok {
		t.Fatal("unexpected cache hit")
	}
	tc.Set(ctx, "test:token:"+suffix, "ya29.x", time.Minute)
	if tok, ok := tc.Get(ctx, "test:token:"+suffix); !ok || tok != "ya29.x" {
		t.Fatalf("get = %q %v", tok, ok)
	}

	claims := NewDispatchClaims(client, time.Minute)
	id := time.Now().UnixNano()
	ok, err := claims.Claim(ctx, id)
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	ok, err = claims.Claim(ctx, id)
	if err != nil || ok {
		t.Fatalf("second claim should fail: %v %v", ok, err)
	}
	if err := claims.Release(ctx, id); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = claims.Claim(ctx, id)
	if err != nil || !ok {
		t.Fatalf("claim after release: %v %v", ok, err)
	}
	claims.Release(ctx, id)
}
