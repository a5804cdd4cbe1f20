package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"questkeeper_notifications/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort    string
	AppVersion string
	GinMode    string

	DatabaseURL      string
	DatabaseMaxConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Firebase service account and project
	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string
	FCMBaseURL          string
	OAuthTokenURL       string
	ProviderTimeout     time.Duration

	// Due sweeper
	SweepEnabled   bool
	SweepSpec      string
	SweepBatchSize int
	SweepRate      float64
	SweepLateness  time.Duration
	ClaimTTL       time.Duration

	WebhookRateLimit  int
	WebhookRateWindow time.Duration
	RequestTimeout    time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the environment; exits on missing required settings.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := Parse(os.Getenv)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// Parse builds a Config from getenv.
func Parse(getenv func(string) string) (*Config, error) {
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:         required("DATABASE_URL"),
		FirebaseProjectID:   required("FIREBASE_PROJECT_ID"),
		FirebaseClientEmail: required("FIREBASE_CLIENT_EMAIL"),
		FirebasePrivateKey:  required("FIREBASE_PRIVATE_KEY"),

		AppPort:       stringOr(getenv("APP_PORT"), "8080"),
		AppVersion:    stringOr(getenv("APP_VERSION"), "dev"),
		GinMode:       stringOr(getenv("GIN_MODE"), "release"),
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		FCMBaseURL:    getenv("FCM_BASE_URL"),
		OAuthTokenURL: getenv("OAUTH_TOKEN_URL"),
		SweepSpec:     stringOr(getenv("SWEEP_INTERVAL"), "@every 1m"),
		LogLevel:      stringOr(getenv("LOG_LEVEL"), "info"),
		LogFormat:     stringOr(getenv("LOG_FORMAT"), "text"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	var errs []error
	cfg.DatabaseMaxConns = intOr(getenv, "DATABASE_MAX_CONNS", 10, &errs)
	cfg.RedisDB = intOr(getenv, "REDIS_DB", 0, &errs)
	cfg.ProviderTimeout = time.Duration(intOr(getenv, "PROVIDER_TIMEOUT_SECONDS", 10, &errs)) * time.Second
	cfg.SweepEnabled = getenv("SWEEP_ENABLED") != "false"
	cfg.SweepBatchSize = intOr(getenv, "SWEEP_BATCH_SIZE", 100, &errs)
	cfg.SweepRate = float64(intOr(getenv, "SWEEP_RATE_PER_SEC", 20, &errs))
	cfg.SweepLateness = time.Duration(intOr(getenv, "SWEEP_MAX_LATENESS_HOURS", 6, &errs)) * time.Hour
	cfg.ClaimTTL = time.Duration(intOr(getenv, "DISPATCH_CLAIM_TTL_SECONDS", 120, &errs)) * time.Second
	cfg.WebhookRateLimit = intOr(getenv, "WEBHOOK_RATE_LIMIT", 600, &errs)
	cfg.WebhookRateWindow = time.Duration(intOr(getenv, "WEBHOOK_RATE_WINDOW_SECONDS", 60, &errs)) * time.Second
	cfg.RequestTimeout = time.Duration(intOr(getenv, "REQUEST_TIMEOUT_SECONDS", 15, &errs)) * time.Second

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stringOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// intOr parses a positive integer setting, falling back to def when unset.
func intOr(getenv func(string) string, key string, def int, errs *[]error) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected a non-negative integer, got %q", key, v))
		return def
	}
	return n
}
