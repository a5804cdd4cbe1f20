package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questkeeper_notifications/internal/cache"
	"questkeeper_notifications/internal/config"
	"questkeeper_notifications/internal/db"
	"questkeeper_notifications/internal/fcm"
	httpServer "questkeeper_notifications/internal/http"
	"questkeeper_notifications/internal/http/handlers"
	"questkeeper_notifications/internal/logger"
	"questkeeper_notifications/internal/repository"
	"questkeeper_notifications/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	dbPool := db.Connect(cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	defer dbPool.Close()

	rdb := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer rdb.Close()
	}

	creds, err := fcm.NewCredentials(cfg.FirebaseClientEmail, cfg.FirebasePrivateKey)
	if err != nil {
		logger.Fatal("invalid firebase credentials", "error", err)
	}

	// interfaces stay nil (not typed-nil) when Redis is off
	var tokenCache fcm.TokenCache
	var claims service.Claimer
	if rdb != nil {
		tokenCache = cache.NewTokenCache(rdb)
		claims = cache.NewDispatchClaims(rdb, cfg.ClaimTTL)
	}

	tokens := fcm.NewTokenSource(creds, cfg.OAuthTokenURL, &http.Client{Timeout: cfg.ProviderTimeout}, tokenCache)
	provider := fcm.NewClient(cfg.FCMBaseURL, cfg.FirebaseProjectID, tokens, cfg.ProviderTimeout)

	scheduleRepo := repository.NewScheduleRepository(dbPool)
	groupRepo := repository.NewDeviceGroupRepository(dbPool)
	profileRepo := repository.NewProfileRepository(dbPool)

	scheduler := service.NewScheduler(scheduleRepo)
	registry := service.NewRegistry(groupRepo, profileRepo, provider)
	dispatcher := service.NewDispatcher(scheduleRepo, registry, provider, claims)

	var sweeper *service.Sweeper
	if cfg.SweepEnabled {
		sweeper = service.NewSweeper(scheduleRepo, dispatcher, service.SweeperConfig{
			Spec:        cfg.SweepSpec,
			BatchSize:   cfg.SweepBatchSize,
			RatePerSec:  cfg.SweepRate,
			MaxLateness: cfg.SweepLateness,
		})
		if err := sweeper.Start(); err != nil {
			logger.Fatal("failed to start due sweeper", "spec", cfg.SweepSpec, "error", err)
		}
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler:           handlers.NewHandler(scheduler, registry, dispatcher),
		DB:                dbPool,
		Redis:             rdb,
		Version:           cfg.AppVersion,
		WebhookRateLimit:  cfg.WebhookRateLimit,
		WebhookRateWindow: cfg.WebhookRateWindow,
		RequestTimeout:    cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.RequestTimeout > 0 {
		// leave room to write the error response after the handler gives up
		srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", cfg.AppVersion)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if sweeper != nil {
		sweeper.Stop(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
