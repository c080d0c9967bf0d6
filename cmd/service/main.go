package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/daily-digest/internal/background"
	"github.com/kjstillabower/daily-digest/internal/cache"
	"github.com/kjstillabower/daily-digest/internal/client"
	"github.com/kjstillabower/daily-digest/internal/config"
	"github.com/kjstillabower/daily-digest/internal/dashboard"
	httphandler "github.com/kjstillabower/daily-digest/internal/http"
	"github.com/kjstillabower/daily-digest/internal/lifecycle"
	"github.com/kjstillabower/daily-digest/internal/observability"
	"github.com/kjstillabower/daily-digest/internal/render"
	"github.com/kjstillabower/daily-digest/internal/service"
)

func main() {
	env := pflag.String("env", "", "config environment; reads config/<env>.yaml (default $ENV_NAME or dev)")
	port := pflag.String("port", "", "listen port, overrides server.port")
	pflag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*env)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if *port != "" {
		cfg.ServerPort = *port
	}
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	newsClient, err := client.NewGuardianClient(cfg.NewsAPIKey, cfg.NewsAPIURL, cfg.NewsAPITimeout, cfg.NewsPageSize, cfg.NewsMaxItems)
	if err != nil {
		logger.Fatal("news client", zap.Error(err))
	}
	photoClient, err := client.NewUnsplashClient(cfg.PhotosAPIKey, cfg.PhotosAPIURL, cfg.PhotosAPITimeout, cfg.PhotosCount)
	if err != nil {
		logger.Fatal("photo client", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.CacheInMemory:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	default:
		logger.Info("cache backend: none")
	}
	digest := service.NewDigestService(weatherClient, newsClient, photoClient, cacheSvc, cfg.CacheTTL, logger)

	renderer, err := render.New(cfg.DisplayLocation)
	if err != nil {
		logger.Fatal("templates", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rotator, err := background.NewRotator(cfg.BackgroundImages, background.HTTPPreloader{
		Client: &http.Client{Timeout: 30 * time.Second},
	}, cfg.BackgroundPreloadTimeout, logger)
	if err != nil {
		logger.Fatal("background rotator", zap.Error(err))
	}
	go rotator.Run(ctx, cfg.BackgroundInterval)

	defaults := dashboard.Defaults{
		City:                cfg.DefaultCity,
		NewsCategory:        cfg.DefaultNewsCategory,
		DefaultNewsCategory: cfg.DefaultGridNewsCategory,
		PhotoSearchTerm:     cfg.DefaultPhotoSearchTerm,
	}
	pages := dashboard.NewRegistry(ctx, dashboard.PageOptions{
		Fetcher:        digest,
		Renderer:       renderer,
		Defaults:       defaults,
		MaxQueryLength: cfg.QueryMaxLength,
		Logger:         logger,
	}, cfg.PageTTL, cfg.MaxPages)
	go pages.Run(ctx, cfg.PageSweepInterval)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	handler := httphandler.NewHandler(httphandler.HandlerConfig{
		Pages:          pages,
		Rotator:        rotator,
		Renderer:       renderer,
		Fetcher:        digest,
		Defaults:       defaults,
		MaxQueryLength: cfg.QueryMaxLength,
		Health:         healthConfig,
		Logger:         logger,
	})
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	pages.CloseAll()

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
