package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	echoapi "github.com/heliowatt/heliowatt/api/echo"
	"github.com/heliowatt/heliowatt/cache"
	redisCache "github.com/heliowatt/heliowatt/cache/redis"
	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	"github.com/heliowatt/heliowatt/inmem"
	"github.com/heliowatt/heliowatt/log"
	"github.com/heliowatt/heliowatt/mongodb"
	"github.com/heliowatt/heliowatt/providers"
	"github.com/heliowatt/heliowatt/services"
	"github.com/heliowatt/heliowatt/tracing"
)

var (
	appLogger      log.Logger
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)
	ctx := context.Background()
	appLogger.Info(ctx, "Starting heliowatt server...", map[string]interface{}{
		"http_port":    cfg.HTTPPort,
		"storage":      cfg.Storage,
		"log_level":    logLevel.String(),
		"otel_service": cfg.OtelService,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelService)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}
	tracerProvider = tp

	// Repositories: mongo for deployments, memory for local development.
	var (
		credRepo    domain.CredentialRepository
		deviceRepo  domain.DeviceRepository
		sessionRepo domain.SessionRepository
	)
	switch cfg.Storage {
	case "memory":
		credRepo = inmem.NewCredentialRepository()
		deviceRepo = inmem.NewDeviceRepository()
		sessionRepo = inmem.NewSessionRepository()
		appLogger.Warn(ctx, "Using in-memory storage, all state is lost on restart")
	default:
		if initErr := mongodb.Init(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
			appLogger.Fatal(ctx, "Failed to connect to MongoDB", initErr)
		}
		db, dbErr := mongodb.DB()
		if dbErr != nil {
			appLogger.Fatal(ctx, "Failed to get MongoDB database handle", dbErr)
		}
		if credRepo, err = mongodb.NewCredentialRepository(ctx, db); err != nil {
			appLogger.Fatal(ctx, "Failed to initialize credential repository", err)
		}
		if deviceRepo, err = mongodb.NewDeviceRepository(ctx, db); err != nil {
			appLogger.Fatal(ctx, "Failed to initialize device repository", err)
		}
		if sessionRepo, err = mongodb.NewSessionRepository(ctx, db); err != nil {
			appLogger.Fatal(ctx, "Failed to initialize session repository", err)
		}
	}

	// Credential cache: redis when configured, otherwise in-process TTL cache.
	var credCache cache.CredentialCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			appLogger.Fatal(ctx, "Failed to connect to redis", pingErr)
		}
		credCache = redisCache.NewCredentialCache(redisClient, "heliowatt")
	} else {
		memCache := cache.NewMemoryCredentialCache()
		defer memCache.Stop()
		credCache = memCache
	}

	registry := providers.NewRegistry(cfg)
	tokenService := services.NewTokenService(credRepo, registry, credCache, appLogger)
	claimService := services.NewClaimService(deviceRepo, appLogger)
	aggregateService := services.NewAggregateService(tokenService, deviceRepo, registry, appLogger)

	e := echo.New()
	e.HideBanner = true
	api := echoapi.NewAPI(tokenService, claimService, aggregateService, registry, sessionRepo)
	api.RegisterRoutes(e)

	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if serveErr := e.Start(":" + cfg.HTTPPort); serveErr != nil && serveErr != http.ErrServerClosed {
			appLogger.Fatal(ctx, "Failed to start HTTP server", serveErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v, shutting down...", sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
		}
	}
	if cfg.Storage != "memory" {
		if err := mongodb.Disconnect(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "MongoDB disconnect error", err)
		}
	}
	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
