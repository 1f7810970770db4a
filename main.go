package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ravikumarmistry/quix/handlers"
	"github.com/ravikumarmistry/quix/internal/config"
	"github.com/ravikumarmistry/quix/internal/container"
	"github.com/ravikumarmistry/quix/internal/database"
	"github.com/ravikumarmistry/quix/internal/export"
	"github.com/ravikumarmistry/quix/internal/oidc"
	"github.com/ravikumarmistry/quix/internal/storage"
	"github.com/ravikumarmistry/quix/internal/store"
	"github.com/ravikumarmistry/quix/internal/tokens"
	"github.com/ravikumarmistry/quix/pkg/logger"
	"github.com/ravikumarmistry/quix/pkg/metrics"
	"github.com/ravikumarmistry/quix/pkg/middleware"
)

var startTime = time.Now()

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetOutput(os.Stdout, cfg.Log.Format)
	logger.Infof("config loaded: driver=%s containers=%d redis=%v minio=%v", cfg.Store.Driver, len(cfg.Containers), cfg.Redis.Host != "", cfg.MinIO.Enabled())

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := database.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			logger.Warnf("closing store: %v", err)
		}
	}()

	registry, err := container.NewRegistry(cfg.Containers...)
	if err != nil {
		logger.Fatalf("invalid container configuration: %v", err)
	}
	router := container.NewRouter(backend.DB, registry)
	if err := router.Warm(ctx); err != nil {
		// unprovisioned types are retried on first use
		logger.Warnf("container warm-up incomplete: %v", err)
	}
	engine := store.New(router)

	r := gin.New()

	// Lightweight CORS middleware: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(middleware.RequestLogger(), gin.Recovery())

	checks := map[string]handlers.ReadinessCheck{"store": backend.Ping}

	var redisClient *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("connected to Redis at %s", addr)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		defer redisClient.Close()
	}

	var verifier middleware.Verifier
	switch {
	case cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID != "":
		ver, err := oidc.NewVerifier(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID)
		if err != nil {
			logger.Fatalf("failed to initialize OIDC verifier: %v", err)
		}
		verifier = ver
		logger.Infof("authenticating with OIDC issuer %s", cfg.OIDC.IssuerURL)
	case cfg.JWT.Secret != "":
		mgr, err := tokens.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
		if err != nil {
			logger.Fatalf("failed to initialize token manager: %v", err)
		}
		verifier = mgr
		logger.Infof("authenticating with HS256 tokens issued by %s", cfg.JWT.Issuer)
	default:
		logger.Warnf("no OIDC issuer or JWT_SECRET configured; the API is unauthenticated")
	}

	var exporter handlers.Exporter
	if cfg.MinIO.Enabled() {
		sink, err := storage.NewMinIOStorage(ctx, &cfg.MinIO)
		if err != nil {
			logger.Warnf("export disabled: %v", err)
		} else {
			exporter = export.New(engine, sink)
			logger.Infof("exports go to bucket %s", cfg.MinIO.Bucket)
		}
	}

	handlers.RegisterHealthRoutes(r, startTime, checks)
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	if verifier != nil {
		api.Use(middleware.AuthMiddleware(verifier))
	}
	// limit after auth so authenticated callers get per-subject buckets
	if cfg.RateLimit.RPS > 0 {
		if redisClient != nil {
			api.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handlers.NewEntityHandler(engine, exporter).Register(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting quix on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
