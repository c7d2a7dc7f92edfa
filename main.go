package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/playvault/playvault/backend/go-services/handlers"
	"github.com/playvault/playvault/backend/go-services/internal/auth"
	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/internal/database"
	"github.com/playvault/playvault/backend/go-services/internal/sessions"
	"github.com/playvault/playvault/backend/go-services/internal/steam"
	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/verify"
	"github.com/playvault/playvault/backend/go-services/internal/versioncache"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
	"github.com/playvault/playvault/backend/go-services/pkg/metrics"
	"github.com/playvault/playvault/backend/go-services/pkg/middleware"
)

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		logger.Fatalf("JWT_SECRET is required")
	}
	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required")
	}
	if cfg.Redis.Host == "" {
		logger.Fatalf("REDIS_HOST is required: issuance is fail-closed on the version cache")
	}

	// Redis backs the version cache and the Steam profile cache. Issuance
	// must not start without it: a login that cannot write the version
	// cache would hand out tokens the gateway rejects.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatalf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
	}
	logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)

	mongoClient, err := database.ConnectMongo(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		logger.Fatalf("failed to connect to MongoDB: %v", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	logger.Infof("connected to MongoDB database %s", cfg.MongoDB.Database)

	sessionCol := mongoClient.Database(cfg.MongoDB.Database).Collection("sessions")
	store := sessions.NewMongoRepository(sessionCol)
	cache := versioncache.NewRedisCache(rdb)
	signer := tokens.NewSigner(cfg.JWT)
	authSvc := auth.NewService(store, cache, signer, cfg.JWT.RefreshTokenTTL)
	verifier := verify.NewVerifier(signer, cache)

	h := handlers.NewAuthHandler(cfg, authSvc, steam.NewOpenID(cfg.Steam), steam.NewClient(cfg.Steam, rdb), store)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{
			"mongodb": mongoClient.Ping(c.Request.Context(), nil) == nil,
			"redis":   rdb.Ping(c.Request.Context()).Err() == nil,
		}
		status := http.StatusOK
		for _, up := range deps {
			if up != true {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"dependencies": deps})
	})

	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	h.Register(r.Group("/"), middleware.AuthMiddleware(verifier))

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infof("auth service listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}
