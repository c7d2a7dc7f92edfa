// Gateway is the edge verifier: it authenticates every request against the
// token version cache and proxies the ones that pass to the upstream API.
// It never touches MongoDB; Redis and the shared signing secret are all it needs.
package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/playvault/playvault/backend/go-services/internal/config"
	"github.com/playvault/playvault/backend/go-services/internal/tokens"
	"github.com/playvault/playvault/backend/go-services/internal/verify"
	"github.com/playvault/playvault/backend/go-services/internal/versioncache"
	"github.com/playvault/playvault/backend/go-services/pkg/logger"
	"github.com/playvault/playvault/backend/go-services/pkg/metrics"
	"github.com/playvault/playvault/backend/go-services/pkg/middleware"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		logger.Fatalf("JWT_SECRET is required")
	}
	if cfg.Gateway.UpstreamURL == "" {
		logger.Fatalf("GATEWAY_UPSTREAM_URL is required")
	}

	upstream, err := url.Parse(cfg.Gateway.UpstreamURL)
	if err != nil {
		logger.Fatalf("invalid GATEWAY_UPSTREAM_URL %q: %v", cfg.Gateway.UpstreamURL, err)
	}

	// The gateway still boots if Redis is down: verification reads then see an
	// absent version and reject, which is the intended failure mode.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warnf("Redis unreachable at startup (%s:%s): %v; all tokens will be rejected until it recovers", cfg.Redis.Host, cfg.Redis.Port, err)
	}

	signer := tokens.NewSigner(cfg.JWT)
	verifier := verify.NewVerifier(signer, versioncache.NewRedisCache(rdb))

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Errorf("upstream proxy error for %s %s: %v", r.Method, r.URL.Path, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"isSuccess":false,"message":"Upstream unavailable.","error":"BadGateway"}`))
	}

	forward := func(c *gin.Context) {
		// the upstream trusts this header because only the gateway can reach it
		c.Request.Header.Set("X-User-Id", c.GetString(middleware.IdentityKey))
		proxy.ServeHTTP(c.Writer, c.Request)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

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
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"dependencies": gin.H{"redis": false}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dependencies": gin.H{"redis": true}})
	})

	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	authmw := middleware.AuthMiddleware(verifier)
	r.Any("/api/*path", authmw, forward)
	r.Any("/hubs/*path", authmw, forward)
	r.Any("/friends-api/hubs/*path", authmw, forward)

	addr := ":" + cfg.Gateway.Port
	logger.Infof("gateway listening on %s, proxying to %s", addr, upstream)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}
