package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/config"
	"github.com/dealsbasket/marketplace-auth/internal/transport/http/handlers"
	"github.com/dealsbasket/marketplace-auth/internal/transport/http/middleware"
	"github.com/dealsbasket/marketplace-auth/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Auth        *usecase.AuthService
	RateLimiter *middleware.RateLimiter
	Counters    port.CounterStore
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
//
// Chain order matters: security headers run first so every response carries
// them, rate-limit rejections included; the auth event logger sits after the
// limiter so throttled requests are not counted as login failures.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.ByPath(middleware.PathRules(deps.Config.RateLimit)))
	}

	r.Use(middleware.NewAuthEventLogger(deps.Logger, deps.Counters).Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		handlers.NewAuthHandler(deps.Auth).RegisterRoutes(authGroup)
	}

	return r
}
