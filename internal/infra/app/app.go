package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/config"
	"github.com/dealsbasket/marketplace-auth/internal/infra/database"
	kafkainfra "github.com/dealsbasket/marketplace-auth/internal/infra/kafka"
	"github.com/dealsbasket/marketplace-auth/internal/infra/logger"
	redisinfra "github.com/dealsbasket/marketplace-auth/internal/infra/redis"
	"github.com/dealsbasket/marketplace-auth/internal/infra/security"
	postgresrepo "github.com/dealsbasket/marketplace-auth/internal/repository/postgres"
	redisrepo "github.com/dealsbasket/marketplace-auth/internal/repository/redis"
	"github.com/dealsbasket/marketplace-auth/internal/transport/http/middleware"
	"github.com/dealsbasket/marketplace-auth/internal/transport/http/routes"
	"github.com/dealsbasket/marketplace-auth/internal/usecase"
)

// Application owns the wired service graph and the HTTP server lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *database.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	codec, err := security.NewCodec(cfg.JWT.Secret)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	// Redis is optional. Without it the blacklist and rate-limit counters
	// stay in-process, which is only correct for a single instance.
	var (
		redisClient *redisinfra.Client
		blacklist   port.RevocationStore
		counters    port.CounterStore
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		blacklist = redisrepo.NewRevocationRepository(redisClient.Client(), cfg.Redis.BlacklistPrefix)
		counters = redisrepo.NewCounterRepository(redisClient.Client(), cfg.Redis.CounterPrefix)
	} else {
		log.Info("redis disabled, using in-process revocation and counter stores")
		blacklist = security.NewBlacklist()
		counters = security.NewFixedWindowCounter()
	}

	users := postgresrepo.NewUserRepository(pool.Pool())

	var (
		producer       *kafkainfra.Producer
		eventPublisher port.EventPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	tokenService, err := usecase.NewTokenService(cfg.JWT, codec, blacklist, users, log)
	if err != nil {
		closeAll(pool, redisClient, producer)
		return nil, fmt.Errorf("init token service: %w", err)
	}
	tokenService.WithEventPublisher(eventPublisher)

	authService, err := usecase.NewAuthService(tokenService, users, log)
	if err != nil {
		closeAll(pool, redisClient, producer)
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	authService.WithEventPublisher(eventPublisher)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: cfg.Telemetry.MetricsNamespace,
	})
	if err != nil {
		closeAll(pool, redisClient, producer)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(counters, log)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		RateLimiter: rateLimiter,
		Counters:    counters,
		Metrics:     metrics,
		Database:    pool,
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	engine := routes.Register(deps)

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer closeAll(a.pool, a.redis, a.producer)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func closeAll(pool *database.Pool, redisClient *redisinfra.Client, producer *kafkainfra.Producer) {
	if producer != nil {
		_ = producer.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		pool.Close()
	}
}
