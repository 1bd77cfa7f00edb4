package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jia-app/dunningservice/internal/audit"
	"github.com/jia-app/dunningservice/internal/auth"
	"github.com/jia-app/dunningservice/internal/cache"
	"github.com/jia-app/dunningservice/internal/config"
	"github.com/jia-app/dunningservice/internal/dunning/repo/postgres"
	"github.com/jia-app/dunningservice/internal/dunning/usecase"
	"github.com/jia-app/dunningservice/internal/events"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
	"github.com/jia-app/dunningservice/internal/notifications"
	"github.com/jia-app/dunningservice/internal/ratelimit"
	"github.com/jia-app/dunningservice/internal/server"
	"github.com/jia-app/dunningservice/internal/shared/db"
	"github.com/jia-app/dunningservice/internal/tracing"
	"github.com/jia-app/dunningservice/internal/webhook"
)

// App represents the application
type App struct {
	config          *config.Config
	logger          *zap.Logger
	dbPool          *db.Pool
	cache           *cache.Cache
	publisher       events.DunningPublisher
	stopTracing     func()
	httpServer      *server.HTTPServer
	grpcServer      *server.GRPCServer
	metricsServer   *metrics.Server
	digestScheduler *usecase.DigestScheduler
	dunning         *usecase.DunningHandler
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	if err := log.Init(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	ctx := context.Background()
	logger := log.L(ctx)

	logger.Info("Initializing dunning service application",
		zap.String("app_name", cfg.AppName),
		zap.String("environment", cfg.Environment),
		zap.String("http_address", cfg.HTTP.Address),
		zap.String("grpc_address", cfg.GRPC.Address))

	stopTracing, err := tracing.Init(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.AppName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRatio:  cfg.Tracing.SamplingRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a := &App{config: cfg, logger: logger, stopTracing: stopTracing}
	if err := a.wire(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.config

	dbPool, err := NewDatabasePool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.dbPool = dbPool

	store, err := postgres.NewStoreWithPool(dbPool.Pool)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	// Redis is optional
	redisCache, err := NewRedisCache(ctx, cfg)
	if err != nil {
		a.logger.Warn("Redis initialization failed, continuing without Redis",
			zap.Error(err),
			zap.String("redis_addr", cfg.Redis.Addr))
		redisCache = nil
	}
	a.cache = redisCache

	publisher, err := NewPublisher(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	a.publisher = publisher

	sessions, err := auth.NewSessionTokenValidator(cfg.Auth.AppAPISecret, cfg.Auth.AppAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create session token validator: %w", err)
	}

	commerceClient := NewCommerceClient(cfg, store.Sessions(), a.logger)
	sender := NewEmailSender(cfg)
	customerEmails := notifications.NewCustomerSendEmailService(sender)
	merchantEmails := notifications.NewMerchantSendEmailService(sender)

	var (
		settingsCache usecase.SettingsCache
		digestQueue   usecase.DigestQueue
		deduper       server.DeliveryDeduper
		limiter       server.RequestLimiter
	)
	checks := map[string]server.HealthCheck{"postgres": dbPool.Health}
	if redisCache != nil {
		settingsCache = cache.NewSettingsCache(redisCache, cfg.Redis.SettingsCacheTTL)
		digestQueue = cache.NewInventoryDigest(redisCache)
		deduper = cache.NewDeliveryDeduper(redisCache, webhookDedupeTTL)
		checks["redis"] = redisCache.Ping
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewRedisRateLimiter(redisCache.Client(), ratelimit.Config{
				Limit:  cfg.RateLimit.RequestsPerMinute,
				Window: time.Minute,
			}, a.logger)
		}
	}

	trackers := store.Trackers()
	settingsService := usecase.NewSettingsService(commerceClient, settingsCache)
	orchestrator := usecase.NewOrchestrator(
		trackers,
		usecase.NewRetryDunningService(commerceClient),
		usecase.NewFinalAttemptDunningService(commerceClient, customerEmails, merchantEmails),
		usecase.NewInventoryNotifier(merchantEmails, digestQueue),
	)
	auditTrail := audit.NewManager(audit.NewZapAuditLogger(a.logger))
	dunningHandler := usecase.NewDunningHandler(commerceClient, settingsService, orchestrator, trackers, publisher).
		WithAuditor(auditTrail)
	a.dunning = dunningHandler

	if digestQueue != nil {
		a.digestScheduler = usecase.NewDigestScheduler(digestQueue, merchantEmails, cfg.Digest.Interval)
	}

	a.httpServer = server.NewHTTPServer(cfg.HTTP, server.HTTPDeps{
		Dunning:   dunningHandler,
		Settings:  settingsService,
		Webhooks:  webhook.NewValidator(cfg.Auth.AppAPISecret),
		Sessions:  sessions,
		Deduper:   deduper,
		Limiter:   limiter,
		Audit:     auditTrail,
		Readiness: dbPool.Health,
	}, a.logger)
	a.grpcServer = server.NewGRPCServer(cfg.GRPC, a.logger, checks)
	a.metricsServer = metrics.NewServer(cfg.HTTP.MetricsAddress, a.logger)

	return nil
}

// Dunning returns the wired dunning handler for offline callers such as the replay tool
func (a *App) Dunning() *usecase.DunningHandler {
	return a.dunning
}

// Run starts every server and blocks until ctx is done or one of them fails
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting dunning service application")

	g, gctx := errgroup.WithContext(ctx)

	a.grpcServer.StartHealthMonitoring(gctx)
	if a.digestScheduler != nil {
		a.digestScheduler.Start(gctx)
	}

	g.Go(func() error {
		if err := a.httpServer.Start(gctx, a.config.HTTP.ShutdownTimeout); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.grpcServer.Serve(gctx); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.metricsServer.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.HTTP.ShutdownTimeout)
		defer cancel()
		return a.metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown releases every client the application holds
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down dunning service application")

	if a.digestScheduler != nil {
		a.digestScheduler.Stop()
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	if a.stopTracing != nil {
		a.stopTracing()
	}

	a.logger.Info("Application shutdown complete")
	_ = a.logger.Sync()
	return nil
}
