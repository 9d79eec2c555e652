package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/payrecon/server/internal/domain/payment"
	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/domain/subscription"

	// Inbound adapters (HTTP handlers)
	paymenthttp "github.com/payrecon/server/internal/adapter/inbound/http/payment"

	// Outbound adapters
	"github.com/payrecon/server/internal/adapter/outbound/gateway"
	"github.com/payrecon/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/payrecon/server/internal/adapter/outbound/redis"
	s3adapter "github.com/payrecon/server/internal/adapter/outbound/s3"
	"github.com/payrecon/server/internal/adapter/outbound/token"
	"github.com/payrecon/server/internal/port/outbound"

	// Shared infrastructure
	"github.com/payrecon/server/internal/infra/events"
	"github.com/payrecon/server/internal/infra/httpclient"
	sharedcache "github.com/payrecon/server/internal/shared/cache"
	"github.com/payrecon/server/internal/shared/config"
	"github.com/payrecon/server/internal/shared/database"
	"github.com/payrecon/server/internal/shared/logger"
	"github.com/payrecon/server/internal/utils/metrics"
	"github.com/payrecon/server/internal/utils/middleware"
	"github.com/payrecon/server/migrations"
)

// healthTimeout bounds the dependency checks behind /health.
const healthTimeout = 2 * time.Second

// App wires the reconciliation engine together.
type App struct {
	config   *config.Config
	db       *gorm.DB
	redis    goredis.UniversalClient
	router   *gin.Engine
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	jwt       outbound.JWTPort
	gateways  *gateway.Registry
	activator *subscription.Activator

	// Domain services
	orchestrator *payment.Orchestrator
	ingestion    *payment.IngestionService
	recovery     *payment.RecoveryScheduler
	cleanup      *payment.CleanupScheduler

	// Cleanup functions
	cleanupFuncs []func()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		config:       cfg,
		logger:       zapLog,
		registry:     registry,
		metrics:      metrics.NewWithRegisterer("payrecon", registry),
		cleanupFuncs: make([]func(), 0),
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	// Initialize domains with adapters
	if err := app.initDomains(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init domains: %w", err)
	}

	// Initialize router and routes
	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// initInfrastructure initializes database and cache connections.
// Unlike a cache, Redis holds replay receipts here, so it is mandatory.
func (a *App) initInfrastructure() error {
	if a.config.Database.AutoMigrate {
		if err := database.Migrate(&a.config.Database, migrations.FS); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		a.logger.Info("database migrations applied")
	}

	db, err := database.New(&a.config.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.db = db

	redisClient, err := sharedcache.NewRedisClient(context.Background(), &a.config.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	return nil
}

// initDomains builds the payment core in dependency order.
func (a *App) initDomains() error {
	// Outbound adapters
	intentDB := postgres.NewPaymentIntentAdapter(a.db)
	entitlementDB := postgres.NewEntitlementAdapter(a.db)
	planDB := postgres.NewPlanAdapter(a.db)
	txAdapter := postgres.NewTransactionAdapter(a.db)

	a.jwt = token.NewJWTManager(&token.JWTConfig{
		Secret: a.config.Auth.JWTSecret,
		Issuer: a.config.Auth.Issuer,
	})

	gateways, err := a.initGateways()
	if err != nil {
		return fmt.Errorf("init gateways: %w", err)
	}
	a.gateways = gateways

	guard := security.NewGuard(
		redisadapter.NewWebhookReceiptStore(a.redis),
		redisadapter.NewRateCounter(a.redis),
		&security.Config{
			RateLimitWindow: a.config.Security.RateLimitWindow,
			ReceiptTTL:      a.config.Security.ReceiptTTL,
		},
	)
	lock := redisadapter.NewDistributedLock(a.redis)

	// Events
	bus := events.NewBus(a.logger.Named("events"))
	bus.Register(events.NewPaymentNotifier(a.logger.Named("notify")))

	// Shared transition path
	a.activator = subscription.NewActivator(entitlementDB, a.logger.Named("subscription"))
	transitions := payment.NewTransitioner(intentDB, txAdapter, a.activator, bus, a.metrics, a.logger.Named("transition"))
	if a.config.Audit.Enabled {
		recorder, err := a.initAudit()
		if err != nil {
			return fmt.Errorf("init audit: %w", err)
		}
		transitions = transitions.WithAudit(recorder)
	}

	a.orchestrator = payment.NewOrchestrator(
		planDB,
		intentDB,
		gateways,
		guard,
		transitions,
		&payment.Config{
			MaxAttemptsPerWindow:   a.config.Payment.MaxAttemptsPerWindow,
			SecondaryAuthThreshold: a.config.Payment.SecondaryAuthThreshold,
		},
		a.metrics,
		a.logger.Named("orchestrator"),
	)

	a.ingestion = payment.NewIngestionService(gateways, intentDB, guard, transitions, a.metrics, a.logger.Named("ingestion"))

	a.recovery = payment.NewRecoveryScheduler(
		intentDB,
		gateways,
		transitions,
		lock,
		&payment.RecoveryConfig{
			Interval:        a.config.Recovery.Interval,
			GracePeriod:     a.config.Recovery.GracePeriod,
			Retention:       a.config.Recovery.Retention,
			ProviderTimeout: a.config.Recovery.ProviderTimeout,
			BatchSize:       a.config.Recovery.BatchSize,
			LockTTL:         a.config.Recovery.LockTTL,
		},
		a.metrics,
		a.logger.Named("recovery"),
	)

	a.cleanup = payment.NewCleanupScheduler(
		intentDB,
		transitions,
		lock,
		&payment.CleanupConfig{
			Interval:     a.config.Cleanup.Interval,
			AbandonAfter: a.config.Cleanup.AbandonAfter,
			ReasonCode:   a.config.Cleanup.ReasonCode,
			BatchSize:    a.config.Cleanup.BatchSize,
			LockTTL:      a.config.Cleanup.LockTTL,
		},
		a.metrics,
		a.logger.Named("cleanup"),
	)

	return nil
}

// initGateways registers every enabled provider behind a circuit breaker.
func (a *App) initGateways() (*gateway.Registry, error) {
	providers := a.config.Providers
	client := httpclient.New(a.config.HTTPClient)
	breaker := &gateway.BreakerConfig{
		FailureThreshold: providers.Breaker.FailureThreshold,
		Interval:         providers.Breaker.Interval,
		Timeout:          providers.Breaker.Timeout,
	}
	breakerLog := a.logger.Named("breaker")

	var enabled []outbound.PaymentGatewayPort

	if providers.CardRedirect.Enabled {
		enabled = append(enabled, gateway.NewCardRedirectGateway(&gateway.CardRedirectConfig{
			CheckoutURL:   providers.CardRedirect.CheckoutURL,
			APIURL:        providers.CardRedirect.APIURL,
			MerchantID:    providers.CardRedirect.MerchantID,
			PrivateKey:    providers.CardRedirect.PrivateKey,
			WebhookSecret: providers.CardRedirect.WebhookSecret,
		}, client))
	}

	if providers.ChainSettlement.Enabled {
		enabled = append(enabled, gateway.NewChainSettlementGateway(&gateway.ChainSettlementConfig{
			APIURL:                providers.ChainSettlement.APIURL,
			DepositAddress:        providers.ChainSettlement.DepositAddress,
			PrivateKey:            providers.ChainSettlement.PrivateKey,
			WebhookSecret:         providers.ChainSettlement.WebhookSecret,
			RequiredConfirmations: providers.ChainSettlement.RequiredConfirmations,
		}, client))
	}

	if providers.Stripe.Enabled {
		enabled = append(enabled, gateway.NewStripeGateway(&gateway.StripeConfig{
			SecretKey:     providers.Stripe.SecretKey,
			WebhookSecret: providers.Stripe.WebhookSecret,
		}))
	}

	if providers.Alipay.Enabled {
		alipayGateway, err := gateway.NewAlipayGateway(&gateway.AlipayConfig{
			AppID:           providers.Alipay.AppID,
			PrivateKey:      providers.Alipay.PrivateKey,
			AlipayPublicKey: providers.Alipay.AlipayPublicKey,
			IsProd:          providers.Alipay.IsProd,
			NotifyURL:       providers.Alipay.NotifyURL,
			ReturnURL:       providers.Alipay.ReturnURL,
		})
		if err != nil {
			return nil, fmt.Errorf("alipay: %w", err)
		}
		enabled = append(enabled, alipayGateway)
	}

	registry := gateway.NewRegistry()
	for _, g := range enabled {
		registry.Register(gateway.WithBreaker(g, breaker, a.metrics, breakerLog))
		a.metrics.SetCircuitState(g.Provider().String(), 0)
	}

	if len(enabled) == 0 {
		a.logger.Warn("no payment providers enabled")
	} else {
		a.logger.Info("payment providers registered", zap.Any("providers", registry.Providers()))
	}
	return registry, nil
}

// initAudit builds the encrypted snapshot recorder.
func (a *App) initAudit() (*payment.AuditRecorder, error) {
	sealer, err := security.NewSealer(a.config.Security.AtRestSecret)
	if err != nil {
		return nil, fmt.Errorf("init sealer: %w", err)
	}

	client, err := s3adapter.NewClient(context.Background(), &s3adapter.Config{
		Endpoint:        a.config.Audit.Endpoint,
		Region:          a.config.Audit.Region,
		AccessKeyID:     a.config.Audit.AccessKeyID,
		SecretAccessKey: a.config.Audit.SecretAccessKey,
		Bucket:          a.config.Audit.Bucket,
		Prefix:          a.config.Audit.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	archive := s3adapter.NewAuditArchive(client, a.config.Audit.Bucket, a.config.Audit.Prefix)
	return payment.NewAuditRecorder(sealer, archive), nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger.Named("http")))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(a.config.Server.AllowedOrigins)))

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return r
}

// registerRoutes registers all HTTP routes.
func (a *App) registerRoutes() {
	// Provider webhooks authenticate by signature, not by token.
	paymenthttp.NewWebhookHandler(a.ingestion).RegisterRoutes(a.router)

	v1 := a.router.Group("/api/v1")
	v1.Use(middleware.RequireAuth(a.jwt))

	paymenthttp.NewIntentHandler(a.orchestrator).RegisterRoutes(v1)
	paymenthttp.NewSubscriptionHandler(a.activator).RegisterRoutes(v1)

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	paymenthttp.NewAdminHandler(a.orchestrator, a.recovery).RegisterRoutes(admin)
}

// health reports whether the stores the core cannot run without are reachable.
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	status := http.StatusOK

	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// Start launches the background schedulers. They stop when ctx is done or
// when Stop is called.
func (a *App) Start(ctx context.Context) {
	if a.config.Recovery.Enabled {
		a.recovery.Start(ctx)
		a.cleanupFuncs = append(a.cleanupFuncs, a.recovery.Stop)
		a.logger.Info("recovery scheduler started", zap.Duration("interval", a.config.Recovery.Interval))
	}
	if a.config.Cleanup.Enabled {
		a.cleanup.Start(ctx)
		a.cleanupFuncs = append(a.cleanupFuncs, a.cleanup.Stop)
		a.logger.Info("cleanup scheduler started", zap.Duration("interval", a.config.Cleanup.Interval))
	}
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	// Run cleanup functions
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
	a.cleanupFuncs = nil

	// Close Redis connection
	if a.redis != nil {
		_ = a.redis.Close()
	}

	// Close database connection
	if a.db != nil {
		_ = database.Close(a.db)
	}

	// Sync zap logger
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
