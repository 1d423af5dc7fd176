package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/provider"
	"github.com/utafrali/storefront/internal/provider/hosted"
	mockprovider "github.com/utafrali/storefront/internal/provider/mock"
	mongorepo "github.com/utafrali/storefront/internal/repository/mongo"
	"github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/tracing"
)

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	mongo          *mongo.Database
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
// Whatever was opened before a failing step is closed again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}
	a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, handler.ServiceName); err != nil {
		logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err = database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Initialize Redis.
	a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Initialize MongoDB catalog.
	a.mongo, err = database.NewMongoDatabase(ctx, database.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	logger.Info("connected to MongoDB", slog.String("database", cfg.MongoDatabase))

	// Initialize Kafka producer.
	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	cartTTL := time.Duration(cfg.CartTTLHours) * time.Hour
	cartCache := redisrepo.NewCartCache(a.redis, cartTTL)
	backups := redisrepo.NewBackupCache(a.redis, time.Duration(cfg.BackupTTLHours)*time.Hour)
	orders := postgres.NewOrderRepository(a.pool)
	products := mongorepo.NewProductRepository(a.mongo)
	events := event.NewProducer(a.producer, logger)

	prov, mockProv := a.newProvider()

	carts := cart.NewManager(cartCache, cartTTL, logger)
	checkoutService := service.NewCheckoutService(prov, backups, events, logger, service.CheckoutConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		Currency:      cfg.CheckoutCurrency,
	})
	reconciler := service.NewReconciler(service.NewVerifier(prov, logger), backups, orders, carts, events, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("mongo", func(ctx context.Context) error {
		return a.mongo.Client().Ping(ctx, nil)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return a.producer.Ping(ctx)
	})

	// HTTP router.
	routes := handler.RouterConfig{
		Cart:          handler.NewCartHandler(carts, products, logger),
		Checkout:      handler.NewCheckoutHandler(carts, checkoutService, reconciler, logger),
		Orders:        handler.NewOrderHandler(orders, logger),
		Health:        healthHandler,
		SecureCookies: cfg.SecureCookies,
		CheckoutRPS:   cfg.CheckoutRPS,
		CheckoutBurst: cfg.CheckoutBurst,
	}
	if mockProv != nil {
		routes.MockPay = handler.NewMockPayHandler(mockProv, logger)
	}

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(routes, logger),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newProvider builds the configured payment provider. The mock is returned
// separately so its pay page can be mounted.
func (a *App) newProvider() (provider.Provider, *mockprovider.Provider) {
	if a.cfg.PaymentProvider == config.ProviderMock {
		a.logger.Warn("using in-process mock payment provider")
		p := mockprovider.NewProvider(a.cfg.PublicBaseURL)
		return p, p
	}

	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "payment-provider",
		MaxRequests:  a.cfg.CBMaxRequests,
		Interval:     time.Duration(a.cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(a.cfg.CBTimeout) * time.Second,
		FailureRatio: a.cfg.CBFailureRatio,
		MinRequests:  a.cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(httpclient.New(hosted.ClientConfig()), cbCfg, a.logger)
	a.logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", a.cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)
	return hosted.NewProvider(cbClient, a.cfg.ProviderBaseURL, a.cfg.ProviderSecret), nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("payment_provider", a.cfg.PaymentProvider),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests, including reconciliations)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. MongoDB, Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (10s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything opened by NewApp. Unset fields are skipped.
func (a *App) closeResources() error {
	var errs []error

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close data stores.
	if a.mongo != nil {
		mongoCtx, mongoCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer mongoCancel()
		if err := a.mongo.Client().Disconnect(mongoCtx); err != nil {
			a.logger.Error("mongo disconnect error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
