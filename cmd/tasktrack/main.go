package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/tasktrack/pkg/api"
	"github.com/platinummonkey/tasktrack/pkg/async"
	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/config"
	"github.com/platinummonkey/tasktrack/pkg/httputil"
	"github.com/platinummonkey/tasktrack/pkg/idp"
	"github.com/platinummonkey/tasktrack/pkg/middleware"
	"github.com/platinummonkey/tasktrack/pkg/observability"
	"github.com/platinummonkey/tasktrack/pkg/provision"
	"github.com/platinummonkey/tasktrack/pkg/session"
	"github.com/platinummonkey/tasktrack/pkg/storage"
	"github.com/platinummonkey/tasktrack/pkg/storage/memory"
	"github.com/platinummonkey/tasktrack/pkg/storage/postgres"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("tasktrack exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    1.0,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	// released here when run fails before serving; after that the shutdown
	// manager owns them
	resources := &startupResources{logger: logger}
	defer resources.release()
	resources.add(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return observability.ShutdownOTel(shutdownCtx, otelProviders, logger)
	})

	store, db, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	resources.add(store.Close)

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, storage.RedisConfig{
			URL:        cfg.Storage.RedisURL,
			Password:   cfg.Storage.RedisPassword,
			DB:         cfg.Storage.RedisDB,
			PoolSize:   cfg.Storage.RedisPoolSize,
			MaxRetries: cfg.Storage.RedisMaxRetries,
		})
		if err != nil {
			return err
		}
		resources.add(redisClient.Close)
		logger.Info("Connected to redis")
	}

	cache := newCache(cfg.Cache, redisClient, metrics)
	if cache != nil {
		resources.add(cache.Close)
	}

	sessionOpts := []session.Option{
		session.WithMaxAge(cfg.Session.MaxAge),
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	}
	if cache != nil {
		sessionOpts = append(sessionOpts, session.WithCache(cache))
	}
	sessions := session.NewManager(store, sessionOpts...)

	var pruner *session.Pruner
	if cfg.Session.MaxAge > 0 {
		pruner, err = session.NewPruner(sessions, cfg.Session.PruneSchedule, logger)
		if err != nil {
			return err
		}
		pruner.Start()
		resources.add(func() error {
			<-pruner.Stop().Done()
			return nil
		})
	}

	verifier, err := idp.New(ctx, cfg.Identity.VerifierConfig(), metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	policy, err := provision.ParsePolicy(cfg.Session.HandlePolicy)
	if err != nil {
		return err
	}
	provisioner := provision.New(store,
		provision.WithPolicy(policy),
		provision.WithMetrics(metrics),
		provision.WithAuditLogger(auth.NewAuditLogger(logger)),
	)

	loginLimiter, userLimiter := newLimiters(ctx, cfg.RateLimit, redisClient)

	trustedProxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	server := api.NewServer(verifier, provisioner, sessions, api.Options{
		Logger:             logger,
		Metrics:            metrics,
		PathPrefix:         cfg.Server.PathPrefix,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		TrustedProxies:     trustedProxies,
		LoginLimiter:       loginLimiter,
		UserLimiter:        userLimiter,
		Tracing:            cfg.Observability.OTelEnabled,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(store, db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if db != nil {
		async.Every(ctx, logger, dbStatsInterval, "db stats", func(context.Context) error {
			metrics.RecordDBStats(db.Stats())
			return nil
		})
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		if pruner == nil {
			return nil
		}
		select {
		case <-pruner.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if cache != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return cache.Close() })
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return store.Close() })
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	resources.handOff()

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		done := async.SafeGo(ctx, logger, 0, "http server "+srv.Addr, func(context.Context) error {
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
		go func() {
			if err, failed := <-done; failed {
				serveErr <- err
				cancel()
			}
		}()
	}

	logger.WithFields(map[string]interface{}{
		"version":  version,
		"storage":  cfg.Storage.Type,
		"provider": cfg.Identity.Provider,
	}).Info("tasktrack started")

	shutdownErr := shutdown.WaitForShutdown(ctx)

	select {
	case err := <-serveErr:
		return err
	default:
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	logger.Info("tasktrack stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (storage.Store, *sql.DB, error) {
	if cfg.Type == config.StorageMemory {
		logger.Warn("Using in-memory storage; users and credentials are lost on restart")
		return memory.New(), nil, nil
	}

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:         cfg.PostgresURL,
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: cfg.PostgresMaxLifetime,
		MaxIdleTime: cfg.PostgresMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Database migrations applied")
	}

	return postgres.NewStore(db), db, nil
}

func newCache(cfg config.CacheConfig, redisClient *redis.Client, metrics *observability.Metrics) session.Cache {
	switch cfg.Type {
	case config.BackendMemory:
		return session.NewMemoryCache(cfg.Size, cfg.TTL, metrics)
	case config.BackendRedis:
		return session.NewRedisCache(redisClient, cfg.TTL, metrics)
	default:
		return nil
	}
}

func newLimiters(ctx context.Context, cfg config.RateLimitConfig, redisClient *redis.Client) (login, user middleware.Limiter) {
	if !cfg.Enabled {
		return nil, nil
	}

	loginCfg := &middleware.RateLimitConfig{RequestsPerWindow: cfg.LoginPerMinute, WindowDuration: time.Minute, BurstSize: cfg.LoginBurst}
	userCfg := &middleware.RateLimitConfig{RequestsPerWindow: cfg.UserPerMinute, WindowDuration: time.Minute, BurstSize: cfg.UserBurst}

	if cfg.Backend == config.BackendRedis {
		return middleware.NewRedisLimiter(redisClient, loginCfg, "tasktrack:ratelimit:login"),
			middleware.NewRedisLimiter(redisClient, userCfg, "tasktrack:ratelimit:user")
	}

	loginLimiter := middleware.NewMemoryLimiter(loginCfg)
	userLimiter := middleware.NewMemoryLimiter(userCfg)
	loginLimiter.StartCleanup(ctx)
	userLimiter.StartCleanup(ctx)
	return loginLimiter, userLimiter
}
