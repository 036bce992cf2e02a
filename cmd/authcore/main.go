package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nextsuite/authcore/pkg/api"
	"github.com/nextsuite/authcore/pkg/audit"
	"github.com/nextsuite/authcore/pkg/authz"
	"github.com/nextsuite/authcore/pkg/catalog"
	"github.com/nextsuite/authcore/pkg/config"
	"github.com/nextsuite/authcore/pkg/directory"
	"github.com/nextsuite/authcore/pkg/entitlement"
	"github.com/nextsuite/authcore/pkg/observability"
	"github.com/nextsuite/authcore/pkg/rbac"
	"github.com/nextsuite/authcore/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting authcore")

	ctx := context.Background()

	// Tracing
	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
	}

	// Database
	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxOpenConns,
		MinConns:    cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnLifetime,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}
	logger.Info("Migrations applied")

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cache
	var cache entitlement.Cache
	var redisClient *redis.Client
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err := entitlement.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		cache = redisCache
		redisClient = redisCache.Client()
	default:
		cache = entitlement.NewMemoryCache(cfg.Cache.MaxSize, cfg.Cache.TTL)
	}
	defer cache.Close()

	// Catalog
	catalogFile, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		logger.WithError(err).Error("Failed to load catalog")
		os.Exit(1)
	}
	cat := catalog.New(catalogFile)
	logger.WithField("path", cfg.Catalog.Path).Info("Catalog loaded")

	var stopWatch func() error
	if cfg.Catalog.Watch {
		stopWatch, err = catalog.Watch(cfg.Catalog.Path, cat, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to watch catalog")
			os.Exit(1)
		}
	}

	// Audit
	dbSink, err := audit.NewDBSink(db, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create audit sink")
		os.Exit(1)
	}
	dbSink.WithMetrics(metrics)

	purger := audit.NewPurger(dbSink, cfg.Audit.RetentionDays, cfg.Audit.PurgeSchedule, logger).WithMetrics(metrics)
	if err := purger.Start(); err != nil {
		logger.WithError(err).Error("Failed to start audit purger")
		os.Exit(1)
	}

	// Core wiring
	dirStore := directory.NewStore(db)
	store := postgres.NewEntitlementStore(db)

	resolver := entitlement.NewResolver(cat, store, dirStore, cache,
		entitlement.WithAudit(dbSink),
		entitlement.WithLogger(logger),
		entitlement.WithMetrics(metrics),
	)

	index := rbac.NewIndex(rbac.BuiltinGrants(), rbac.LegacyOverrides())

	enforcer := authz.NewEnforcer(resolver, index,
		authz.WithLookupTimeout(cfg.Enforcement.LookupTimeout),
		authz.WithAudit(dbSink),
		authz.WithLogger(logger),
		authz.WithMetrics(metrics),
	)

	server := api.NewServer(enforcer, resolver, dirStore, logger,
		api.WithAuditSearch(dbSink),
		api.WithMetrics(metrics),
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		purger.Stop()
		return nil
	})
	if stopWatch != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return stopWatch()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return otelProviders.Shutdown(shutdownCtx)
		})
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
