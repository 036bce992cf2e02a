// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing
// for the authorization core.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("entitlement override applied")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.DecisionsTotal.WithLabelValues("permission_denied").Inc()
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/authz: enforcement decisions instrumented by this package
package observability
