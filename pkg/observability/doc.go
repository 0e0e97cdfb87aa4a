// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLevel("info"), os.Stdout)
//	logger.WithField("subject", sub).Warn("local token lookup failed")
//
// Request-scoped loggers are placed in the context by httputil.LoggingMiddleware:
//
//	observability.FromContext(r.Context()).Info("login succeeded")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuth("session", observability.OutcomeSuccess)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(store, db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "tasktrack",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
