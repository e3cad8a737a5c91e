// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure for the gateway: JSON
// logging, metrics collection, liveness/readiness probes, graceful shutdown,
// and distributed tracing integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Infof("Server started on %s", addr)
//
// Context-aware logging (request ID and principal picked up automatically):
//
//	observability.FromContext(ctx).WithStage("authz").Warn("access denied")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ProxyRequestsTotal.WithLabelValues("model-registry", "200").Inc()
//
// # Health Checks
//
// Liveness always succeeds once the process is up. Readiness is gated on
// SetReady plus any registered checks:
//
//	checker := observability.NewHealthChecker()
//	checker.AddReadinessCheck("routes", table.Ready)
//	checker.SetReady()
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request ID and logging middleware
package observability
