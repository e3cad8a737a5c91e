package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/moddash/bffgate/pkg/authz"
	"github.com/moddash/bffgate/pkg/config"
	"github.com/moddash/bffgate/pkg/gateway"
	"github.com/moddash/bffgate/pkg/httputil"
	"github.com/moddash/bffgate/pkg/identity"
	"github.com/moddash/bffgate/pkg/observability"
	"github.com/moddash/bffgate/pkg/proxy"
	"github.com/moddash/bffgate/pkg/routing"
)

func main() {
	startupLog := logrus.New()
	startupLog.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		startupLog.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		startupLog.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Routing table, loaded once; a restart is required to change routes.
	table, err := routing.Load(cfg.Routing.RoutesFile)
	if err != nil {
		startupLog.WithError(err).Fatal("Failed to load routing table")
	}
	for _, rule := range table.Rules() {
		logger.Infof("Route %s -> %s (%s)", rule.PathPrefix, rule.Upstream, rule.Target().URL())
	}

	// Identity resolution
	resolver := identity.NewResolver(cfg.Identity.Strategy, cfg.Identity.PrincipalHeader, cfg.Identity.GroupsHeader)
	logger.Infof("Identity strategy: %s", cfg.Identity.Strategy)
	if cfg.Identity.Strategy == identity.StrategyInternal {
		logger.Warnf("Internal identity strategy trusts the %s header as-is; deploy only behind a gatekeeper that sets it", cfg.Identity.PrincipalHeader)
	}

	// Access evaluation
	var evaluator authz.Evaluator
	if cfg.Authz.MockMode {
		evaluator = authz.NewMockEvaluator(logger)
	} else {
		client := authz.NewKubeReviewClient(authz.KubeReviewClientOptions{
			BaseURL:             cfg.Authz.ReviewURL,
			ServiceAccountToken: cfg.Authz.ServiceAccountToken,
			Timeout:             cfg.Authz.ReviewTimeout,
		})
		evaluator = authz.NewReviewEvaluator(client, metrics)
	}

	// Proxy executor with bounded per-upstream pools. The trusted identity
	// headers are stripped before forwarding.
	executor := proxy.NewExecutor(table, proxy.Options{
		UpstreamTimeout:           cfg.Proxy.UpstreamTimeout,
		IdleConnTimeout:           cfg.Proxy.IdleConnTimeout,
		MaxConcurrencyPerUpstream: cfg.Proxy.MaxConcurrencyPerUpstream,
		StripHeaders:              []string{cfg.Identity.PrincipalHeader, cfg.Identity.GroupsHeader},
	}, metrics)

	pipeline := gateway.New(resolver, evaluator, table, executor, logger, metrics, cfg.Proxy.RequestTimeout)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
	}
	if metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(metrics, func(r *http.Request) string {
			return table.RouteLabel(r.URL.Path)
		}))
	}
	chained := httputil.Chain(middlewares...)(pipeline)

	router := mux.NewRouter()
	router.PathPrefix("/").Handler(chained)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "bffgate")
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for k8s probes
	checker := observability.NewHealthChecker()
	checker.AddReadinessCheck("routes", table.Ready)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	observability.RegisterMetricsEndpoint(healthMux, registry)

	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Gateway listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Startup is complete once both listeners are up and the table is
	// resolved; readiness flips here.
	checker.SetReady()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		startupLog.WithError(err).Error("Shutdown finished with errors")
	}
	if err := group.Wait(); err != nil {
		startupLog.WithError(err).Fatal("Server failed")
	}
}
