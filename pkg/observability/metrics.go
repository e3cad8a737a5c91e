package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Pipeline metrics
	PipelineErrorsTotal *prometheus.CounterVec

	// Authorization metrics
	AccessDecisionsTotal *prometheus.CounterVec
	ReviewCallDuration   *prometheus.HistogramVec
	ReviewErrorsTotal    *prometheus.CounterVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyDuration      *prometheus.HistogramVec
	ProxyErrorsTotal   *prometheus.CounterVec
	ProxyInflight      *prometheus.GaugeVec
	ProxyRejectedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bffgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bffgate_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bffgate_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		// Pipeline metrics
		PipelineErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_pipeline_errors_total",
				Help: "Total number of pipeline errors by stage and error kind",
			},
			[]string{"stage", "kind"},
		),

		// Authorization metrics
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_access_decisions_total",
				Help: "Total number of access decisions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		ReviewCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bffgate_review_call_duration_seconds",
				Help:    "Access review call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		ReviewErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_review_errors_total",
				Help: "Total number of failed access review calls",
			},
			[]string{"mode"},
		),

		// Proxy metrics
		ProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_proxy_requests_total",
				Help: "Total number of proxied requests",
			},
			[]string{"upstream", "status"},
		),
		ProxyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bffgate_proxy_duration_seconds",
				Help:    "Upstream proxy call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"upstream"},
		),
		ProxyErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_proxy_errors_total",
				Help: "Total number of proxy errors by upstream and kind",
			},
			[]string{"upstream", "kind"},
		),
		ProxyInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bffgate_proxy_inflight",
				Help: "Number of in-flight proxied requests per upstream",
			},
			[]string{"upstream"},
		),
		ProxyRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bffgate_proxy_rejected_total",
				Help: "Requests rejected because the per-upstream concurrency bound was full",
			},
			[]string{"upstream"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.PipelineErrorsTotal,
		m.AccessDecisionsTotal,
		m.ReviewCallDuration,
		m.ReviewErrorsTotal,
		m.ProxyRequestsTotal,
		m.ProxyDuration,
		m.ProxyErrorsTotal,
		m.ProxyInflight,
		m.ProxyRejectedTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Flush forwards flushes so streamed proxy responses are not buffered here
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The route label is the matched route's path prefix, not the raw request
// path, to keep label cardinality bounded; unmatched requests are labeled
// "unmatched".
func HTTPMetricsMiddleware(metrics *Metrics, routeLabel func(r *http.Request) string) func(http.Handler) http.Handler {
	if routeLabel == nil {
		routeLabel = func(r *http.Request) string { return "unmatched" }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			route := routeLabel(r)

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
