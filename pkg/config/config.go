package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moddash/bffgate/pkg/identity"
	"github.com/moddash/bffgate/pkg/observability"
)

// Config holds all gateway configuration. It is built once at startup and
// passed explicitly to each component; nothing reads the environment after
// LoadConfig returns, so tests can run multiple configurations in one
// process.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Identity resolution configuration
	Identity IdentityConfig

	// Authorization configuration
	Authz AuthzConfig

	// Routing configuration
	Routing RoutingConfig

	// Proxy configuration
	Proxy ProxyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// IdentityConfig selects and parameterizes the identity strategy
type IdentityConfig struct {
	// Strategy is "internal" or "user_token", fixed for the process.
	Strategy identity.Strategy
	// PrincipalHeader and GroupsHeader are only read by the internal
	// strategy. They are trusted as-is: the internal strategy is safe only
	// behind a gatekeeper that validates callers and sets these headers.
	PrincipalHeader string
	GroupsHeader    string
}

// AuthzConfig holds access evaluation settings
type AuthzConfig struct {
	// MockMode bypasses access evaluation entirely. Development only.
	MockMode bool
	// ReviewURL is the base URL of the access review service.
	ReviewURL string
	// ServiceAccountToken authenticates subject access review calls.
	// Loaded from ServiceAccountTokenFile when that is set.
	ServiceAccountToken     string
	ServiceAccountTokenFile string
	// ReviewTimeout bounds each review call.
	ReviewTimeout time.Duration
}

// RoutingConfig holds routing table settings
type RoutingConfig struct {
	// RoutesFile is the YAML routing table, loaded once at startup.
	RoutesFile string
}

// ProxyConfig holds upstream forwarding settings
type ProxyConfig struct {
	// RequestTimeout is the whole-pipeline budget per request.
	RequestTimeout time.Duration
	// UpstreamTimeout bounds each individual upstream call.
	UpstreamTimeout time.Duration
	// IdleConnTimeout bounds idle connections in each upstream pool.
	IdleConnTimeout time.Duration
	// MaxConcurrencyPerUpstream bounds in-flight requests per upstream.
	MaxConcurrencyPerUpstream int64
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Identity:      loadIdentityConfig(),
		Authz:         loadAuthzConfig(),
		Routing:       loadRoutingConfig(),
		Proxy:         loadProxyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if cfg.Authz.ServiceAccountTokenFile != "" {
		token, err := os.ReadFile(cfg.Authz.ServiceAccountTokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account token: %w", err)
		}
		cfg.Authz.ServiceAccountToken = strings.TrimSpace(string(token))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BFFGATE_HOST", "0.0.0.0"),
		Port:            getEnv("BFFGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BFFGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BFFGATE_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("BFFGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BFFGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BFFGATE_HEALTH_PORT", "9090"),
	}
}

// loadIdentityConfig loads identity strategy configuration from environment
func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Strategy:        identity.Strategy(getEnv("BFFGATE_IDENTITY_STRATEGY", string(identity.StrategyInternal))),
		PrincipalHeader: getEnv("BFFGATE_PRINCIPAL_HEADER", "kubeflow-userid"),
		GroupsHeader:    getEnv("BFFGATE_GROUPS_HEADER", "kubeflow-groups"),
	}
}

// loadAuthzConfig loads authorization configuration from environment
func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		MockMode:                getEnvBool("BFFGATE_MOCK_AUTHZ", false),
		ReviewURL:               getEnv("BFFGATE_REVIEW_URL", "https://kubernetes.default.svc"),
		ServiceAccountToken:     getEnv("BFFGATE_REVIEW_TOKEN", ""),
		ServiceAccountTokenFile: getEnv("BFFGATE_REVIEW_TOKEN_FILE", ""),
		ReviewTimeout:           getEnvDuration("BFFGATE_REVIEW_TIMEOUT", 10*time.Second),
	}
}

// loadRoutingConfig loads routing configuration from environment
func loadRoutingConfig() RoutingConfig {
	return RoutingConfig{
		RoutesFile: getEnv("BFFGATE_ROUTES_FILE", "routes.yaml"),
	}
}

// loadProxyConfig loads proxy configuration from environment
func loadProxyConfig() ProxyConfig {
	return ProxyConfig{
		RequestTimeout:            getEnvDuration("BFFGATE_REQUEST_TIMEOUT", 45*time.Second),
		UpstreamTimeout:           getEnvDuration("BFFGATE_UPSTREAM_TIMEOUT", 30*time.Second),
		IdleConnTimeout:           getEnvDuration("BFFGATE_IDLE_CONN_TIMEOUT", 90*time.Second),
		MaxConcurrencyPerUpstream: int64(getEnvInt("BFFGATE_UPSTREAM_MAX_CONCURRENCY", 64)),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("BFFGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BFFGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BFFGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BFFGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BFFGATE_OTEL_SERVICE_NAME", "bffgate"),
		OTelServiceVersion: getEnv("BFFGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BFFGATE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate identity config
	if !c.Identity.Strategy.Valid() {
		return fmt.Errorf("invalid identity strategy: %s (must be internal or user_token)", c.Identity.Strategy)
	}
	if c.Identity.Strategy == identity.StrategyInternal && c.Identity.PrincipalHeader == "" {
		return fmt.Errorf("principal header is required for the internal strategy")
	}

	// Validate authz config
	if !c.Authz.MockMode && c.Authz.ReviewURL == "" {
		return fmt.Errorf("review URL is required unless mock authorization is enabled")
	}

	// Validate routing config
	if c.Routing.RoutesFile == "" {
		return fmt.Errorf("routes file is required")
	}

	// Validate proxy config
	if c.Proxy.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Proxy.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}
	if c.Proxy.MaxConcurrencyPerUpstream <= 0 {
		return fmt.Errorf("upstream max concurrency must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
