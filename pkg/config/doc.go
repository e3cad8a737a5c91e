// Package config provides gateway configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables
// with sensible defaults for all settings. The configuration is built once at
// startup and passed explicitly to each component; nothing reads the
// environment afterwards.
//
// # Configuration Structure
//
// Server settings:
//
//	BFFGATE_HOST="0.0.0.0"
//	BFFGATE_PORT="8080"
//	BFFGATE_HEALTH_PORT="9090"
//	BFFGATE_READ_TIMEOUT="15s"
//	BFFGATE_WRITE_TIMEOUT="60s"
//	BFFGATE_SHUTDOWN_TIMEOUT="30s"
//
// Identity settings:
//
//	BFFGATE_IDENTITY_STRATEGY="internal"  # internal, user_token
//	BFFGATE_PRINCIPAL_HEADER="kubeflow-userid"
//	BFFGATE_GROUPS_HEADER="kubeflow-groups"
//
// Authorization settings:
//
//	BFFGATE_MOCK_AUTHZ="false"
//	BFFGATE_REVIEW_URL="https://kubernetes.default.svc"
//	BFFGATE_REVIEW_TOKEN_FILE="/var/run/secrets/kubernetes.io/serviceaccount/token"
//	BFFGATE_REVIEW_TIMEOUT="10s"
//
// Routing and proxy settings:
//
//	BFFGATE_ROUTES_FILE="routes.yaml"
//	BFFGATE_REQUEST_TIMEOUT="45s"
//	BFFGATE_UPSTREAM_TIMEOUT="30s"
//	BFFGATE_UPSTREAM_MAX_CONCURRENCY="64"
//
// Observability settings:
//
//	BFFGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	BFFGATE_METRICS_ENABLED="true"
//	BFFGATE_OTEL_ENABLED="false"
//	BFFGATE_OTEL_ENDPOINT="localhost:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Identity strategy: %s\n", cfg.Identity.Strategy)
//
// # Related Packages
//
//   - pkg/identity: Uses the identity strategy configuration
//   - pkg/routing: Loads the routes file named here
//   - pkg/observability: Uses observability configuration
package config
