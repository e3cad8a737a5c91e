package performance

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/moddash/bffgate/pkg/authz"
	"github.com/moddash/bffgate/pkg/gateway"
	"github.com/moddash/bffgate/pkg/identity"
	"github.com/moddash/bffgate/pkg/observability"
	"github.com/moddash/bffgate/pkg/proxy"
	"github.com/moddash/bffgate/pkg/routing"
)

func benchTable(b *testing.B, prefixes int, target routing.UpstreamTarget) *routing.Table {
	b.Helper()

	rules := make([]routing.RouteRule, 0, prefixes)
	overrides := make(map[string]routing.UpstreamTarget, prefixes)
	for i := 0; i < prefixes; i++ {
		name := fmt.Sprintf("svc-%d", i)
		rules = append(rules, routing.RouteRule{
			PathPrefix:            fmt.Sprintf("/svc-%d/api", i),
			RewritePrefix:         "/api",
			Upstream:              name,
			Resource:              "services",
			RequiresAuthorization: true,
		})
		overrides[name] = target
	}

	table, err := routing.NewTable(rules, routing.NewResolver(routing.ModeDirect, overrides, "", 0))
	if err != nil {
		b.Fatalf("failed to build table: %v", err)
	}
	return table
}

// BenchmarkRouteMatching measures table lookup across a realistic rule count.
func BenchmarkRouteMatching(b *testing.B) {
	table := benchTable(b, 50, routing.UpstreamTarget{Host: "localhost", Port: 8080})
	path := "/svc-42/api/models/m1"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := table.Route(path); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRouteMiss measures the cost of a request that matches no rule.
func BenchmarkRouteMiss(b *testing.B) {
	table := benchTable(b, 50, routing.UpstreamTarget{Host: "localhost", Port: 8080})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table.Route("/unrouted/path")
	}
}

// BenchmarkPipeline measures the full request path against a local upstream
// with authorization bypassed, isolating gateway overhead from review latency.
func BenchmarkPipeline(b *testing.B) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	if err != nil {
		b.Fatalf("failed to parse upstream URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		b.Fatalf("failed to parse upstream port: %v", err)
	}

	table := benchTable(b, 10, routing.UpstreamTarget{Host: u.Hostname(), Port: port})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	executor := proxy.NewExecutor(table, proxy.Options{UpstreamTimeout: 5 * time.Second}, nil)
	resolver := identity.NewResolver(identity.StrategyInternal, "kubeflow-userid", "kubeflow-groups")
	handler := gateway.New(resolver, authz.NewMockEvaluator(logger), table, executor, logger, nil, 10*time.Second)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/svc-5/api/models", nil)
		req.Header.Set("kubeflow-userid", "bench-user")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", w.Code)
		}
	}
}
