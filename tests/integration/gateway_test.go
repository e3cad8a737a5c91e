package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moddash/bffgate/pkg/apierror"
	"github.com/moddash/bffgate/pkg/authz"
	"github.com/moddash/bffgate/pkg/gateway"
	"github.com/moddash/bffgate/pkg/httputil"
	"github.com/moddash/bffgate/pkg/identity"
	"github.com/moddash/bffgate/pkg/observability"
	"github.com/moddash/bffgate/pkg/proxy"
	"github.com/moddash/bffgate/pkg/routing"
)

// reviewStub is a minimal Kubernetes-style access review endpoint.
type reviewStub struct {
	allow   bool
	reason  string
	calls   atomic.Int64
	lastRaw []byte
}

func (s *reviewStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.lastRaw, _ = io.ReadAll(r.Body)

		var review map[string]interface{}
		json.Unmarshal(s.lastRaw, &review)
		review["status"] = map[string]interface{}{
			"allowed": s.allow,
			"reason":  s.reason,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(review)
	})
}

// stack assembles the gateway the way the binary does: routing table from
// YAML, review client against a stubbed authorization service, real proxy
// executor, and the shared middleware chain.
type stack struct {
	server   *httptest.Server
	review   *reviewStub
	upstream *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	s := &stack{review: &reviewStub{allow: true}}

	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q,"user_header":%q}`, r.URL.Path, r.Header.Get("kubeflow-userid"))
	}))
	t.Cleanup(s.upstream.Close)

	reviewServer := httptest.NewServer(s.review.handler())
	t.Cleanup(reviewServer.Close)

	u, err := url.Parse(s.upstream.URL)
	if err != nil {
		t.Fatalf("failed to parse upstream URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse upstream port: %v", err)
	}

	routesYAML := fmt.Sprintf(`
resolution: direct
upstreams:
  model-registry:
    host: %s
    port: %d
routes:
  - pathPrefix: /model-registry/api
    rewritePrefix: /api
    upstream: model-registry
    resource: services
    requiresAuthorization: true
  - pathPrefix: /static
    rewritePrefix: /static
    upstream: model-registry
    requiresAuthorization: false
`, u.Hostname(), port)

	table, err := routing.Parse([]byte(routesYAML))
	if err != nil {
		t.Fatalf("failed to parse routes: %v", err)
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	client := authz.NewKubeReviewClient(authz.KubeReviewClientOptions{
		BaseURL:             reviewServer.URL,
		ServiceAccountToken: "gateway-sa-token",
		Timeout:             5 * time.Second,
	})
	evaluator := authz.NewReviewEvaluator(client, nil)
	executor := proxy.NewExecutor(table, proxy.Options{
		UpstreamTimeout: 5 * time.Second,
		StripHeaders:    []string{"kubeflow-userid", "kubeflow-groups"},
	}, nil)
	resolver := identity.NewResolver(identity.StrategyInternal, "kubeflow-userid", "kubeflow-groups")

	pipeline := gateway.New(resolver, evaluator, table, executor, logger, nil, 10*time.Second)
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
	)(pipeline)

	s.server = httptest.NewServer(handler)
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) get(t *testing.T, path string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest("GET", s.server.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func TestGatewayAllowsAndProxies(t *testing.T) {
	s := newStack(t)

	resp, body := s.get(t, "/model-registry/api/models?namespace=ns1", map[string]string{
		"kubeflow-userid": "alice",
		"kubeflow-groups": "team-a",
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Path       string `json:"path"`
		UserHeader string `json:"user_header"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to parse upstream echo: %v", err)
	}
	if payload.Path != "/api/models" {
		t.Errorf("Expected rewritten path /api/models, got %s", payload.Path)
	}
	if payload.UserHeader != "" {
		t.Errorf("Identity header must be stripped before forwarding, got %q", payload.UserHeader)
	}

	if got := s.review.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one review call, got %d", got)
	}

	// The review carried the subject and the derived attributes.
	var review struct {
		Kind string `json:"kind"`
		Spec struct {
			User               string `json:"user"`
			ResourceAttributes struct {
				Namespace string `json:"namespace"`
				Resource  string `json:"resource"`
				Verb      string `json:"verb"`
			} `json:"resourceAttributes"`
		} `json:"spec"`
	}
	if err := json.Unmarshal(s.review.lastRaw, &review); err != nil {
		t.Fatalf("failed to parse review request: %v", err)
	}
	if review.Kind != "SubjectAccessReview" {
		t.Errorf("Expected SubjectAccessReview, got %s", review.Kind)
	}
	if review.Spec.User != "alice" {
		t.Errorf("Expected subject alice, got %s", review.Spec.User)
	}
	if review.Spec.ResourceAttributes.Namespace != "ns1" {
		t.Errorf("Expected namespace ns1, got %s", review.Spec.ResourceAttributes.Namespace)
	}
	if review.Spec.ResourceAttributes.Verb != "list" {
		t.Errorf("Expected verb list, got %s", review.Spec.ResourceAttributes.Verb)
	}
}

func TestGatewayDeniesWithForbidden(t *testing.T) {
	s := newStack(t)
	s.review.allow = false
	s.review.reason = "RBAC: access denied"

	resp, body := s.get(t, "/model-registry/api/models", map[string]string{
		"kubeflow-userid": "mallory",
	})

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", resp.StatusCode)
	}

	var envelope apierror.Body
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("failed to parse error envelope: %v", err)
	}
	if envelope.Error.Code != apierror.KindForbidden {
		t.Errorf("Expected code Forbidden, got %s", envelope.Error.Code)
	}
}

func TestGatewayUnauthenticated(t *testing.T) {
	s := newStack(t)

	resp, body := s.get(t, "/model-registry/api/models", nil)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", resp.StatusCode)
	}
	var envelope apierror.Body
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("failed to parse error envelope: %v", err)
	}
	if envelope.Error.Code != apierror.KindUnauthenticated {
		t.Errorf("Expected code Unauthenticated, got %s", envelope.Error.Code)
	}
	if got := s.review.calls.Load(); got != 0 {
		t.Errorf("Unauthenticated requests must not trigger review calls, got %d", got)
	}
}

func TestGatewaySkipsReviewForOpenRoutes(t *testing.T) {
	s := newStack(t)

	resp, _ := s.get(t, "/static/logo.svg", map[string]string{
		"kubeflow-userid": "alice",
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := s.review.calls.Load(); got != 0 {
		t.Errorf("Open routes must not trigger review calls, got %d", got)
	}
}

func TestGatewayNoRouteMatched(t *testing.T) {
	s := newStack(t)

	resp, body := s.get(t, "/not-configured", map[string]string{
		"kubeflow-userid": "alice",
	})

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", resp.StatusCode)
	}
	var envelope apierror.Body
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("failed to parse error envelope: %v", err)
	}
	if envelope.Error.Code != apierror.KindNoRouteMatched {
		t.Errorf("Expected code NoRouteMatched, got %s", envelope.Error.Code)
	}
}

func TestGatewayRequestIDPropagation(t *testing.T) {
	s := newStack(t)

	resp, _ := s.get(t, "/static/logo.svg", map[string]string{
		"kubeflow-userid": "alice",
		"X-Request-ID":    "trace-me-7",
	})

	if got := resp.Header.Get("X-Request-ID"); got != "trace-me-7" {
		t.Errorf("Expected the inbound request ID echoed back, got %q", got)
	}
}
