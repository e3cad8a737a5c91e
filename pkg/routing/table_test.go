package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moddash/bffgate/pkg/apierror"
)

func directResolver(overrides map[string]UpstreamTarget) *Resolver {
	return NewResolver(ModeDirect, overrides, "", 0)
}

func testTable(t *testing.T, rules []RouteRule) *Table {
	t.Helper()
	overrides := map[string]UpstreamTarget{}
	for _, rule := range rules {
		overrides[rule.Upstream] = UpstreamTarget{Host: "localhost", Port: 9000}
	}
	table, err := NewTable(rules, directResolver(overrides))
	require.NoError(t, err)
	return table
}

func TestTableLongestPrefixWins(t *testing.T) {
	table := testTable(t, []RouteRule{
		{PathPrefix: "/api", Upstream: "legacy"},
		{PathPrefix: "/api/v1", Upstream: "models"},
	})

	rule, _, err := table.Route("/api/v1/models")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", rule.PathPrefix, "the more specific prefix must win")

	rule, _, err = table.Route("/api/other")
	require.NoError(t, err)
	assert.Equal(t, "/api", rule.PathPrefix)
}

func TestTableRewrite(t *testing.T) {
	t.Run("prefix replacement", func(t *testing.T) {
		table := testTable(t, []RouteRule{
			{PathPrefix: "/model-registry/api", RewritePrefix: "/api", Upstream: "model-registry"},
		})

		_, rewritten, err := table.Route("/model-registry/api/v1/models")
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/models", rewritten)
	})

	t.Run("empty rewrite strips the prefix entirely", func(t *testing.T) {
		table := testTable(t, []RouteRule{
			{PathPrefix: "/legacy", RewritePrefix: "", Upstream: "legacy"},
		})

		_, rewritten, err := table.Route("/legacy/health")
		require.NoError(t, err)
		assert.Equal(t, "/health", rewritten)
	})

	t.Run("exact prefix match rewrites to the rewrite prefix", func(t *testing.T) {
		table := testTable(t, []RouteRule{
			{PathPrefix: "/legacy", RewritePrefix: "/api", Upstream: "legacy"},
			{PathPrefix: "/stripped", RewritePrefix: "", Upstream: "legacy"},
		})

		_, rewritten, err := table.Route("/legacy")
		require.NoError(t, err)
		assert.Equal(t, "/api", rewritten)

		_, rewritten, err = table.Route("/stripped")
		require.NoError(t, err)
		assert.Equal(t, "/", rewritten)
	})
}

func TestTableMatchingIsSegmentAware(t *testing.T) {
	table := testTable(t, []RouteRule{
		{PathPrefix: "/api", Upstream: "api"},
	})

	_, _, err := table.Route("/apix/foo")
	require.Error(t, err)
	assert.Equal(t, apierror.KindNoRouteMatched, apierror.KindOf(err))
}

func TestTableNoRouteMatched(t *testing.T) {
	table := testTable(t, []RouteRule{
		{PathPrefix: "/api", Upstream: "api"},
	})

	_, _, err := table.Route("/unknown/path")
	require.Error(t, err)
	assert.Equal(t, apierror.KindNoRouteMatched, apierror.KindOf(err))
}

func TestTableRejectsDuplicatePrefixes(t *testing.T) {
	_, err := NewTable([]RouteRule{
		{PathPrefix: "/api", Upstream: "a"},
		{PathPrefix: "/api", Upstream: "b"},
	}, directResolver(map[string]UpstreamTarget{
		"a": {Host: "localhost", Port: 1},
		"b": {Host: "localhost", Port: 2},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate pathPrefix")
}

func TestTableValidation(t *testing.T) {
	resolver := directResolver(map[string]UpstreamTarget{"a": {Host: "localhost", Port: 1}})

	t.Run("empty table", func(t *testing.T) {
		_, err := NewTable(nil, resolver)
		assert.Error(t, err)
	})

	t.Run("prefix must start with slash", func(t *testing.T) {
		_, err := NewTable([]RouteRule{{PathPrefix: "api", Upstream: "a"}}, resolver)
		assert.Error(t, err)
	})

	t.Run("upstream required", func(t *testing.T) {
		_, err := NewTable([]RouteRule{{PathPrefix: "/api"}}, resolver)
		assert.Error(t, err)
	})

	t.Run("unknown upstream in direct mode", func(t *testing.T) {
		_, err := NewTable([]RouteRule{{PathPrefix: "/api", Upstream: "missing"}}, resolver)
		assert.Error(t, err)
	})
}

func TestRouteLabel(t *testing.T) {
	table := testTable(t, []RouteRule{
		{PathPrefix: "/api", Upstream: "api"},
	})

	assert.Equal(t, "/api", table.RouteLabel("/api/v1/things"))
	assert.Equal(t, "unmatched", table.RouteLabel("/nope"))
}

func TestResolver(t *testing.T) {
	t.Run("service mode derives the cluster address", func(t *testing.T) {
		r := NewResolver(ModeService, nil, "dashboard", 8080)
		target, err := r.Resolve("model-registry")
		require.NoError(t, err)
		assert.Equal(t, "http://model-registry.dashboard.svc.cluster.local:8080", target.URL())
	})

	t.Run("overrides win in service mode", func(t *testing.T) {
		r := NewResolver(ModeService, map[string]UpstreamTarget{
			"model-registry": {Host: "localhost", Port: 9091},
		}, "dashboard", 8080)
		target, err := r.Resolve("model-registry")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9091", target.URL())
	})

	t.Run("direct mode requires an override", func(t *testing.T) {
		r := NewResolver(ModeDirect, nil, "", 0)
		_, err := r.Resolve("anything")
		assert.Error(t, err)
	})

	t.Run("https scheme is preserved", func(t *testing.T) {
		r := NewResolver(ModeDirect, map[string]UpstreamTarget{
			"secure": {Scheme: "https", Host: "secure.example.com", Port: 443},
		}, "", 0)
		target, err := r.Resolve("secure")
		require.NoError(t, err)
		assert.Equal(t, "https://secure.example.com:443", target.URL())
	})
}

func TestParse(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		data := []byte(`
resolution: direct
upstreams:
  model-registry:
    host: localhost
    port: 9091
routes:
  - pathPrefix: /model-registry/api
    rewritePrefix: /api
    upstream: model-registry
    resource: services
    requiresAuthorization: true
`)
		table, err := Parse(data)
		require.NoError(t, err)

		rule, rewritten, err := table.Route("/model-registry/api/v1/models")
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/models", rewritten)
		assert.Equal(t, "model-registry", rule.Upstream)
		assert.True(t, rule.RequiresAuthorization)
		assert.Equal(t, "http://localhost:9091", rule.Target().URL())
	})

	t.Run("defaults to service resolution", func(t *testing.T) {
		data := []byte(`
routes:
  - pathPrefix: /jobs
    upstream: jobs
`)
		table, err := Parse(data)
		require.NoError(t, err)

		rule, _, err := table.Route("/jobs")
		require.NoError(t, err)
		assert.Equal(t, "http://jobs.default.svc.cluster.local:8080", rule.Target().URL())
		assert.Equal(t, "services", rule.Resource, "resource defaults when unset")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Parse([]byte("routes: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("invalid resolution mode", func(t *testing.T) {
		_, err := Parse([]byte("resolution: magic\nroutes:\n  - pathPrefix: /a\n    upstream: a\n"))
		assert.Error(t, err)
	})
}
