// Package routing maps inbound request paths to named upstream services.
//
// Matching is prefix-only with deterministic longest-prefix-wins selection.
// No regex or wildcard support: path-rewrite ambiguity is a common source of
// proxy bugs, and prefixes are the smallest rule set that is still easy to
// reason about and test exhaustively. The routing table is loaded once at
// startup and immutable for the process lifetime; changing routes requires a
// restart.
package routing

import (
	"fmt"
	"strings"
)

// RouteRule is one static routing entry.
type RouteRule struct {
	// PathPrefix is matched against the request path, segment-aware:
	// "/api" matches "/api" and "/api/v1" but not "/apix".
	PathPrefix string `yaml:"pathPrefix"`
	// RewritePrefix replaces the matched prefix before forwarding. Empty
	// means the prefix is stripped entirely.
	RewritePrefix string `yaml:"rewritePrefix"`
	// Upstream is the logical name of the backend service.
	Upstream string `yaml:"upstream"`
	// Resource is the RBAC resource checked for this route, e.g. "services".
	Resource string `yaml:"resource"`
	// RequiresAuthorization gates the access evaluation stage. Identity
	// resolution still runs either way.
	RequiresAuthorization bool `yaml:"requiresAuthorization"`

	target UpstreamTarget
}

// Target returns the resolved upstream destination for this rule.
func (r *RouteRule) Target() UpstreamTarget {
	return r.target
}

// matches reports whether path falls under the rule's prefix, and the
// remainder after the prefix.
func (r *RouteRule) matches(path string) (string, bool) {
	prefix := r.PathPrefix
	if path == prefix {
		return "", true
	}
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := path[len(prefix):]
	if !strings.HasSuffix(prefix, "/") && !strings.HasPrefix(rest, "/") {
		// "/api" must not match "/apix".
		return "", false
	}
	return rest, true
}

// rewrite applies the rule's rewrite to the matched path remainder.
func (r *RouteRule) rewrite(rest string) string {
	rewritten := r.RewritePrefix + rest
	if rewritten == "" {
		return "/"
	}
	if !strings.HasPrefix(rewritten, "/") {
		rewritten = "/" + rewritten
	}
	return rewritten
}

func (r *RouteRule) validate() error {
	if r.PathPrefix == "" || !strings.HasPrefix(r.PathPrefix, "/") {
		return fmt.Errorf("route %q: pathPrefix must start with /", r.PathPrefix)
	}
	if r.RewritePrefix != "" && !strings.HasPrefix(r.RewritePrefix, "/") {
		return fmt.Errorf("route %q: rewritePrefix must be empty or start with /", r.PathPrefix)
	}
	if r.Upstream == "" {
		return fmt.Errorf("route %q: upstream name is required", r.PathPrefix)
	}
	return nil
}
