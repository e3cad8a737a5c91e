package gateway

import (
	"net/http"
	"strings"

	"github.com/moddash/bffgate/pkg/apierror"
	"github.com/moddash/bffgate/pkg/authz"
	"github.com/moddash/bffgate/pkg/routing"
)

// queryFor derives the access query for a request deterministically: the
// namespace comes from the "namespace" query parameter (empty means
// cluster-scoped), the resource from the matched rule, the verb from the
// HTTP method, and the resource name from the path segment that follows the
// resource's collection segment in the rewritten path.
func queryFor(r *http.Request, rule *routing.RouteRule, rewrittenPath string) (authz.AccessQuery, error) {
	name := resourceNameFromPath(rewrittenPath, rule.Resource)

	verb, ok := authz.VerbFor(r.Method, name != "")
	if !ok {
		// Methods outside the verb table have no RBAC meaning; denying
		// them keeps the mapping closed instead of guessing.
		return authz.AccessQuery{}, apierror.Newf(apierror.KindForbidden,
			"method %s is not mapped to an access verb", r.Method)
	}

	return authz.AccessQuery{
		Namespace:    r.URL.Query().Get("namespace"),
		Resource:     rule.Resource,
		Verb:         verb,
		ResourceName: name,
	}, nil
}

// resourceNameFromPath finds the segment immediately following the last
// occurrence of the resource's collection segment. "/api/v1/models/m1"
// with resource "models" yields "m1"; "/api/v1/models" yields "".
func resourceNameFromPath(path, resource string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == resource && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
