// Package authz decides whether a resolved identity may perform an action.
//
// Decisions come from an external Kubernetes-style access review service:
// a subject access review when the identity was injected via trusted headers,
// or a self access review authenticated with the caller's own token. A mock
// evaluator short-circuits everything for local development and is loud about
// it, since shipping it to production is a security incident.
package authz

import (
	"net/http"
	"strings"
)

// Verb is the action checked against the authorization service.
type Verb string

const (
	VerbGet    Verb = "get"
	VerbList   Verb = "list"
	VerbCreate Verb = "create"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
)

// AccessQuery is the tuple evaluated for authorization. Immutable once built.
type AccessQuery struct {
	// Namespace scopes the check; empty means cluster-scoped.
	Namespace string
	// Resource is the RBAC resource name, e.g. "services".
	Resource string
	// Verb is the action being performed.
	Verb Verb
	// ResourceName is the individual object name, when the request targets one.
	ResourceName string
}

// Decision is the result of an evaluation. A denial is a valid decision,
// not an error. Decisions are never cached across requests.
type Decision struct {
	Allowed bool
	Reason  string
}

// ReasonInvalidCredential marks denials caused by an invalid or expired
// token. From the caller's perspective this is indistinguishable from any
// other "forbidden".
const ReasonInvalidCredential = "invalid-credential"

// VerbFor maps an HTTP method to the RBAC verb.
//
// The mapping is fixed:
//
//	GET     -> get when a resource name is present, list otherwise
//	POST    -> create
//	PUT     -> update
//	PATCH   -> update
//	DELETE  -> delete
//
// The method alone selects the verb for writes; only GET is sensitive to
// whether the path names an individual resource.
func VerbFor(method string, hasResourceName bool) (Verb, bool) {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		if hasResourceName {
			return VerbGet, true
		}
		return VerbList, true
	case http.MethodPost:
		return VerbCreate, true
	case http.MethodPut, http.MethodPatch:
		return VerbUpdate, true
	case http.MethodDelete:
		return VerbDelete, true
	}
	return "", false
}
