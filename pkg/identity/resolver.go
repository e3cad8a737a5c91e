package identity

import (
	"net/http"
	"strings"

	"github.com/moddash/bffgate/pkg/apierror"
)

// Strategy selects how identities are resolved. Fixed at process start;
// there is no per-request negotiation.
type Strategy string

const (
	// StrategyInternal reads trusted headers injected by an upstream proxy.
	StrategyInternal Strategy = "internal"
	// StrategyUserToken reads a bearer token from the Authorization header.
	StrategyUserToken Strategy = "user_token"
)

// Valid reports whether s is a recognized strategy.
func (s Strategy) Valid() bool {
	return s == StrategyInternal || s == StrategyUserToken
}

// Resolver extracts the caller identity from a request.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderResolver implements the internal strategy: the principal and group
// headers are trusted as-is. Only safe behind a gatekeeper that sets them.
type HeaderResolver struct {
	// PrincipalHeader carries the user identifier, e.g. "kubeflow-userid".
	PrincipalHeader string
	// GroupsHeader carries a comma-separated group list, may be absent.
	GroupsHeader string
}

// Resolve reads the trusted headers. A missing or empty principal header
// fails with Unauthenticated; empty groups are permitted.
func (hr *HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	user := strings.TrimSpace(r.Header.Get(hr.PrincipalHeader))
	if user == "" {
		return nil, apierror.Newf(apierror.KindUnauthenticated,
			"missing required header %s", hr.PrincipalHeader)
	}
	return Internal{
		User:   user,
		Groups: ParseGroups(r.Header.Get(hr.GroupsHeader)),
	}, nil
}

const bearerPrefix = "Bearer "

// TokenResolver implements the user_token strategy: the Authorization header
// must be exactly the Bearer scheme followed by a non-empty token. The token
// is carried opaquely; it is not validated here.
type TokenResolver struct{}

// Resolve reads the bearer token from the Authorization header.
func (tr *TokenResolver) Resolve(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, apierror.New(apierror.KindUnauthenticated,
			"missing authorization header")
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, apierror.New(apierror.KindUnauthenticated,
			"invalid authorization header format")
	}
	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return nil, apierror.New(apierror.KindUnauthenticated,
			"invalid authorization header format")
	}
	return Token{Credential: token}, nil
}

// NewResolver builds the resolver for the configured strategy.
func NewResolver(strategy Strategy, principalHeader, groupsHeader string) Resolver {
	switch strategy {
	case StrategyUserToken:
		return &TokenResolver{}
	default:
		return &HeaderResolver{
			PrincipalHeader: principalHeader,
			GroupsHeader:    groupsHeader,
		}
	}
}
