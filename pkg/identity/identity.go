// Package identity resolves the caller identity from an inbound request.
//
// Exactly one resolution strategy is active per process, fixed at startup:
// trusted headers injected by an upstream gatekeeper, or an opaque bearer
// token carried through to the access evaluator. Identities are per-request
// values; they are never persisted.
package identity

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved caller. It is a closed sum: either Internal
// (principal and groups from trusted headers) or Token (an opaque credential).
// Consumers type-switch on the concrete variant rather than probing optional
// fields.
type Identity interface {
	// Principal returns an identifier safe for logs and diagnostics.
	// For token identities this is best-effort and never authoritative.
	Principal() string

	isIdentity()
}

// Internal is an identity injected by a trusted proxy via headers.
// No cryptographic verification happens here; deploying the internal
// strategy without a trusted gatekeeper in front of the gateway grants
// anyone the ability to impersonate any principal.
type Internal struct {
	User   string
	Groups []string
}

func (i Internal) Principal() string { return i.User }
func (Internal) isIdentity()         {}

// Token is an identity carried as an opaque bearer credential. The gateway
// never validates the token itself; validation happens as a side effect of
// the self access review.
type Token struct {
	Credential string
}

// Principal extracts the subject claim from the credential without verifying
// it, purely for log attribution. An unparseable credential reports
// "token-user". The raw credential is never returned.
func (t Token) Principal() string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(t.Credential, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			return sub
		}
	}
	return "token-user"
}

func (Token) isIdentity() {}

// ParseGroups splits a comma-separated group header into a clean list.
// Empty entries and surrounding whitespace are dropped; an empty header
// yields a nil slice.
func ParseGroups(header string) []string {
	if header == "" {
		return nil
	}
	var groups []string
	for _, g := range strings.Split(header, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
