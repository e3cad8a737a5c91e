// Package apierror defines the gateway's error taxonomy and its mapping to
// HTTP status codes. Every failure a caller can observe is one of these kinds;
// handlers never invent ad-hoc status codes.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of gateway failure.
type Kind string

const (
	// KindUnauthenticated means the caller's identity could not be resolved.
	KindUnauthenticated Kind = "Unauthenticated"
	// KindForbidden means access was evaluated and denied.
	KindForbidden Kind = "Forbidden"
	// KindAuthorizationServiceUnavailable means the access evaluation itself
	// could not be performed.
	KindAuthorizationServiceUnavailable Kind = "AuthorizationServiceUnavailable"
	// KindNoRouteMatched means no route rule matches the request path.
	KindNoRouteMatched Kind = "NoRouteMatched"
	// KindUpstreamUnavailable means the upstream could not be reached.
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	// KindUpstreamTimeout means the upstream call exceeded its time budget.
	KindUpstreamTimeout Kind = "UpstreamTimeout"
	// KindRequestTimeout means the whole-pipeline budget was exceeded.
	KindRequestTimeout Kind = "RequestTimeout"
)

// statusByKind is the single source of truth for the error-to-status mapping.
var statusByKind = map[Kind]int{
	KindUnauthenticated:                 http.StatusUnauthorized,
	KindForbidden:                       http.StatusForbidden,
	KindAuthorizationServiceUnavailable: http.StatusInternalServerError,
	KindNoRouteMatched:                  http.StatusNotFound,
	KindUpstreamUnavailable:             http.StatusServiceUnavailable,
	KindUpstreamTimeout:                 http.StatusGatewayTimeout,
	KindRequestTimeout:                  http.StatusGatewayTimeout,
}

// HTTPStatus returns the status code for a kind. Unknown kinds map to 500.
func (k Kind) HTTPStatus() int {
	if status, ok := statusByKind[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a gateway failure with a taxonomy kind and a caller-safe message.
// The message never carries internal stack traces or upstream internals.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause for logging. The cause is reachable
// via errors.Unwrap but never rendered into the caller-visible message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the taxonomy kind from err. Errors that are not gateway
// errors report an empty kind.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Body is the JSON error envelope returned to callers.
type Body struct {
	Error BodyDetail `json:"error"`
}

// BodyDetail carries the machine-readable code and the safe message.
type BodyDetail struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// ResponseBody builds the caller-visible envelope for err. Non-gateway errors
// are masked as a generic internal error so internals never leak.
func ResponseBody(err error) (int, Body) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind.HTTPStatus(), Body{Error: BodyDetail{
			Code:    apiErr.Kind,
			Message: apiErr.Message,
		}}
	}
	return http.StatusInternalServerError, Body{Error: BodyDetail{
		Code:    "InternalError",
		Message: "internal server error",
	}}
}
