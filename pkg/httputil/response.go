// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding, and the gateway's shared middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/moddash/bffgate/pkg/apierror"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteAPIError writes the structured error envelope for a gateway error.
// The body carries only the taxonomy code and the caller-safe message; no
// sensitive headers are echoed back.
func WriteAPIError(w http.ResponseWriter, err error) {
	status, body := apierror.ResponseBody(err)
	WriteJSON(w, status, body)
}

// WriteErrorMessage writes an ad-hoc JSON error with a custom message.
// Pipeline failures should use WriteAPIError so the taxonomy stays intact;
// this exists for the operational endpoints.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteInternalError writes a generic 500 without leaking internals
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
