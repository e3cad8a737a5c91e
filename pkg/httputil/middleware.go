package httputil

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/moddash/bffgate/pkg/contextkeys"
	"github.com/moddash/bffgate/pkg/observability"
)

// LoggingMiddleware writes one access log line per request with the fields
// operators need to follow a request through the pipeline. The principal is
// taken from context; the raw credential never appears in logs.
func LoggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response writer wrapper to capture status code
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			entry := observability.LoggerWithTraceContext(r.Context(), logger).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("remote", r.RemoteAddr).
				WithField("status", rw.statusCode).
				WithField("duration_ms", duration.Milliseconds())
			if requestID := contextkeys.GetRequestID(r.Context()); requestID != "" {
				entry = entry.WithField("request_id", requestID)
			}
			if principal := contextkeys.GetPrincipal(r.Context()); principal != "" {
				entry = entry.WithField("principal", principal)
			}
			entry.Info("request completed")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so streamed proxy responses are not stalled here
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RecoveryMiddleware recovers from panics and returns a structured 500.
// The stack trace goes to the log, never to the response body.
func RecoveryMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.
						WithField("panic", err).
						WithField("stack", string(debug.Stack())).
						WithField("path", r.URL.Path).
						Error("panic recovered")
					WriteInternalError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware attaches a unique request ID to each request. An
// inbound X-Request-ID is honored so callers can correlate across hops;
// otherwise a fresh UUID is generated. The ID is echoed on the response and
// stored in the context for logging and upstream forwarding.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Chain chains multiple middleware together
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// MaxBytesMiddleware limits the size of request bodies
func MaxBytesMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
