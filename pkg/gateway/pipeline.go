// Package gateway composes the request pipeline: identity resolution, access
// evaluation, upstream routing, and proxy execution.
//
// The pipeline is explicit sequential composition with typed inputs and
// outputs per stage, not registration-order middleware: every request walks
// Received -> IdentityResolved -> Routed -> AccessChecked -> Proxied, and any
// stage may short-circuit with a terminal taxonomy error. Routing runs before
// the access check because the matched rule carries the resource mapping and
// the requiresAuthorization flag; identity is always resolved first, so an
// unauthenticated request never reaches the evaluator.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/moddash/bffgate/pkg/apierror"
	"github.com/moddash/bffgate/pkg/authz"
	"github.com/moddash/bffgate/pkg/contextkeys"
	"github.com/moddash/bffgate/pkg/httputil"
	"github.com/moddash/bffgate/pkg/identity"
	"github.com/moddash/bffgate/pkg/observability"
	"github.com/moddash/bffgate/pkg/proxy"
	"github.com/moddash/bffgate/pkg/routing"
)

// Pipeline stages, used for logs and metrics labels.
const (
	StageIdentity = "identity"
	StageRoute    = "route"
	StageAuthz    = "authz"
	StageProxy    = "proxy"
)

// Handler is the gateway's request pipeline.
type Handler struct {
	resolver  identity.Resolver
	evaluator authz.Evaluator
	table     *routing.Table
	executor  *proxy.Executor
	logger    *observability.Logger
	metrics   *observability.Metrics

	// requestTimeout is the whole-pipeline budget covering the access
	// review call plus the upstream proxy call.
	requestTimeout time.Duration
}

// New builds the pipeline handler.
func New(resolver identity.Resolver, evaluator authz.Evaluator, table *routing.Table, executor *proxy.Executor, logger *observability.Logger, metrics *observability.Metrics, requestTimeout time.Duration) *Handler {
	if requestTimeout == 0 {
		requestTimeout = 45 * time.Second
	}
	return &Handler{
		resolver:       resolver,
		evaluator:      evaluator,
		table:          table,
		executor:       executor,
		logger:         logger,
		metrics:        metrics,
		requestTimeout: requestTimeout,
	}
}

// Table exposes the routing table, e.g. for the metrics route label.
func (h *Handler) Table() *routing.Table {
	return h.table
}

// ServeHTTP runs one request through the pipeline.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	ctx = observability.WithLogger(ctx, h.logger)
	r = r.WithContext(ctx)

	// Identity resolution always runs, even for routes that skip the
	// access check: the strategy is mandatory process-wide.
	ident, err := h.resolver.Resolve(r)
	if err != nil {
		h.fail(w, r, StageIdentity, err)
		return
	}
	ctx = contextkeys.WithIdentity(ctx, ident)
	ctx = contextkeys.WithPrincipal(ctx, ident.Principal())
	r = r.WithContext(ctx)

	rule, rewrittenPath, err := h.table.Route(r.URL.Path)
	if err != nil {
		h.fail(w, r, StageRoute, err)
		return
	}

	if rule.RequiresAuthorization {
		query, err := queryFor(r, rule, rewrittenPath)
		if err != nil {
			h.fail(w, r, StageAuthz, err)
			return
		}

		decision, err := h.evaluator.Evaluate(ctx, ident, query)
		if err != nil {
			// A budget overrun during the review call is the pipeline
			// timeout, not a review-service failure.
			if ctx.Err() == context.DeadlineExceeded {
				err = apierror.Wrap(apierror.KindRequestTimeout, "request timed out", err)
			}
			h.fail(w, r, StageAuthz, err)
			return
		}
		if !decision.Allowed {
			h.fail(w, r, StageAuthz, forbidden(decision))
			return
		}
	}

	if err := h.executor.Execute(w, r, rule, rewrittenPath); err != nil {
		h.fail(w, r, StageProxy, err)
		return
	}
}

// fail logs the error with its pipeline stage and writes the structured
// error body. The resolved principal is attached via context; the raw
// credential never reaches the log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, stage string, err error) {
	kind := apierror.KindOf(err)
	if h.metrics != nil {
		h.metrics.PipelineErrorsTotal.WithLabelValues(stage, string(kind)).Inc()
	}

	observability.FromContext(r.Context()).
		WithStage(stage).
		WithField("method", r.Method).
		WithField("path", r.URL.Path).
		WithError(err).
		Warn("pipeline request failed")

	httputil.WriteAPIError(w, err)
}

func forbidden(decision authz.Decision) error {
	if decision.Reason != "" {
		return apierror.Newf(apierror.KindForbidden, "access denied: %s", decision.Reason)
	}
	return apierror.New(apierror.KindForbidden, "access denied")
}
