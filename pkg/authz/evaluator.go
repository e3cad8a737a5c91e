package authz

import (
	"context"
	"time"

	"github.com/moddash/bffgate/pkg/apierror"
	"github.com/moddash/bffgate/pkg/identity"
	"github.com/moddash/bffgate/pkg/observability"
)

// Evaluator decides whether an identity may perform an access query.
// A "not allowed" outcome is a Decision, never an error; only infrastructure
// failures (the review call itself failing) return an error.
type Evaluator interface {
	Evaluate(ctx context.Context, ident identity.Identity, query AccessQuery) (Decision, error)
}

// ReviewEvaluator evaluates against the external review service, selecting
// the review flavor from the identity variant.
type ReviewEvaluator struct {
	client  ReviewClient
	metrics *observability.Metrics
}

// NewReviewEvaluator creates an evaluator backed by a review client.
func NewReviewEvaluator(client ReviewClient, metrics *observability.Metrics) *ReviewEvaluator {
	return &ReviewEvaluator{client: client, metrics: metrics}
}

// Evaluate performs one review call. It is attempted exactly once; a failed
// call surfaces as AuthorizationServiceUnavailable so the boundary returns a
// 500-class status instead of conflating "couldn't determine" with "denied".
func (e *ReviewEvaluator) Evaluate(ctx context.Context, ident identity.Identity, query AccessQuery) (Decision, error) {
	var (
		decision Decision
		err      error
		mode     string
	)

	start := time.Now()
	switch subject := ident.(type) {
	case identity.Internal:
		mode = "subject"
		decision, err = e.client.SubjectReview(ctx, subject, query)
	case identity.Token:
		mode = "self"
		decision, err = e.client.SelfReview(ctx, subject.Credential, query)
	default:
		return Decision{}, apierror.New(apierror.KindAuthorizationServiceUnavailable,
			"unsupported identity variant")
	}

	if e.metrics != nil {
		e.metrics.ReviewCallDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if e.metrics != nil {
			e.metrics.ReviewErrorsTotal.WithLabelValues(mode).Inc()
		}
		return Decision{}, apierror.Wrap(apierror.KindAuthorizationServiceUnavailable,
			"authorization check could not be completed", err)
	}

	if e.metrics != nil {
		e.metrics.AccessDecisionsTotal.WithLabelValues(mode, outcome(decision)).Inc()
	}
	return decision, nil
}

// MockEvaluator allows everything without calling the external service.
// For local development against stub backends only. Construction logs a
// warning so an accidentally enabled bypass is visible in production logs.
type MockEvaluator struct {
	logger *observability.Logger
}

// NewMockEvaluator creates the bypass evaluator, loudly.
func NewMockEvaluator(logger *observability.Logger) *MockEvaluator {
	logger.Warn("authorization bypass (mock mode) is ACTIVE: every request is allowed without an access review")
	return &MockEvaluator{logger: logger}
}

// Evaluate always allows, with zero external calls.
func (e *MockEvaluator) Evaluate(ctx context.Context, ident identity.Identity, query AccessQuery) (Decision, error) {
	e.logger.WithField("resource", query.Resource).
		WithField("verb", string(query.Verb)).
		Debug("mock mode: skipping access review")
	return Decision{Allowed: true, Reason: "mock mode"}, nil
}

func outcome(d Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return "denied"
}
