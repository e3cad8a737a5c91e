package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/moddash/bffgate/pkg/identity"
)

// ReviewClient is the external authorization service. Both calls are
// synchronous, single-attempt RPCs; retries are a transport/caller concern.
type ReviewClient interface {
	// SubjectReview asks whether the named subject may perform the action.
	// The call authenticates as the gateway itself.
	SubjectReview(ctx context.Context, subject identity.Internal, query AccessQuery) (Decision, error)

	// SelfReview asks whether the holder of credential may perform the
	// action, authenticating the call with that credential. An invalid or
	// expired credential is a denial, not an error.
	SelfReview(ctx context.Context, credential string, query AccessQuery) (Decision, error)
}

const (
	subjectReviewPath = "/apis/authorization.k8s.io/v1/subjectaccessreviews"
	selfReviewPath    = "/apis/authorization.k8s.io/v1/selfsubjectaccessreviews"
)

// resourceAttributes is the wire shape of the action being checked.
type resourceAttributes struct {
	Namespace string `json:"namespace,omitempty"`
	Verb      string `json:"verb"`
	Resource  string `json:"resource"`
	Name      string `json:"name,omitempty"`
}

type reviewSpec struct {
	User               string              `json:"user,omitempty"`
	Groups             []string            `json:"groups,omitempty"`
	ResourceAttributes *resourceAttributes `json:"resourceAttributes"`
}

type reviewStatus struct {
	Allowed bool   `json:"allowed"`
	Denied  bool   `json:"denied"`
	Reason  string `json:"reason,omitempty"`
}

type accessReview struct {
	APIVersion string       `json:"apiVersion"`
	Kind       string       `json:"kind"`
	Spec       reviewSpec   `json:"spec"`
	Status     reviewStatus `json:"status,omitempty"`
}

// KubeReviewClient talks to a Kubernetes-style access review API over HTTP.
type KubeReviewClient struct {
	baseURL string
	// subjectClient authenticates with the gateway's own service-account
	// token; subject access reviews require elevated caller privilege.
	subjectClient *http.Client
	// selfTransport carries no ambient credentials; the caller's token is
	// set per request.
	selfClient *http.Client
}

// KubeReviewClientOptions configures a KubeReviewClient.
type KubeReviewClientOptions struct {
	// BaseURL of the authorization service, e.g. "https://kubernetes.default.svc".
	BaseURL string
	// ServiceAccountToken authenticates subject access review calls.
	ServiceAccountToken string
	// Timeout bounds each review call. Zero means 10s.
	Timeout time.Duration
	// Transport is the base transport, instrumented with otelhttp. Nil
	// means http.DefaultTransport.
	Transport http.RoundTripper
}

// NewKubeReviewClient creates a review client against a Kubernetes-style API.
func NewKubeReviewClient(opts KubeReviewClientOptions) *KubeReviewClient {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	instrumented := otelhttp.NewTransport(base)

	subjectTransport := http.RoundTripper(instrumented)
	if opts.ServiceAccountToken != "" {
		subjectTransport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.ServiceAccountToken}),
			Base:   instrumented,
		}
	}

	return &KubeReviewClient{
		baseURL:       opts.BaseURL,
		subjectClient: &http.Client{Transport: subjectTransport, Timeout: opts.Timeout},
		selfClient:    &http.Client{Transport: instrumented, Timeout: opts.Timeout},
	}
}

// SubjectReview posts a SubjectAccessReview naming the subject explicitly.
func (c *KubeReviewClient) SubjectReview(ctx context.Context, subject identity.Internal, query AccessQuery) (Decision, error) {
	review := accessReview{
		APIVersion: "authorization.k8s.io/v1",
		Kind:       "SubjectAccessReview",
		Spec: reviewSpec{
			User:               subject.User,
			Groups:             subject.Groups,
			ResourceAttributes: attributesFor(query),
		},
	}

	resp, err := c.post(ctx, c.subjectClient, subjectReviewPath, review, "")
	if err != nil {
		return Decision{}, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("subject access review returned status %d", resp.StatusCode)
	}
	return decodeDecision(resp.Body)
}

// SelfReview posts a SelfSubjectAccessReview authenticated with credential.
// A 401 from the service means the credential itself did not pass; that is
// surfaced as a denial with ReasonInvalidCredential so callers see a plain
// "forbidden" rather than a distinct error path.
func (c *KubeReviewClient) SelfReview(ctx context.Context, credential string, query AccessQuery) (Decision, error) {
	review := accessReview{
		APIVersion: "authorization.k8s.io/v1",
		Kind:       "SelfSubjectAccessReview",
		Spec: reviewSpec{
			ResourceAttributes: attributesFor(query),
		},
	}

	resp, err := c.post(ctx, c.selfClient, selfReviewPath, review, credential)
	if err != nil {
		return Decision{}, err
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return decodeDecision(resp.Body)
	case http.StatusUnauthorized:
		return Decision{Allowed: false, Reason: ReasonInvalidCredential}, nil
	default:
		return Decision{}, fmt.Errorf("self access review returned status %d", resp.StatusCode)
	}
}

func (c *KubeReviewClient) post(ctx context.Context, client *http.Client, path string, review accessReview, credential string) (*http.Response, error) {
	body, err := json.Marshal(review)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access review: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build access review request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("access review call failed: %w", err)
	}
	return resp, nil
}

func attributesFor(query AccessQuery) *resourceAttributes {
	return &resourceAttributes{
		Namespace: query.Namespace,
		Verb:      string(query.Verb),
		Resource:  query.Resource,
		Name:      query.ResourceName,
	}
}

func decodeDecision(body io.Reader) (Decision, error) {
	var review accessReview
	if err := json.NewDecoder(body).Decode(&review); err != nil {
		return Decision{}, fmt.Errorf("failed to decode access review response: %w", err)
	}
	return Decision{
		Allowed: review.Status.Allowed,
		Reason:  review.Status.Reason,
	}, nil
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}
