// Package proxy forwards authorized requests to their resolved upstreams.
//
// Each upstream gets its own bounded transport and concurrency slot pool so
// one slow or failing backend cannot exhaust gateway resources and starve
// traffic to healthy ones. Every call is attempted exactly once; retry
// policy, if any, is a caller concern.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/semaphore"

	"github.com/moddash/bffgate/pkg/apierror"
	"github.com/moddash/bffgate/pkg/contextkeys"
	"github.com/moddash/bffgate/pkg/observability"
	"github.com/moddash/bffgate/pkg/routing"
)

// hopByHopHeaders are never forwarded in either direction, per RFC 7230.
// Headers named in the Connection header are stripped as well.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options configures an Executor.
type Options struct {
	// UpstreamTimeout bounds each upstream call. Zero means 30s.
	UpstreamTimeout time.Duration
	// IdleConnTimeout bounds idle connections in each upstream pool.
	// Zero means 90s.
	IdleConnTimeout time.Duration
	// MaxConcurrencyPerUpstream bounds in-flight requests per upstream.
	// Zero means 64.
	MaxConcurrencyPerUpstream int64
	// StripHeaders are request headers removed before forwarding, on top of
	// the hop-by-hop set: the trusted identity headers must not reach an
	// upstream that is not itself trusted to see them.
	StripHeaders []string
}

func (o *Options) defaults() {
	if o.UpstreamTimeout == 0 {
		o.UpstreamTimeout = 30 * time.Second
	}
	if o.IdleConnTimeout == 0 {
		o.IdleConnTimeout = 90 * time.Second
	}
	if o.MaxConcurrencyPerUpstream == 0 {
		o.MaxConcurrencyPerUpstream = 64
	}
}

// upstreamState holds the shared per-upstream resources.
type upstreamState struct {
	transport http.RoundTripper
	slots     *semaphore.Weighted
}

// Executor forwards requests to resolved upstream targets, streaming the
// response back without full buffering.
type Executor struct {
	opts      Options
	upstreams map[string]*upstreamState
	metrics   *observability.Metrics
}

// NewExecutor builds an executor with one bounded transport per upstream
// present in the routing table.
func NewExecutor(table *routing.Table, opts Options, metrics *observability.Metrics) *Executor {
	opts.defaults()

	upstreams := make(map[string]*upstreamState)
	for _, rule := range table.Rules() {
		if _, ok := upstreams[rule.Upstream]; ok {
			continue
		}
		base := &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxConnsPerHost:       int(opts.MaxConcurrencyPerUpstream),
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       opts.IdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		upstreams[rule.Upstream] = &upstreamState{
			transport: otelhttp.NewTransport(base),
			slots:     semaphore.NewWeighted(opts.MaxConcurrencyPerUpstream),
		}
	}

	return &Executor{opts: opts, upstreams: upstreams, metrics: metrics}
}

// Execute forwards the request to the rule's upstream target using the
// rewritten path and streams the response to w. Connection failures surface
// as UpstreamUnavailable, exceeded time budgets as UpstreamTimeout; the
// caller maps those to 503 and 504 respectively.
func (e *Executor) Execute(w http.ResponseWriter, r *http.Request, rule *routing.RouteRule, rewrittenPath string) error {
	state, ok := e.upstreams[rule.Upstream]
	if !ok {
		return apierror.Newf(apierror.KindUpstreamUnavailable,
			"upstream %s is not configured", rule.Upstream)
	}

	// Bounded concurrency per upstream. Waiting is capped by the request
	// context, so an exhausted pool degrades into a timeout instead of an
	// unbounded queue.
	if err := state.slots.Acquire(r.Context(), 1); err != nil {
		if e.metrics != nil {
			e.metrics.ProxyRejectedTotal.WithLabelValues(rule.Upstream).Inc()
		}
		return apierror.Wrap(apierror.KindUpstreamTimeout,
			"upstream "+rule.Upstream+" is at capacity", err)
	}
	defer state.slots.Release(1)

	if e.metrics != nil {
		e.metrics.ProxyInflight.WithLabelValues(rule.Upstream).Inc()
		defer e.metrics.ProxyInflight.WithLabelValues(rule.Upstream).Dec()
	}

	ctx, cancel := context.WithTimeout(r.Context(), e.opts.UpstreamTimeout)
	defer cancel()

	outReq, err := e.buildOutbound(ctx, r, rule.Target(), rewrittenPath)
	if err != nil {
		return apierror.Wrap(apierror.KindUpstreamUnavailable,
			"failed to build upstream request for "+rule.Upstream, err)
	}

	start := time.Now()
	resp, err := state.transport.RoundTrip(outReq)
	if e.metrics != nil {
		e.metrics.ProxyDuration.WithLabelValues(rule.Upstream).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		kind := classify(err, ctx, r.Context())
		if e.metrics != nil {
			e.metrics.ProxyErrorsTotal.WithLabelValues(rule.Upstream, string(kind)).Inc()
		}
		switch kind {
		case apierror.KindUpstreamTimeout:
			return apierror.Wrap(kind, "upstream "+rule.Upstream+" did not respond in time", err)
		case apierror.KindRequestTimeout:
			return apierror.Wrap(kind, "request timed out", err)
		default:
			return apierror.Wrap(kind, "upstream "+rule.Upstream+" is unavailable", err)
		}
	}
	defer resp.Body.Close()

	if e.metrics != nil {
		e.metrics.ProxyRequestsTotal.WithLabelValues(rule.Upstream, strconv.Itoa(resp.StatusCode)).Inc()
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	streamBody(w, resp.Body)
	return nil
}

// buildOutbound constructs the forwarded request: same method and body, the
// rewritten path against the target, filtered headers.
func (e *Executor) buildOutbound(ctx context.Context, r *http.Request, target routing.UpstreamTarget, rewrittenPath string) (*http.Request, error) {
	url := target.URL() + rewrittenPath
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, url, r.Body)
	if err != nil {
		return nil, err
	}
	outReq.ContentLength = r.ContentLength

	outReq.Header = r.Header.Clone()
	removeHopByHop(outReq.Header)
	for _, h := range e.opts.StripHeaders {
		outReq.Header.Del(h)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		prior := outReq.Header.Get("X-Forwarded-For")
		if prior != "" {
			host = prior + ", " + host
		}
		outReq.Header.Set("X-Forwarded-For", host)
	}
	outReq.Header.Set("X-Forwarded-Host", r.Host)
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	outReq.Header.Set("X-Forwarded-Proto", proto)

	if requestID := contextkeys.GetRequestID(r.Context()); requestID != "" {
		outReq.Header.Set("X-Request-ID", requestID)
	}

	return outReq, nil
}

// classify maps a transport error to the taxonomy. The upstream deadline and
// the caller's own context are distinguished so "the backend was slow" and
// "the whole request ran out of budget" do not collapse into one kind.
func classify(err error, upstreamCtx, callerCtx context.Context) apierror.Kind {
	if callerCtx.Err() != nil {
		return apierror.KindRequestTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || upstreamCtx.Err() == context.DeadlineExceeded {
		return apierror.KindUpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierror.KindUpstreamTimeout
	}
	return apierror.KindUpstreamUnavailable
}

// removeHopByHop strips the fixed hop-by-hop set plus anything the
// Connection header names.
func removeHopByHop(h http.Header) {
	for _, value := range h.Values("Connection") {
		for _, field := range strings.Split(value, ",") {
			h.Del(strings.TrimSpace(field))
		}
	}
	for _, field := range hopByHopHeaders {
		h.Del(field)
	}
}

func copyHeaders(dst, src http.Header) {
	cleaned := src.Clone()
	removeHopByHop(cleaned)
	for key, values := range cleaned {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// streamBody copies the upstream body to the caller without buffering the
// whole payload, flushing as data arrives so large and slow responses reach
// the caller incrementally.
func streamBody(w http.ResponseWriter, body io.Reader) {
	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Caller is gone; closing the body releases the
				// upstream connection.
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}
