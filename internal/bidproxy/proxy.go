// internal/bidproxy/proxy.go
//
// Live bid forwarding to the resolved runtime.
//
// Context
// -------
// Once the routing resolver has picked a runtime base URL, the proxy
// forwards the caller's POST body to {base}/api/v2/bid with a filtered
// header set, then normalizes the reply so SDK clients always receive a
// usable landingUrl.  Non-JSON upstream bodies pass through byte for
// byte.  Network failures classify by the active route: a managed
// backend going dark is an operator problem (MANAGED_RUNTIME_UNAVAILABLE),
// a customer runtime going dark is an egress problem.
//
// Notes
// -----
// Hop-by-hop headers are stripped per RFC 9110 §7.6.1.  Browser-only
// headers (Origin, Referer, Sec-Fetch-*) are stripped because the
// upstream runtime must see the edge, not the end user's browser, as
// the requesting party.  Authorization is always forced from the
// validated caller header, never forwarded blind.
package bidproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tappyhq/mediation-edge/internal/bidpayload"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/metrics"
	"github.com/tappyhq/mediation-edge/internal/route"
)

const (
	// BidPath is the upstream endpoint every runtime must expose.
	BidPath = "/api/v2/bid"

	// ForwardTimeout bounds one upstream round trip.
	ForwardTimeout = 10 * time.Second

	// SourceHeader reports which backend served the request.
	SourceHeader = "X-Tappy-Runtime-Source"

	maxUpstreamBodyBytes = 4 << 20
)

// Header keys never forwarded upstream.  Hop-by-hop per RFC 9110 plus
// framing headers the outbound client manages itself.
var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
	"host":                {},
	"content-length":      {},
}

// Browser-context headers that would confuse upstream CORS and
// anti-abuse checks if forwarded.
var browserOnlyHeaders = map[string]struct{}{
	"origin":  {},
	"referer": {},
	"cookie":  {},
}

var browserOnlyPrefixes = []string{"sec-fetch-", "sec-ch-", "access-control-request-"}

// Doer is the outbound HTTP client seam.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Proxy forwards live bid requests to a resolved runtime.
type Proxy struct {
	client  Doer
	timeout time.Duration
	log     *zap.SugaredLogger
}

// Option tunes a Proxy.
type Option func(*Proxy)

// WithTimeout overrides ForwardTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.timeout = d }
}

// New wires a Proxy.  A nil client falls back to a default outbound
// client; a nil log discards.
func New(client Doer, log *zap.SugaredLogger, opts ...Option) *Proxy {
	if client == nil {
		client = &http.Client{Timeout: ForwardTimeout}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Proxy{client: client, timeout: ForwardTimeout, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request is one live bid to forward.
type Request struct {
	Target        route.Decision
	Authorization string
	Body          []byte
	Header        http.Header
}

// Result is a forwarded upstream reply.  Exactly one of Raw or Payload
// is populated: Raw for non-JSON passthrough, Payload for normalized
// JSON.
type Result struct {
	HTTPStatus  int
	ContentType string
	Raw         []byte
	Payload     map[string]any
	LandingURL  string
	Filled      bool
}

// Forward sends req.Body to the target runtime and normalizes the reply.
func (p *Proxy) Forward(ctx context.Context, req Request) (*Result, *errcode.Error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(req.Target.RuntimeBaseURL, "/")+BidPath,
		bytes.NewReader(req.Body))
	if err != nil {
		return nil, errcode.Wrap(errcode.EgressBlocked, "build upstream request", err)
	}
	out.Header = FilterHeaders(req.Header)
	out.Header.Set("Authorization", req.Authorization)
	if out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", "application/json")
	}
	if origin := req.Header.Get("Origin"); origin != "" {
		out.Header.Set("X-Forwarded-Origin", origin)
	}

	resp, err := p.client.Do(out)
	if err != nil {
		metrics.BidProxied.WithLabelValues("network_error").Inc()
		code := networkCode(req.Target.Source)
		p.log.Warnw("bid upstream unreachable",
			"source", string(req.Target.Source), "error", err)
		return nil, errcode.Wrap(code, "upstream request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodyBytes))
	if err != nil {
		metrics.BidProxied.WithLabelValues("network_error").Inc()
		return nil, errcode.Wrap(networkCode(req.Target.Source), "read upstream body", err)
	}

	ct := resp.Header.Get("Content-Type")
	if !isJSON(ct) {
		metrics.BidProxied.WithLabelValues("passthrough").Inc()
		return &Result{HTTPStatus: resp.StatusCode, ContentType: ct, Raw: body, Filled: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Upstream error bodies are the runtime's own structured errors.
		// Forward them untouched with their status.
		metrics.BidProxied.WithLabelValues("upstream_error").Inc()
		return &Result{HTTPStatus: resp.StatusCode, ContentType: ct, Raw: body, Filled: true}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.BidProxied.WithLabelValues("invalid_json").Inc()
		return nil, errcode.Wrap(errcode.BidInvalidJSON, "upstream body is not a JSON object", err).
			WithStatus(resp.StatusCode)
	}

	if !bidpayload.Filled(payload) {
		metrics.BidProxied.WithLabelValues("no_fill").Inc()
		return &Result{HTTPStatus: resp.StatusCode, ContentType: ct, Payload: payload}, nil
	}

	norm := bidpayload.Normalize(payload)
	if norm.LandingURL == "" {
		metrics.BidProxied.WithLabelValues("missing_landing_url").Inc()
		return nil, errcode.New(errcode.LandingURLMissing, "no landing URL in filled bid").
			WithStatus(resp.StatusCode)
	}

	metrics.BidProxied.WithLabelValues("ok").Inc()
	return &Result{
		HTTPStatus:  resp.StatusCode,
		ContentType: ct,
		Payload:     norm.Payload,
		LandingURL:  norm.LandingURL,
		Filled:      true,
	}, nil
}

// FilterHeaders copies h minus hop-by-hop and browser-context headers.
// Authorization is dropped here too; Forward re-adds the validated one.
func FilterHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for key, vals := range h {
		lower := strings.ToLower(key)
		if lower == "authorization" {
			continue
		}
		if _, drop := hopByHopHeaders[lower]; drop {
			continue
		}
		if _, drop := browserOnlyHeaders[lower]; drop {
			continue
		}
		if hasAnyPrefix(lower, browserOnlyPrefixes) {
			continue
		}
		for _, v := range vals {
			out.Add(key, v)
		}
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

func networkCode(src route.Source) errcode.Code {
	if src == route.SourceManagedFallback || src == route.SourceManagedDefault {
		return errcode.ManagedUnavailable
	}
	return errcode.EgressBlocked
}
