// internal/probe/probe.go
//
// Probe primitives for runtime-domain verification.
//
// Context
// -------
// A Runner bundles the three network checks the verification flow needs:
// DNS + CNAME resolution, a verifying TLS handshake, and a synthetic bid
// POST.  All network edges (resolver, TLS dialer, HTTP client) are
// constructor-injected interfaces so the orchestrator tests run without a
// real network.  Every operation is timeout-bounded; a timeout surfaces as
// the stage's typed failure code, never as a hang.
//
// Notes
// -----
// • The zero Option set wires net.DefaultResolver, a verifying tls.Dialer,
//   and a pooled http.Client.
// • Runner is stateless and safe for concurrent use.
package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tappyhq/mediation-edge/internal/errcode"
)

// Default stage budgets.  The DNS lookups run inside the TLS stage's
// overall budget; the bid probe gets the end-user-facing upstream budget.
const (
	DefaultTLSTimeout = 8 * time.Second
	DefaultBidTimeout = 10 * time.Second
)

// Resolver is the subset of *net.Resolver the DNS check needs.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// TLSDialer opens one verifying TLS connection to host:443 with SNI set to
// host.  Implementations must honor ctx cancellation.
type TLSDialer interface {
	DialTLS(ctx context.Context, host string) (io.Closer, error)
}

// Doer issues one HTTP request.  *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config carries deployment knobs for the probe pipeline.
type Config struct {
	// GatewayHost is the managed gateway hostname a customer CNAME may
	// point at.  Empty disables CNAME matching entirely.
	GatewayHost string

	// RequireCNAME makes a missing gateway CNAME fatal.  Off by default;
	// direct-to-origin domains are allowed.
	RequireCNAME bool

	TLSTimeout time.Duration
	BidTimeout time.Duration

	// DefaultPlacementID seeds the synthetic probe payload when the caller
	// did not pick a placement.
	DefaultPlacementID string
}

// Runner executes probe stages.  Construct with NewRunner.
type Runner struct {
	cfg      Config
	resolver Resolver
	dialer   TLSDialer
	client   Doer
}

// Option overrides one injected dependency.
type Option func(*Runner)

// WithResolver swaps the DNS resolver (tests).
func WithResolver(r Resolver) Option { return func(rn *Runner) { rn.resolver = r } }

// WithTLSDialer swaps the TLS dialer (tests).
func WithTLSDialer(d TLSDialer) Option { return func(rn *Runner) { rn.dialer = d } }

// WithHTTPClient swaps the HTTP client (tests).
func WithHTTPClient(c Doer) Option { return func(rn *Runner) { rn.client = c } }

// NewRunner builds a Runner with real network defaults, then applies opts.
func NewRunner(cfg Config, opts ...Option) *Runner {
	if cfg.TLSTimeout <= 0 {
		cfg.TLSTimeout = DefaultTLSTimeout
	}
	if cfg.BidTimeout <= 0 {
		cfg.BidTimeout = DefaultBidTimeout
	}
	r := &Runner{
		cfg:      cfg,
		resolver: net.DefaultResolver,
		dialer:   stdTLSDialer{},
		client:   &http.Client{Timeout: cfg.BidTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Checks records the per-stage booleans surfaced in verify responses.
type Checks struct {
	DNSOk        bool `json:"dnsOk"`
	CNAMEOk      bool `json:"cnameOk"`
	TLSOk        bool `json:"tlsOk"`
	ConnectOk    bool `json:"connectOk"`
	AuthOk       bool `json:"authOk"`
	BidOk        bool `json:"bidOk"`
	LandingURLOk bool `json:"landingUrlOk"`
}

// Result is one structured probe outcome.  It is returned to the dashboard
// and stored on the binding as probeDiagnostics; routing never reads it.
type Result struct {
	Source     string       `json:"source"` // "server" or "browser"
	OK         bool         `json:"ok"`
	Code       errcode.Code `json:"code,omitempty"`
	HTTPStatus int          `json:"httpStatus,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	LandingURL string       `json:"landingUrl,omitempty"`
}

// stdTLSDialer is the production TLSDialer: certificate validation on,
// SNI set to the hostname, port 443.
type stdTLSDialer struct{}

func (stdTLSDialer) DialTLS(ctx context.Context, host string) (io.Closer, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{ServerName: host},
	}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
}
