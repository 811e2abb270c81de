// internal/errcode/errcode.go
//
// Failure taxonomy for runtime-domain verification and bid routing.
//
// Context
// -------
// Every failure the edge can produce is identified by a fine-grained Code.
// Older SDK builds only understand three coarse codes, so each fine code
// also maps to a legacy code via Legacy().  Responses carry both whenever
// they differ.
//
// Error is a tagged value type, not an exception hierarchy: it carries the
// code, a suggested HTTP status for the raw upstream outcome, and free-text
// detail.  Callers branch on Code, never on Detail.
package errcode

import "fmt"

// Code identifies one failure class in the verification and routing flow.
type Code string

const (
	// Pre-flight and probe failures.
	DNSNotFound         Code = "DNS_ENOTFOUND"
	CNAMEMismatch       Code = "CNAME_MISMATCH"
	TLSInvalid          Code = "TLS_INVALID"
	Auth401403          Code = "AUTH_401_403"
	Endpoint404         Code = "ENDPOINT_404"
	Method405           Code = "METHOD_405"
	Upstream5xx         Code = "UPSTREAM_5XX"
	EgressBlocked       Code = "EGRESS_BLOCKED"
	CORSBlocked         Code = "CORS_BLOCKED"
	BidInvalidJSON      Code = "BID_INVALID_RESPONSE_JSON"
	LandingURLMissing   Code = "LANDING_URL_MISSING"
	ProbeHeadersInvalid Code = "PROBE_HEADERS_INVALID"

	// Routing and live-bid failures.
	ManagedNotConfigured Code = "MANAGED_RUNTIME_NOT_CONFIGURED"
	ManagedUnavailable   Code = "MANAGED_RUNTIME_UNAVAILABLE"
	NotBound             Code = "RUNTIME_DOMAIN_NOT_BOUND"
	RouteUnavailable     Code = "RUNTIME_ROUTE_UNAVAILABLE"

	// Sentinel written into a binding after a fully successful probe.
	Verified Code = "VERIFIED"
)

// Legacy code values understood by pre-v2 SDK clients.
const (
	LegacyNetworkBlocked     = "NETWORK_BLOCKED"
	LegacyAuthForbidden      = "AUTH_FORBIDDEN"
	LegacyBidInvalidResponse = "BID_INVALID_RESPONSE"
)

// Legacy compresses a fine-grained code into the coarse legacy taxonomy.
// Codes without a legacy counterpart return "" and the response omits the
// legacyCode field.
func Legacy(c Code) string {
	switch c {
	case Auth401403:
		return LegacyAuthForbidden
	case Endpoint404, Method405, Upstream5xx, EgressBlocked, CORSBlocked:
		return LegacyNetworkBlocked
	case BidInvalidJSON, LandingURLMissing:
		return LegacyBidInvalidResponse
	default:
		return ""
	}
}

// Error tags a failure with its taxonomy code.  HTTPStatus records the
// upstream status that produced the classification (0 when no HTTP round
// trip happened).
type Error struct {
	Code       Code
	HTTPStatus int
	Detail     string
	cause      error
}

// New builds an Error without an underlying cause.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap builds an Error around an underlying network or parse error.
func Wrap(code Code, detail string, cause error) *Error {
	return &Error{Code: code, Detail: detail, cause: cause}
}

// WithStatus returns a copy of e annotated with the upstream HTTP status.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the taxonomy code from err, or fallback when err is not
// an *Error.
func CodeOf(err error, fallback Code) Code {
	if te, ok := err.(*Error); ok {
		return te.Code
	}
	return fallback
}

// AsError returns err as *Error, wrapping foreign errors under fallback.
func AsError(err error, fallback Code) *Error {
	if te, ok := err.(*Error); ok {
		return te
	}
	return Wrap(fallback, err.Error(), err)
}
