// internal/runtimedomain/normalize.go
//
// Domain normalization for customer runtime origins.
//
// Context
// -------
// Customers paste anything into the domain field: bare hosts, full URLs,
// trailing dots, mixed case.  Normalize turns that free text into a safe
// HTTPS origin or rejects it.  Rejection always reports CNAME_MISMATCH;
// the taxonomy reuses that code for "domain unusable" so the dashboard can
// render a single remediation path.
//
// Private, loopback, link-local, and reserved placeholder hosts are
// rejected outright so a probe can never be pointed at internal
// infrastructure.
package runtimedomain

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/tappyhq/mediation-edge/internal/errcode"
)

// Origin is the result of a successful normalization.  RuntimeBaseURL
// carries no path, query, or fragment.
type Origin struct {
	Hostname       string
	RuntimeBaseURL string
}

// Normalize validates and canonicalizes a user-supplied domain string.
func Normalize(raw string) (Origin, *errcode.Error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Origin{}, errcode.New(errcode.CNAMEMismatch, "domain is empty")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Origin{}, errcode.Wrap(errcode.CNAMEMismatch, "domain is not a valid URL", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return Origin{}, errcode.New(errcode.CNAMEMismatch, "runtime origin must use https")
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return Origin{}, errcode.New(errcode.CNAMEMismatch, "domain has no hostname")
	}
	if reason := restricted(host); reason != "" {
		return Origin{}, errcode.New(errcode.CNAMEMismatch, reason)
	}

	return Origin{
		Hostname:       host,
		RuntimeBaseURL: "https://" + host,
	}, nil
}

// restricted reports why host may not be probed, or "" when it is allowed.
func restricted(host string) string {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") {
		return "localhost and .local hosts cannot serve a public runtime"
	}
	if host == "example.com" || strings.HasSuffix(host, ".example.com") {
		return "example.com is a reserved placeholder domain"
	}

	// Literal IPs: reject anything that is not globally routable.
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if privateAddr(addr) {
			return "private, loopback, and link-local addresses are not reachable from the edge"
		}
	}
	return ""
}

// privateAddr covers 10/8, 127/8, 169.254/16, 172.16/12, 192.168/16, ::1,
// fc00::/7, and fe80::/10.
func privateAddr(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
