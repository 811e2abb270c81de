// internal/verify/nextactions.go
//
// Operator remediation hints per failure code.  Every failure path
// attaches these so the dashboard never renders a bare code.

package verify

import "github.com/tappyhq/mediation-edge/internal/errcode"

var nextActions = map[errcode.Code][]string{
	errcode.DNSNotFound: {
		"Add an A, AAAA, or CNAME record for the domain at your DNS provider.",
		"DNS changes can take up to an hour to propagate; retry after that.",
	},
	errcode.CNAMEMismatch: {
		"Use a public HTTPS domain you control; localhost, private, and example.com hosts cannot be bound.",
		"If your deployment requires the gateway CNAME, point the domain at the configured gateway host.",
	},
	errcode.TLSInvalid: {
		"Install a valid, unexpired TLS certificate that covers this exact hostname.",
		"Confirm port 443 is open and terminates TLS (not plain HTTP).",
	},
	errcode.Auth401403: {
		"The runtime rejected the API key; configure it to accept the key you are binding.",
		"If the runtime sits behind an auth proxy, add its token as a probe header.",
	},
	errcode.Endpoint404: {
		"Expose POST /api/v2/bid on the runtime; the probe found no such route.",
	},
	errcode.Method405: {
		"The bid endpoint must accept POST; it currently rejects the method.",
	},
	errcode.Upstream5xx: {
		"The runtime crashed while answering the probe; check its server logs.",
	},
	errcode.EgressBlocked: {
		"The edge could not reach the runtime; check firewalls and IP allow-lists.",
		"If the domain works from a browser, your network likely blocks our egress range.",
	},
	errcode.CORSBlocked: {
		"Allow cross-origin POSTs to /api/v2/bid, or probe from the dashboard instead.",
	},
	errcode.BidInvalidJSON: {
		"The bid endpoint must answer with a JSON object; it returned something else.",
	},
	errcode.LandingURLMissing: {
		"Include a landingUrl (or url/link) field in the bid response.",
	},
	errcode.ProbeHeadersInvalid: {
		"Use at most 2 probe headers, named authorization or prefixed x-/cf-, within the size cap.",
	},
	errcode.NotBound: {
		"Run verify-and-bind with your runtime domain before probing.",
	},
	errcode.ManagedNotConfigured: {
		"Verify your runtime domain, or ask your operator to configure a managed runtime.",
	},
}

var defaultNextActions = []string{
	"Retry the verification; if the failure persists, contact support with the requestId.",
}

// NextActions returns remediation hints for code, falling back to a
// generic hint for unrecognized codes.
func NextActions(code errcode.Code) []string {
	if hints, ok := nextActions[code]; ok {
		return append([]string(nil), hints...)
	}
	return append([]string(nil), defaultNextActions...)
}
