// internal/probe/headers.go
//
// Probe-header sanitization.
//
// Customers may register up to two headers to replay on every probe, e.g.
// a static gateway token.  Only the authorization key and x-/cf- prefixed
// keys are accepted, and the combined byte size is capped.  Violations
// fail fast with PROBE_HEADERS_INVALID before any network call.

package probe

import (
	"fmt"
	"strings"

	"github.com/tappyhq/mediation-edge/internal/errcode"
)

const (
	// MaxCustomHeaders bounds how many headers a binding may replay.
	MaxCustomHeaders = 2

	// MaxHeaderBytes caps the combined size of all names and values.
	MaxHeaderBytes = 1024
)

// SanitizeHeaders validates and canonicalizes caller-supplied probe
// headers.  Keys come back lower-cased; a nil input yields a nil map.
func SanitizeHeaders(in map[string]string) (map[string]string, *errcode.Error) {
	if len(in) == 0 {
		return nil, nil
	}
	if len(in) > MaxCustomHeaders {
		return nil, errcode.New(errcode.ProbeHeadersInvalid,
			fmt.Sprintf("at most %d probe headers are allowed, got %d", MaxCustomHeaders, len(in)))
	}

	out := make(map[string]string, len(in))
	total := 0
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if !allowedHeaderKey(key) {
			return nil, errcode.New(errcode.ProbeHeadersInvalid,
				fmt.Sprintf("header %q is not allowed; use authorization or an x-/cf- prefixed name", k))
		}
		total += len(key) + len(v)
		if total > MaxHeaderBytes {
			return nil, errcode.New(errcode.ProbeHeadersInvalid,
				fmt.Sprintf("combined probe headers exceed %d bytes", MaxHeaderBytes))
		}
		out[key] = v
	}
	return out, nil
}

func allowedHeaderKey(key string) bool {
	return key == "authorization" ||
		strings.HasPrefix(key, "x-") ||
		strings.HasPrefix(key, "cf-")
}
