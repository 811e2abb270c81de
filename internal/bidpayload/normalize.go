// internal/bidpayload/normalize.go
//
// Landing-URL extraction and bid payload normalization.
//
// Context
// -------
// Runtimes return bids in a handful of historical shapes.  Callers only
// care about one thing: a usable landing URL.  Normalize walks a priority
// list of explicit fields, then the same fields nested under "bid" or
// "data", and finally falls back to the first http(s) URL embedded in a
// free-text reason message.  The winning value is written back into the
// payload as landingUrl (and into a nested "ad" object when present) so
// every caller sees one canonical shape.
//
// The same routine runs during probing and during live proxying.
package bidpayload

import (
	"regexp"
	"strings"
)

// landingFields is the priority order for explicit URL fields.
var landingFields = []string{
	"landingUrl",
	"url",
	"link",
	"redirectUrl",
	"targetUrl",
	"clickUrl",
	"destinationUrl",
}

// nestedContainers are objects searched with the same field priority when
// no top-level field matches.
var nestedContainers = []string{"bid", "data"}

// messageFields may contain a URL inside free text.
var messageFields = []string{"reasonMessage", "message"}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// Normalized is the outcome of payload normalization.
type Normalized struct {
	LandingURL string
	Payload    map[string]any
}

// Normalize extracts the landing URL from payload and returns the payload
// with landingUrl set.  LandingURL is "" when no candidate was found; the
// payload is returned unchanged in that case.
func Normalize(payload map[string]any) Normalized {
	if payload == nil {
		return Normalized{}
	}

	landing := ExtractLandingURL(payload)
	if landing == "" {
		return Normalized{Payload: payload}
	}

	payload["landingUrl"] = landing
	if ad, ok := payload["ad"].(map[string]any); ok {
		ad["landingUrl"] = landing
	}
	return Normalized{LandingURL: landing, Payload: payload}
}

// ExtractLandingURL applies the priority rule without mutating payload.
func ExtractLandingURL(payload map[string]any) string {
	if v := fieldScan(payload); v != "" {
		return v
	}
	for _, key := range nestedContainers {
		if nested, ok := payload[key].(map[string]any); ok {
			if v := fieldScan(nested); v != "" {
				return v
			}
		}
	}
	for _, key := range messageFields {
		if text, ok := payload[key].(string); ok {
			if m := urlPattern.FindString(text); m != "" {
				return m
			}
		}
	}
	return ""
}

// Filled reports whether the payload represents a filled bid.  An absent
// "filled" key counts as filled; only an explicit false is a no-fill.
func Filled(payload map[string]any) bool {
	if v, ok := payload["filled"].(bool); ok {
		return v
	}
	return true
}

func fieldScan(obj map[string]any) string {
	for _, field := range landingFields {
		if s, ok := obj[field].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
