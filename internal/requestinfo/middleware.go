// internal/requestinfo/middleware.go
//
// HTTP middleware that enriches each request with *Info.
//
/*
Context
--------
The Enricher sits high in the chain, after logging / metrics but before
the bid handlers.  For every request it:

  1. Parses the User-Agent header and Accept-Language list.
  2. Extracts the left-most public client IP from X-Forwarded-For or
     X-Real-IP, falling back to `r.RemoteAddr`.
  3. Performs a GeoLite2 lookup when a database was configured.
  4. Stores an `*Info` value in `request.Context` under an unexported
     key, so the bid proxy can stamp X-Client-* headers without
     reparsing.

Notes
-----
  • All look-ups are read-only and pool-based, so the middleware is safe
    under heavy concurrency.
  • A nil geo reader degrades to UA-only enrichment.  Bid traffic must
    never fail because the GeoLite2 file is missing.
*/
package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Enricher attaches client metadata to incoming requests.
type Enricher struct {
	geo *geoip2.Reader
	log *zap.SugaredLogger
}

// NewEnricher wires an Enricher.  geo may be nil.
func NewEnricher(geo *geoip2.Reader, log *zap.SugaredLogger) *Enricher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Enricher{geo: geo, log: log}
}

// Middleware wraps an http.Handler, attaches *Info, and forwards.
func (e *Enricher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		info := &Info{
			UA:        parseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
			Geo:       e.lookupGeo(ip),
			Timestamp: time.Now().UTC(),
		}

		e.log.Debugw("request info",
			"ip", info.Geo.IP,
			"country", info.Geo.CountryISO,
			"browser", info.UA.Browser,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
			"path", r.URL.Path,
		)

		ctx := context.WithValue(r.Context(), ctxKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// lookupGeo returns best-effort Geo data.
func (e *Enricher) lookupGeo(ip net.IP) Geo {
	if e.geo == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := e.geo.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{
		IP:         ip,
		CountryISO: rec.Country.IsoCode,
		City:       rec.City.Names["en"],
	}
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
