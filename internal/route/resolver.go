// internal/route/resolver.go
//
// Routing resolver for live bid requests.
//
// Context
// -------
// Resolve is a pure function from (config, binding snapshot) to a route
// decision; it performs no I/O so the precedence rules stay trivially
// testable.  Precedence:
//
//	1. operator override URL                → override, unconditionally
//	2. verified binding with a runtime URL  → customer origin
//	3. any other existing binding           → managed fallback, if
//	   configured and not disabled
//	4. no binding                           → managed default, if
//	   configured
//
// Otherwise MANAGED_RUNTIME_NOT_CONFIGURED, carrying the binding status
// so operators can tell an unverified customer from an absent one.  Every
// successful decision is tagged with its runtime source, which downstream
// responses surface as a diagnostic header.

package route

import (
	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/metrics"
)

// Source identifies which backend serves a routed request.
type Source string

const (
	SourceOverride        Source = "override"
	SourceCustomer        Source = "customer"
	SourceManagedFallback Source = "managed_fallback"
	SourceManagedDefault  Source = "managed_default"
)

// Config carries the managed-runtime knobs the resolver consults.
type Config struct {
	// OverrideBaseURL, when set, routes every bid to one runtime no
	// matter what is bound.  Operators use it to pin an environment.
	OverrideBaseURL string

	// ManagedBaseURL is the operator-owned runtime used for both the
	// fallback and default branches.  Empty removes those branches.
	ManagedBaseURL string

	// DisableFallback turns off the managed-fallback branch for tenants
	// that have a (non-verified) binding.
	DisableFallback bool
}

// Decision is a resolved route.
type Decision struct {
	RuntimeBaseURL string
	Source         Source
	BindStatus     binding.Status
}

// Resolve picks the runtime that serves a bid for the given binding
// snapshot (nil = no binding).  On failure the returned Decision still
// carries the bind status for the error response.
func Resolve(cfg Config, rec *binding.Record) (Decision, *errcode.Error) {
	if cfg.OverrideBaseURL != "" {
		status := binding.StatusUnbound
		if rec != nil {
			status = rec.BindStatus
		}
		metrics.RouteDecisions.WithLabelValues(string(SourceOverride)).Inc()
		return Decision{
			RuntimeBaseURL: cfg.OverrideBaseURL,
			Source:         SourceOverride,
			BindStatus:     status,
		}, nil
	}

	if rec != nil {
		if rec.BindStatus == binding.StatusVerified && rec.RuntimeBaseURL != "" {
			metrics.RouteDecisions.WithLabelValues(string(SourceCustomer)).Inc()
			return Decision{
				RuntimeBaseURL: rec.RuntimeBaseURL,
				Source:         SourceCustomer,
				BindStatus:     rec.BindStatus,
			}, nil
		}

		if cfg.ManagedBaseURL != "" && !cfg.DisableFallback {
			metrics.RouteDecisions.WithLabelValues(string(SourceManagedFallback)).Inc()
			return Decision{
				RuntimeBaseURL: cfg.ManagedBaseURL,
				Source:         SourceManagedFallback,
				BindStatus:     rec.BindStatus,
			}, nil
		}

		metrics.RouteDecisions.WithLabelValues("none").Inc()
		return Decision{BindStatus: rec.BindStatus}, errcode.New(errcode.ManagedNotConfigured,
			"runtime domain is not verified and no managed fallback runtime is configured; "+
				"finish verify-and-bind or configure a managed runtime")
	}

	if cfg.ManagedBaseURL != "" {
		metrics.RouteDecisions.WithLabelValues(string(SourceManagedDefault)).Inc()
		return Decision{
			RuntimeBaseURL: cfg.ManagedBaseURL,
			Source:         SourceManagedDefault,
			BindStatus:     binding.StatusUnbound,
		}, nil
	}

	metrics.RouteDecisions.WithLabelValues("none").Inc()
	return Decision{BindStatus: binding.StatusUnbound}, errcode.New(errcode.ManagedNotConfigured,
		"no runtime domain is bound to this key and no managed default runtime is configured")
}
