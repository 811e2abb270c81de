// internal/verify/reprobe.go
//
// Standalone re-probe: re-runs only the bid probe against an existing
// binding.  DNS and TLS are not re-checked; they were proven once during
// verify-and-bind and re-proving them adds latency without signal.
//
// A client may attach its own browser-side probe result.  That input is
// trusted only to soften the classification: a server-side failure paired
// with a browser-side success means the edge's egress is restricted, not
// that the customer misconfigured anything, so the final status becomes
// pending/EGRESS_BLOCKED.  A browser result never upgrades a binding to
// verified.

package verify

import (
	"context"
	"time"

	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/metrics"
	"github.com/tappyhq/mediation-edge/internal/probe"
	"github.com/tappyhq/mediation-edge/internal/runtimedomain"
)

// ProbeRequest is one re-probe call.  Domain and ProbeHeaders override
// the stored binding when present.  RunBrowserProbe marks a client that
// can execute a browser-side probe and resubmit its result.
type ProbeRequest struct {
	Authorization   string
	Domain          string
	PlacementID     string
	ProbeHeaders    map[string]string
	RunBrowserProbe bool
	BrowserProbe    *probe.Result
}

// ProbeResponse is the re-probe result body.
type ProbeResponse struct {
	Status            string            `json:"status"`
	FinalStatus       string            `json:"finalStatus"`
	RuntimeBaseURL    string            `json:"runtimeBaseUrl,omitempty"`
	ServerProbe       *probe.Result     `json:"serverProbe"`
	BrowserProbe      *probe.Result     `json:"browserProbe,omitempty"`
	ProbeResult       *probe.Result     `json:"probeResult"`
	FailureCode       errcode.Code      `json:"failureCode,omitempty"`
	LegacyCode        string            `json:"legacyCode,omitempty"`
	NextActions       []string          `json:"nextActions"`
	BindStatus        binding.Status    `json:"bindStatus"`
	PlacementDefaults PlacementDefaults `json:"placementDefaults"`

	// BrowserProbeRequested asks the client to run its browser-side
	// probe and resubmit with the result attached.  Set only when the
	// server probe failed, the client offered to run one and none was
	// attached to this call.
	BrowserProbeRequested bool `json:"browserProbeRequested,omitempty"`
}

// Reprobe re-runs the bid probe and reconciles the binding.
func (o *Orchestrator) Reprobe(ctx context.Context, req ProbeRequest) *ProbeResponse {
	resp := &ProbeResponse{
		Status:            string(binding.StatusFailed),
		FinalStatus:       string(binding.StatusFailed),
		NextActions:       []string{},
		BindStatus:        binding.StatusUnbound,
		PlacementDefaults: PlacementDefaults{PlacementID: o.defaultPlacement},
	}

	auth, ok := binding.NormalizeAuthorization(req.Authorization)
	if !ok {
		return o.reprobeFailed(resp, errcode.New(errcode.Auth401403,
			"an Authorization: Bearer header is required to probe"))
	}

	rec, err := o.store.Get(ctx, auth)
	if err != nil {
		return o.reprobeFailed(resp, errcode.AsError(err, errcode.EgressBlocked))
	}

	baseURL := ""
	if req.Domain != "" {
		origin, ferr := runtimedomain.Normalize(req.Domain)
		if ferr != nil {
			return o.reprobeFailed(resp, ferr)
		}
		baseURL = origin.RuntimeBaseURL
	} else if rec != nil {
		baseURL = rec.RuntimeBaseURL
	}
	if baseURL == "" {
		return o.reprobeFailed(resp, errcode.New(errcode.NotBound,
			"no runtime domain is bound to this key; run verify-and-bind first"))
	}
	resp.RuntimeBaseURL = baseURL

	headers, ferr := probe.SanitizeHeaders(req.ProbeHeaders)
	if ferr != nil {
		return o.reprobeFailed(resp, ferr)
	}
	if headers == nil && rec != nil && rec.ProbeHeadersBlob != "" {
		if stored, err := o.codec.Decode(rec.ProbeHeadersBlob); err == nil {
			headers = stored
		}
	}

	placement := req.PlacementID
	if placement == "" && rec != nil {
		placement = rec.PlacementID
	}

	if rec == nil {
		rec = &binding.Record{
			KeyHash:        binding.HashKey(auth),
			TenantID:       binding.TenantID(auth),
			RuntimeBaseURL: baseURL,
			PlacementID:    placement,
			BindStatus:     binding.StatusPending,
		}
	}

	outcome, perr := o.probes.BidProbe(ctx, probe.BidRequest{
		RuntimeBaseURL: baseURL,
		Authorization:  auth,
		Headers:        headers,
		PlacementID:    placement,
	})

	resp.BrowserProbe = req.BrowserProbe
	now := time.Now().UTC()
	rec.LastProbeAt = &now

	if perr == nil {
		rec.BindStatus = binding.StatusVerified
		rec.RuntimeBaseURL = baseURL
		rec.VerifiedAt = &now
		rec.LastProbeCode = string(errcode.Verified)
		rec.LastProbeHTTPStatus = outcome.HTTPStatus
		server := &probe.Result{
			Source:     "server",
			OK:         true,
			HTTPStatus: outcome.HTTPStatus,
			LandingURL: outcome.LandingURL,
		}
		rec.ProbeDiagnostics = diagnostics(server, req.BrowserProbe)
		o.store.Save(ctx, auth, rec)

		resp.Status = string(binding.StatusVerified)
		resp.FinalStatus = string(binding.StatusVerified)
		resp.BindStatus = binding.StatusVerified
		resp.ServerProbe = server
		resp.ProbeResult = server
		metrics.ProbeTotal.WithLabelValues(string(errcode.Verified)).Inc()
		return resp
	}

	server := serverResult(perr)
	finalCode := perr.Code
	resp.BrowserProbeRequested = req.RunBrowserProbe && req.BrowserProbe == nil
	if req.BrowserProbe != nil && req.BrowserProbe.OK {
		// Browser reached the runtime while the edge could not: the
		// failure is on our side of the network.
		finalCode = errcode.EgressBlocked
	}

	rec.BindStatus = binding.StatusPending
	rec.LastProbeCode = string(finalCode)
	rec.LastProbeHTTPStatus = perr.HTTPStatus
	rec.ProbeDiagnostics = diagnostics(server, req.BrowserProbe)
	o.store.Save(ctx, auth, rec)

	resp.Status = string(binding.StatusPending)
	resp.FinalStatus = string(binding.StatusPending)
	resp.BindStatus = binding.StatusPending
	resp.ServerProbe = server
	resp.ProbeResult = server
	resp.FailureCode = finalCode
	resp.LegacyCode = errcode.Legacy(finalCode)
	resp.NextActions = NextActions(finalCode)
	metrics.ProbeTotal.WithLabelValues(string(finalCode)).Inc()
	return resp
}

// reprobeFailed finalizes a terminal failure before any probe ran.
func (o *Orchestrator) reprobeFailed(resp *ProbeResponse, ferr *errcode.Error) *ProbeResponse {
	resp.FailureCode = ferr.Code
	resp.LegacyCode = errcode.Legacy(ferr.Code)
	resp.NextActions = NextActions(ferr.Code)
	return resp
}

func diagnostics(server *probe.Result, browser *probe.Result) []probe.Result {
	out := []probe.Result{*server}
	if browser != nil {
		b := *browser
		b.Source = "browser"
		out = append(out, b)
	}
	return out
}
