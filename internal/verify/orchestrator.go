// internal/verify/orchestrator.go
//
// Verification orchestrator: the verify-and-bind state machine.
//
// Context
// -------
// One verify-and-bind call walks a strict sequence:
//
//	normalize domain → sanitize headers → require auth      (stateless)
//	DNS + CNAME → TLS                                       (stateless)
//	persist pending snapshot                                (first write)
//	bid probe → persist final snapshot
//
// The pre-flight stages never touch the store, so a typo'd domain leaves
// no residue.  The pending snapshot is written before the bid probe on
// purpose: a record must exist even when the probe then fails, because
// the dashboard polls the binding for progress.  Every failure is folded
// into a structured 200-level response; this subsystem never 5xx's the
// verify endpoints.
//
// Notes
// -----
//   - Concurrent verifies for one key may interleave; each persisted
//     snapshot is complete, so last writer wins without corruption.
package verify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/metrics"
	"github.com/tappyhq/mediation-edge/internal/probe"
	"github.com/tappyhq/mediation-edge/internal/runtimedomain"
)

// Bind stages reported to the dashboard.
const (
	StageBound       = "bound"
	StageProbeFailed = "probe_failed"
	StagePreflight   = "preflight_failed"
	StageRejected    = "rejected"
)

// DefaultPlacementID seeds probes when the caller picks no placement.
const DefaultPlacementID = "chat_from_answer_v1"

// Orchestrator drives the probe pipeline and the binding store.
type Orchestrator struct {
	probes           *probe.Runner
	store            *binding.Store
	codec            binding.HeaderCodec
	defaultPlacement string
}

// New wires an Orchestrator.  defaultPlacement "" falls back to
// DefaultPlacementID.
func New(probes *probe.Runner, store *binding.Store, codec binding.HeaderCodec, defaultPlacement string) *Orchestrator {
	if defaultPlacement == "" {
		defaultPlacement = DefaultPlacementID
	}
	return &Orchestrator{
		probes:           probes,
		store:            store,
		codec:            codec,
		defaultPlacement: defaultPlacement,
	}
}

// Request is one verify-and-bind call.
type Request struct {
	Authorization string
	Domain        string
	PlacementID   string
	ProbeHeaders  map[string]string
}

// PlacementDefaults tells clients which placement probes default to.
type PlacementDefaults struct {
	PlacementID string `json:"placementId"`
}

// Response is the verify-and-bind result body.  Failures are encoded in
// the body, never the HTTP status line.
type Response struct {
	Status            string            `json:"status"`
	BindStage         string            `json:"bindStage"`
	RuntimeBaseURL    string            `json:"runtimeBaseUrl,omitempty"`
	Checks            probe.Checks      `json:"checks"`
	RequestID         string            `json:"requestId"`
	FailureCode       errcode.Code      `json:"failureCode,omitempty"`
	LegacyCode        string            `json:"legacyCode,omitempty"`
	ProbeResult       *probe.Result     `json:"probeResult,omitempty"`
	LandingURLSample  string            `json:"landingUrlSample,omitempty"`
	NextActions       []string          `json:"nextActions"`
	TenantID          string            `json:"tenantId,omitempty"`
	BindStatus        binding.Status    `json:"bindStatus"`
	PlacementDefaults PlacementDefaults `json:"placementDefaults"`
}

// VerifyAndBind runs the full state machine for one request.
func (o *Orchestrator) VerifyAndBind(ctx context.Context, req Request) *Response {
	resp := &Response{
		RequestID:         newRequestID(),
		Status:            string(binding.StatusFailed),
		BindStatus:        binding.StatusUnbound,
		NextActions:       []string{},
		PlacementDefaults: PlacementDefaults{PlacementID: o.defaultPlacement},
	}

	auth, ok := binding.NormalizeAuthorization(req.Authorization)
	if !ok {
		return o.reject(resp, errcode.New(errcode.Auth401403,
			"an Authorization: Bearer header is required to bind a runtime domain"))
	}
	resp.TenantID = binding.TenantID(auth)

	origin, ferr := runtimedomain.Normalize(req.Domain)
	if ferr != nil {
		return o.reject(resp, ferr)
	}
	resp.RuntimeBaseURL = origin.RuntimeBaseURL

	headers, ferr := probe.SanitizeHeaders(req.ProbeHeaders)
	if ferr != nil {
		return o.reject(resp, ferr)
	}

	// Stateless pre-flight: nothing is persisted until DNS and TLS pass.
	dnsStatus, err := o.probes.CheckDNS(ctx, origin.Hostname)
	resp.Checks.DNSOk = dnsStatus.DNSOk
	resp.Checks.CNAMEOk = dnsStatus.CNAMEOk
	if err != nil {
		return o.preflightFailed(resp, errcode.AsError(err, errcode.DNSNotFound))
	}

	if err := o.probes.CheckTLS(ctx, origin.Hostname); err != nil {
		return o.preflightFailed(resp, errcode.AsError(err, errcode.TLSInvalid))
	}
	resp.Checks.TLSOk = true
	resp.Checks.ConnectOk = true

	placement := req.PlacementID
	if placement == "" {
		placement = o.defaultPlacement
	}
	blob, blobErr := o.codec.Encode(headers)
	if blobErr != nil {
		zap.S().Warnw("probe header blob encode failed", "err", blobErr)
	}

	// First write: a pending snapshot must exist before the bid probe so
	// a probe failure still leaves a record behind.
	now := time.Now().UTC()
	rec := &binding.Record{
		KeyHash:          binding.HashKey(auth),
		TenantID:         resp.TenantID,
		RuntimeBaseURL:   origin.RuntimeBaseURL,
		PlacementID:      placement,
		BindStatus:       binding.StatusPending,
		LastProbeAt:      &now,
		ProbeHeadersBlob: blob,
	}
	rec = o.store.Save(ctx, auth, rec)
	resp.BindStatus = binding.StatusPending

	outcome, perr := o.probes.BidProbe(ctx, probe.BidRequest{
		RuntimeBaseURL: origin.RuntimeBaseURL,
		Authorization:  auth,
		Headers:        headers,
		PlacementID:    placement,
	})
	if perr != nil {
		o.recordProbeFailure(ctx, auth, rec, perr)
		resp.Status = string(binding.StatusPending)
		resp.BindStage = StageProbeFailed
		resp.Checks.AuthOk = perr.Code != errcode.Auth401403
		resp.FailureCode = perr.Code
		resp.LegacyCode = errcode.Legacy(perr.Code)
		resp.ProbeResult = serverResult(perr)
		resp.NextActions = NextActions(perr.Code)
		metrics.VerifyTotal.WithLabelValues("pending").Inc()
		metrics.ProbeTotal.WithLabelValues(string(perr.Code)).Inc()
		return resp
	}

	verifiedAt := time.Now().UTC()
	rec.BindStatus = binding.StatusVerified
	rec.VerifiedAt = &verifiedAt
	rec.LastProbeAt = &verifiedAt
	rec.LastProbeCode = string(errcode.Verified)
	rec.LastProbeHTTPStatus = outcome.HTTPStatus
	rec.ProbeDiagnostics = []probe.Result{{
		Source:     "server",
		OK:         true,
		HTTPStatus: outcome.HTTPStatus,
		LandingURL: outcome.LandingURL,
	}}
	o.store.Save(ctx, auth, rec)

	resp.Status = string(binding.StatusVerified)
	resp.BindStage = StageBound
	resp.BindStatus = binding.StatusVerified
	resp.Checks.AuthOk = true
	resp.Checks.BidOk = true
	resp.Checks.LandingURLOk = true
	resp.LandingURLSample = outcome.LandingURL
	metrics.VerifyTotal.WithLabelValues("verified").Inc()
	metrics.ProbeTotal.WithLabelValues(string(errcode.Verified)).Inc()

	zap.S().Infow("runtime domain bound",
		"tenant", resp.TenantID, "runtime", origin.RuntimeBaseURL)
	return resp
}

// reject finalizes an input-stage failure.  Nothing was persisted.
func (o *Orchestrator) reject(resp *Response, ferr *errcode.Error) *Response {
	resp.BindStage = StageRejected
	resp.FailureCode = ferr.Code
	resp.LegacyCode = errcode.Legacy(ferr.Code)
	resp.NextActions = NextActions(ferr.Code)
	metrics.VerifyTotal.WithLabelValues("failed").Inc()
	return resp
}

// preflightFailed finalizes a DNS or TLS failure.  Nothing was persisted.
func (o *Orchestrator) preflightFailed(resp *Response, ferr *errcode.Error) *Response {
	resp.BindStage = StagePreflight
	resp.FailureCode = ferr.Code
	resp.LegacyCode = errcode.Legacy(ferr.Code)
	resp.NextActions = NextActions(ferr.Code)
	metrics.VerifyTotal.WithLabelValues("failed").Inc()
	return resp
}

// recordProbeFailure keeps the binding pending and attaches diagnostics.
func (o *Orchestrator) recordProbeFailure(ctx context.Context, auth string, rec *binding.Record, perr *errcode.Error) {
	now := time.Now().UTC()
	rec.BindStatus = binding.StatusPending
	rec.LastProbeAt = &now
	rec.LastProbeCode = string(perr.Code)
	rec.LastProbeHTTPStatus = perr.HTTPStatus
	rec.ProbeDiagnostics = []probe.Result{*serverResult(perr)}
	o.store.Save(ctx, auth, rec)
}

// serverResult converts a probe failure into its diagnostic form.
func serverResult(perr *errcode.Error) *probe.Result {
	return &probe.Result{
		Source:     "server",
		OK:         false,
		Code:       perr.Code,
		HTTPStatus: perr.HTTPStatus,
		Detail:     perr.Detail,
	}
}

func newRequestID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "req_" + hex.EncodeToString(b[:])
}
