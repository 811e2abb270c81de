// internal/httpapi/bid.go
//
// Live bid endpoints.
//
// Context
// -------
// /v2/bid is the honest variant: missing auth is 401, no route is 503,
// upstream trouble maps to 502.  /ad/bid exists for callers embedded in
// a primary application flow where an ad failure must never surface as
// an error; every failure degrades to HTTP 200 with a no-fill body that
// still carries a machine-readable reasonCode.
//
// Both stamp the X-Tappy-Runtime-Source response header so operators can
// tell which backend actually served a request.

package httpapi

import (
	"io"
	"net/http"

	"github.com/tappyhq/mediation-edge/internal/bidproxy"
	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/requestinfo"
	"github.com/tappyhq/mediation-edge/internal/route"
	"github.com/tappyhq/mediation-edge/internal/verify"
)

const (
	sourceHeader    = bidproxy.SourceHeader
	maxBidBodyBytes = 1 << 20
)

func (h Handlers) bid(w http.ResponseWriter, r *http.Request) {
	auth, ok := binding.NormalizeAuthorization(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, errcode.Auth401403, "missing Authorization header")
		return
	}

	decision, perr := h.resolveRoute(r, auth)
	if perr != nil {
		writeError(w, http.StatusServiceUnavailable, perr.Code, perr.Detail)
		return
	}
	w.Header().Set(sourceHeader, string(decision.Source))

	res, perr := h.forward(r, auth, decision)
	if perr != nil {
		writeError(w, upstreamErrorStatus(perr.Code), perr.Code, perr.Detail)
		return
	}
	h.writeBidResult(w, res)
}

func (h Handlers) adBid(w http.ResponseWriter, r *http.Request) {
	auth, ok := binding.NormalizeAuthorization(r.Header.Get("Authorization"))
	if !ok {
		writeNoFill(w, errcode.Auth401403)
		return
	}

	decision, perr := h.resolveRoute(r, auth)
	if perr != nil {
		writeNoFill(w, perr.Code)
		return
	}
	w.Header().Set(sourceHeader, string(decision.Source))

	res, perr := h.forward(r, auth, decision)
	if perr != nil {
		writeNoFill(w, perr.Code)
		return
	}

	if res.Raw != nil {
		// Raw bodies are either upstream errors or non-JSON replies.
		// Neither fits the fill/no-fill contract, so they degrade here;
		// only /v2/bid passes them through.
		writeNoFill(w, rawFailureCode(res.HTTPStatus))
		return
	}
	payload := res.Payload
	if _, present := payload["filled"]; !present {
		payload["filled"] = res.Filled
	}
	writeJSON(w, http.StatusOK, payload)
}

// resolveRoute reads the binding snapshot (tolerating remote degradation)
// and runs the routing precedence.
func (h Handlers) resolveRoute(r *http.Request, auth string) (route.Decision, *errcode.Error) {
	rec, err := h.Store.Get(r.Context(), auth)
	if err != nil {
		h.Log.Warnw("bid binding lookup failed", "err", err)
	}
	return route.Resolve(h.Route, rec)
}

// forward reads the caller's body and hands it to the proxy, stamping
// client-enrichment headers first.
func (h Handlers) forward(r *http.Request, auth string, decision route.Decision) (*bidproxy.Result, *errcode.Error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBidBodyBytes))
	if err != nil {
		return nil, errcode.Wrap(errcode.EgressBlocked, "read request body", err)
	}

	header := r.Header.Clone()
	requestinfo.FromContext(r.Context()).Apply(header)

	return h.Proxy.Forward(r.Context(), bidproxy.Request{
		Target:        decision,
		Authorization: auth,
		Body:          body,
		Header:        header,
	})
}

func (h Handlers) writeBidResult(w http.ResponseWriter, res *bidproxy.Result) {
	if res.Raw != nil {
		if res.ContentType != "" {
			w.Header().Set("Content-Type", res.ContentType)
		}
		w.WriteHeader(res.HTTPStatus)
		w.Write(res.Raw)
		return
	}
	writeJSON(w, http.StatusOK, res.Payload)
}

// writeNoFill degrades any failure to the best-effort no-fill shape.
func writeNoFill(w http.ResponseWriter, code errcode.Code) {
	body := map[string]any{
		"filled":     false,
		"reasonCode": code,
	}
	if legacy := errcode.Legacy(code); legacy != "" {
		body["legacyCode"] = legacy
	}
	if hints := verify.NextActions(code); len(hints) > 0 {
		body["nextAction"] = hints[0]
	}
	writeJSON(w, http.StatusOK, body)
}

// rawFailureCode classifies an upstream reply that could not be
// normalized into a bid payload, for the no-fill reasonCode.
func rawFailureCode(status int) errcode.Code {
	switch {
	case status >= 500:
		return errcode.Upstream5xx
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errcode.Auth401403
	case status == http.StatusNotFound:
		return errcode.Endpoint404
	case status == http.StatusMethodNotAllowed:
		return errcode.Method405
	case status >= 200 && status <= 299:
		// Success status but not a JSON bid body.
		return errcode.BidInvalidJSON
	default:
		return errcode.EgressBlocked
	}
}

// upstreamErrorStatus picks the status for a failed /v2/bid forward.
// Managed backends being down is a service problem, customer runtimes
// being unreachable or nonsensical is a gateway problem.
func upstreamErrorStatus(code errcode.Code) int {
	if code == errcode.ManagedUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
