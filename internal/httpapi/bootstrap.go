// internal/httpapi/bootstrap.go
//
// SDK bootstrap endpoint.
//
// Context
// -------
// SDK clients call this once at startup to learn which runtime will serve
// their bids.  The response mirrors the routing resolver's decision; when
// no route exists the handler answers 503 with a structured error so the
// SDK can fall back to its embedded defaults.

package httpapi

import (
	"net/http"
	"strings"

	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/route"
	"github.com/tappyhq/mediation-edge/internal/verify"
)

type bootstrapBody struct {
	RuntimeBaseURL         string                   `json:"runtimeBaseUrl"`
	RuntimeSource          route.Source             `json:"runtimeSource"`
	CustomerRuntimeBaseURL string                   `json:"customerRuntimeBaseUrl,omitempty"`
	TenantID               string                   `json:"tenantId"`
	KeyScope               string                   `json:"keyScope"`
	BindStatus             binding.Status           `json:"bindStatus"`
	PlacementDefaults      verify.PlacementDefaults `json:"placementDefaults"`
	LastProbeCode          string                   `json:"lastProbeCode,omitempty"`
}

func (h Handlers) bootstrap(w http.ResponseWriter, r *http.Request) {
	auth, ok := binding.NormalizeAuthorization(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, errcode.Auth401403, "missing Authorization header")
		return
	}

	rec, err := h.Store.Get(r.Context(), auth)
	if err != nil {
		h.Log.Warnw("bootstrap binding lookup failed", "err", err)
	}

	decision, perr := route.Resolve(h.Route, rec)
	if perr != nil {
		code := perr.Code
		if rec != nil {
			// A binding exists but nothing can serve it right now, which
			// is a routing outage for this tenant rather than missing
			// operator configuration.
			code = errcode.RouteUnavailable
		}
		writeError(w, http.StatusServiceUnavailable, code, perr.Detail)
		return
	}

	body := bootstrapBody{
		RuntimeBaseURL:    decision.RuntimeBaseURL,
		RuntimeSource:     decision.Source,
		TenantID:          binding.TenantID(auth),
		KeyScope:          keyScope(auth),
		BindStatus:        decision.BindStatus,
		PlacementDefaults: verify.PlacementDefaults{PlacementID: h.DefaultPlacement},
	}
	if rec != nil {
		body.CustomerRuntimeBaseURL = rec.RuntimeBaseURL
		body.LastProbeCode = rec.LastProbeCode
		if rec.PlacementID != "" {
			body.PlacementDefaults.PlacementID = rec.PlacementID
		}
	}

	w.Header().Set(sourceHeader, string(decision.Source))
	writeJSON(w, http.StatusOK, body)
}

// keyScope classifies an API key by its conventional prefix so dashboards
// can label test traffic.  Unknown shapes report "live".
func keyScope(auth string) string {
	token := binding.BearerToken(auth)
	if strings.HasPrefix(token, "sk_test_") || strings.HasPrefix(token, "pk_test_") {
		return "test"
	}
	return "live"
}
