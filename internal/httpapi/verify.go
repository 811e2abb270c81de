// internal/httpapi/verify.go
//
// Domain verification endpoints.  Both always answer HTTP 200 on handled
// outcomes; the state machine's verdict lives in the body.

package httpapi

import (
	"net/http"

	"github.com/tappyhq/mediation-edge/internal/probe"
	"github.com/tappyhq/mediation-edge/internal/verify"
)

const maxVerifyBodyBytes = 64 << 10

type verifyBody struct {
	Domain       string            `json:"domain"`
	PlacementID  string            `json:"placementId"`
	ProbeHeaders map[string]string `json:"probeHeaders"`
}

func (h Handlers) verifyAndBind(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if err := decodeJSON(r, &body, maxVerifyBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "request body is not valid JSON")
		return
	}

	resp := h.Orch.VerifyAndBind(r.Context(), verify.Request{
		Authorization: r.Header.Get("Authorization"),
		Domain:        body.Domain,
		PlacementID:   body.PlacementID,
		ProbeHeaders:  body.ProbeHeaders,
	})
	writeJSON(w, http.StatusOK, resp)
}

type reprobeBody struct {
	Domain          string            `json:"domain"`
	PlacementID     string            `json:"placementId"`
	ProbeHeaders    map[string]string `json:"probeHeaders"`
	RunBrowserProbe bool              `json:"runBrowserProbe"`
	BrowserProbe    *probe.Result     `json:"browserProbe"`
}

func (h Handlers) reprobe(w http.ResponseWriter, r *http.Request) {
	var body reprobeBody
	if err := decodeJSON(r, &body, maxVerifyBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "request body is not valid JSON")
		return
	}

	resp := h.Orch.Reprobe(r.Context(), verify.ProbeRequest{
		Authorization:   r.Header.Get("Authorization"),
		Domain:          body.Domain,
		PlacementID:     body.PlacementID,
		ProbeHeaders:    body.ProbeHeaders,
		RunBrowserProbe: body.RunBrowserProbe,
		BrowserProbe:    body.BrowserProbe,
	})
	writeJSON(w, http.StatusOK, resp)
}
