// internal/probe/bid.go
//
// Synthetic bid probe.
//
// Context
// -------
// The final verification stage POSTs a fixed probe transcript to the
// customer runtime's /api/v2/bid and classifies the outcome:
//
//	404              → ENDPOINT_404
//	405              → METHOD_405
//	401, 403         → AUTH_401_403
//	≥500             → UPSTREAM_5XX
//	other non-2xx    → EGRESS_BLOCKED
//	transport error  → EGRESS_BLOCKED
//
// A 2xx body must parse as a JSON object (BID_INVALID_RESPONSE_JSON) and
// must yield a landing URL after normalization (LANDING_URL_MISSING).

package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tappyhq/mediation-edge/internal/bidpayload"
	"github.com/tappyhq/mediation-edge/internal/errcode"
)

// BidPath is the bid endpoint every runtime must expose.
const BidPath = "/api/v2/bid"

// Synthetic probe identity.  Runtimes may recognize these ids and exclude
// probe traffic from reporting.
const (
	probeUserID = "probe_user_01"
	probeChatID = "probe_chat_01"
)

// maxProbeBodyBytes bounds how much of a probe response we will read.
const maxProbeBodyBytes = 1 << 20

// BidRequest describes one synthetic probe call.  Headers must already be
// sanitized; Authorization is the caller's validated bearer header.
type BidRequest struct {
	RuntimeBaseURL string
	Authorization  string
	Headers        map[string]string
	PlacementID    string
}

// BidOutcome is a successful probe: a parsed payload with a landing URL.
type BidOutcome struct {
	HTTPStatus int
	LandingURL string
	Payload    map[string]any
}

// BidProbe issues the synthetic bid POST and classifies the result.
func (r *Runner) BidProbe(ctx context.Context, req BidRequest) (*BidOutcome, *errcode.Error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.BidTimeout)
	defer cancel()

	placement := req.PlacementID
	if placement == "" {
		placement = r.cfg.DefaultPlacementID
	}
	body, _ := json.Marshal(syntheticBidBody(placement))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		req.RuntimeBaseURL+BidPath, bytes.NewReader(body))
	if err != nil {
		return nil, errcode.Wrap(errcode.EgressBlocked, "building probe request failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, errcode.Wrap(errcode.EgressBlocked,
			"probe request to "+req.RuntimeBaseURL+BidPath+" failed", err)
	}
	defer resp.Body.Close()

	if code := classifyStatus(resp.StatusCode); code != "" {
		return nil, errcode.New(code,
			fmt.Sprintf("runtime answered %d for %s", resp.StatusCode, BidPath)).
			WithStatus(resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBodyBytes))
	if err != nil {
		return nil, errcode.Wrap(errcode.EgressBlocked, "reading probe response failed", err).
			WithStatus(resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return nil, errcode.New(errcode.BidInvalidJSON,
			"probe response is not a JSON object").WithStatus(resp.StatusCode)
	}

	norm := bidpayload.Normalize(payload)
	if norm.LandingURL == "" {
		return nil, errcode.New(errcode.LandingURLMissing,
			"probe bid contains no usable landing URL").WithStatus(resp.StatusCode)
	}

	return &BidOutcome{
		HTTPStatus: resp.StatusCode,
		LandingURL: norm.LandingURL,
		Payload:    norm.Payload,
	}, nil
}

// classifyStatus maps a non-2xx status to its failure code, "" for 2xx.
func classifyStatus(status int) errcode.Code {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusNotFound:
		return errcode.Endpoint404
	case status == http.StatusMethodNotAllowed:
		return errcode.Method405
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errcode.Auth401403
	case status >= 500:
		return errcode.Upstream5xx
	default:
		return errcode.EgressBlocked
	}
}

// syntheticBidBody is the fixed two-message probe transcript.
func syntheticBidBody(placementID string) map[string]any {
	return map[string]any{
		"placementId": placementID,
		"userId":      probeUserID,
		"chatId":      probeChatID,
		"messages": []map[string]string{
			{"role": "user", "content": "What are some good options for trail running shoes?"},
			{"role": "assistant", "content": "A few well reviewed models are worth comparing before you buy."},
		},
	}
}
