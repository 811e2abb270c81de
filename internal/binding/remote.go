// internal/binding/remote.go
//
// Control-plane binding persistence over REST.
//
// Context
// -------
// Managed deployments store bindings in the upstream control plane:
//
//	GET  {base}/v1/public/runtime-domain/binding?keyHash=…
//	PUT  {base}/v1/public/runtime-domain/binding
//
// Calls authenticate with a service token and are bounded by the store
// I/O budget.  A 404 on read means "no binding", not an error.  Callers
// (the Store) treat every other failure as a soft degrade.

package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const bindingPath = "/v1/public/runtime-domain/binding"

// ControlPlane implements Persistence against the upstream REST API.
type ControlPlane struct {
	baseURL string
	token   string
	client  Doer
}

// Doer issues one HTTP request; *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewControlPlane builds the REST persistence client.  baseURL is the
// control-plane API origin; token authenticates the edge as a service.
func NewControlPlane(baseURL, token string, client Doer) *ControlPlane {
	if client == nil {
		client = &http.Client{Timeout: RemoteTimeout}
	}
	return &ControlPlane{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Fetch implements Persistence.
func (cp *ControlPlane) Fetch(ctx context.Context, keyHash string) (*Record, error) {
	endpoint := cp.baseURL + bindingPath + "?keyHash=" + url.QueryEscape(keyHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	cp.authorize(req)

	resp, err := cp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binding fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("binding fetch: control plane answered %d", resp.StatusCode)
	}
	return decodeRecord(resp.Body)
}

// Save implements Persistence.  The control plane echoes the stored
// snapshot; when the echo is unusable the local snapshot is returned so
// the caller still has a consistent record.
func (cp *ControlPlane) Save(ctx context.Context, rec *Record) (*Record, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		cp.baseURL+bindingPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	cp.authorize(req)

	resp, err := cp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binding save: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("binding save: control plane answered %d", resp.StatusCode)
	}
	if echoed, err := decodeRecord(resp.Body); err == nil && echoed.KeyHash != "" {
		return echoed, nil
	}
	return rec, nil
}

func (cp *ControlPlane) authorize(req *http.Request) {
	if cp.token != "" {
		req.Header.Set("Authorization", "Bearer "+cp.token)
	}
}

func decodeRecord(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RemoteTimeout bounds one persistence round trip.
const RemoteTimeout = 2500 * time.Millisecond
