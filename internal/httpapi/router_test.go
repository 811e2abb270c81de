// internal/httpapi/router_test.go
//
// End-to-end handler tests over httptest.  Network edges (DNS, TLS, the
// upstream bid endpoint) are faked; everything else is the real wiring.

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tappyhq/mediation-edge/internal/bidproxy"
	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/probe"
	"github.com/tappyhq/mediation-edge/internal/route"
	"github.com/tappyhq/mediation-edge/internal/verify"
)

type fakeResolver struct{}

func (fakeResolver) LookupIP(_ context.Context, network, _ string) ([]net.IP, error) {
	if network == "ip6" {
		return nil, errors.New("no records")
	}
	return []net.IP{net.ParseIP("203.0.113.4")}, nil
}

func (fakeResolver) LookupCNAME(context.Context, string) (string, error) {
	return "gw.tappy.net.", nil
}

type fakeDialer struct{}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (fakeDialer) DialTLS(context.Context, string) (io.Closer, error) {
	return nopCloser{}, nil
}

type fakeDoer struct {
	status      int
	body        string
	contentType string
	err         error
	got         *http.Request
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	ct := f.contentType
	if ct == "" {
		ct = "application/json"
	}
	h := http.Header{}
	h.Set("Content-Type", ct)
	return &http.Response{
		StatusCode: f.status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

const testAuth = "Bearer sk_live_router_1"

func newHandlers(doer *fakeDoer, routeCfg route.Config) (Handlers, *binding.Store) {
	runner := probe.NewRunner(
		probe.Config{GatewayHost: "gw.tappy.net"},
		probe.WithResolver(fakeResolver{}),
		probe.WithTLSDialer(fakeDialer{}),
		probe.WithHTTPClient(doer))
	store := binding.NewStore(nil, time.Minute)
	return Handlers{
		Orch:  verify.New(runner, store, binding.NewHeaderCodec(""), ""),
		Store: store,
		Route: routeCfg,
		Proxy: bidproxy.New(doer, nil),
	}, store
}

func do(t *testing.T, h http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestVerifyAndBindEndpoint(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"landingUrl":"https://ads.example/x"}`}
	h, _ := newHandlers(doer, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/runtime-domain/verify-and-bind", testAuth,
		`{"domain":"runtime.customer.org"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "verified" {
		t.Fatalf("body = %v", body)
	}
	if body["landingUrlSample"] != "https://ads.example/x" {
		t.Fatalf("landingUrlSample = %v", body["landingUrlSample"])
	}
}

func TestVerifyAndBindEndpoint_FailureStillHTTP200(t *testing.T) {
	doer := &fakeDoer{err: errors.New("connection reset")}
	h, _ := newHandlers(doer, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/runtime-domain/verify-and-bind", testAuth,
		`{"domain":"runtime.customer.org"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("handled failures must answer 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["failureCode"] != "EGRESS_BLOCKED" || body["legacyCode"] != "NETWORK_BLOCKED" {
		t.Fatalf("body = %v", body)
	}
}

func TestProbeEndpoint_NoBinding(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{status: 200, body: `{}`}, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/runtime-domain/probe", testAuth, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["failureCode"] != "RUNTIME_DOMAIN_NOT_BOUND" {
		t.Fatalf("body = %v", body)
	}
}

func TestBootstrap_ManagedDefault(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{}, route.Config{ManagedBaseURL: "https://managed.tappy.net"})
	router := NewRouter(h)

	rec := do(t, router, "GET", "/api/sdk/bootstrap", testAuth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["runtimeSource"] != "managed_default" || body["bindStatus"] != "unbound" {
		t.Fatalf("body = %v", body)
	}
	if body["keyScope"] != "live" {
		t.Fatalf("keyScope = %v", body["keyScope"])
	}
	if body["placementDefaults"].(map[string]any)["placementId"] != verify.DefaultPlacementID {
		t.Fatalf("placementDefaults = %v", body["placementDefaults"])
	}
}

func TestBootstrap_NoRouteIs503(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{}, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "GET", "/api/sdk/bootstrap", testAuth, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["error"] != "MANAGED_RUNTIME_NOT_CONFIGURED" {
		t.Fatalf("body = %v", body)
	}
}

func TestBootstrap_BoundButUnroutableIs503(t *testing.T) {
	h, store := newHandlers(&fakeDoer{}, route.Config{})
	router := NewRouter(h)

	store.Save(context.Background(), testAuth, &binding.Record{
		KeyHash:        binding.HashKey(testAuth),
		TenantID:       binding.TenantID(testAuth),
		RuntimeBaseURL: "https://runtime.customer.org",
		BindStatus:     binding.StatusPending,
	})

	rec := do(t, router, "GET", "/api/sdk/bootstrap", testAuth, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["error"] != "RUNTIME_ROUTE_UNAVAILABLE" {
		t.Fatalf("body = %v", body)
	}
}

func TestBidEndpoint_MissingAuthIs401(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{}, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/v2/bid", "", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBidEndpoint_UnboundKeyUsesManagedDefault(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"url":"https://ads.example/x"}`}
	h, _ := newHandlers(doer, route.Config{ManagedBaseURL: "https://managed.tappy.net"})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/v2/bid", testAuth, `{"placementId":"p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(sourceHeader); got != "managed_default" {
		t.Fatalf("%s = %q", sourceHeader, got)
	}
	if !strings.HasPrefix(doer.got.URL.String(), "https://managed.tappy.net/") {
		t.Fatalf("forwarded to %s", doer.got.URL)
	}
	if body := decode(t, rec); body["landingUrl"] != "https://ads.example/x" {
		t.Fatalf("body = %v", body)
	}
}

func TestBidEndpoint_VerifiedKeyRoutesToCustomer(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"landingUrl":"https://ads.example/x"}`}
	h, store := newHandlers(doer, route.Config{})
	router := NewRouter(h)

	now := time.Now().UTC()
	store.Save(context.Background(), testAuth, &binding.Record{
		KeyHash:        binding.HashKey(testAuth),
		TenantID:       binding.TenantID(testAuth),
		RuntimeBaseURL: "https://runtime.customer.org",
		BindStatus:     binding.StatusVerified,
		VerifiedAt:     &now,
	})

	rec := do(t, router, "POST", "/api/v2/bid", testAuth, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(sourceHeader); got != "customer" {
		t.Fatalf("%s = %q", sourceHeader, got)
	}
	if doer.got.URL.Host != "runtime.customer.org" {
		t.Fatalf("forwarded to %s", doer.got.URL)
	}
}

func TestBidEndpoint_NoRouteIs503(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{}, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/v2/bid", testAuth, `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAdBidNeverFails(t *testing.T) {
	cases := []struct {
		name string
		auth string
		doer *fakeDoer
		cfg  route.Config
		code string
	}{
		{"missing auth", "", &fakeDoer{}, route.Config{}, "AUTH_401_403"},
		{"no route", testAuth, &fakeDoer{}, route.Config{}, "MANAGED_RUNTIME_NOT_CONFIGURED"},
		{"upstream down", testAuth, &fakeDoer{err: errors.New("dial timeout")},
			route.Config{ManagedBaseURL: "https://managed.tappy.net"}, "MANAGED_RUNTIME_UNAVAILABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newHandlers(tc.doer, tc.cfg)
			router := NewRouter(h)

			rec := do(t, router, "POST", "/api/ad/bid", tc.auth, `{}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("/ad/bid must answer 200, got %d", rec.Code)
			}
			body := decode(t, rec)
			if body["filled"] != false || body["reasonCode"] != tc.code {
				t.Fatalf("body = %v", body)
			}
			if body["nextAction"] == "" {
				t.Fatal("no-fill must carry a nextAction hint")
			}
		})
	}
}

func TestAdBid_UpstreamErrorDegradesToNoFill(t *testing.T) {
	doer := &fakeDoer{status: 500, body: `{"error":{"code":"RUNTIME_CRASH"}}`}
	h, _ := newHandlers(doer, route.Config{ManagedBaseURL: "https://managed.tappy.net"})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/ad/bid", testAuth, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("/ad/bid must answer 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["filled"] != false || body["reasonCode"] != "UPSTREAM_5XX" {
		t.Fatalf("upstream 500 must degrade to no-fill, got %v", body)
	}
	if body["legacyCode"] != "NETWORK_BLOCKED" {
		t.Fatalf("legacyCode = %v", body["legacyCode"])
	}
	if _, leaked := body["error"]; leaked {
		t.Fatal("upstream error body must not leak through /ad/bid")
	}
}

func TestAdBid_NonJSONDegradesToNoFill(t *testing.T) {
	doer := &fakeDoer{status: 200, body: "<svg/>", contentType: "image/svg+xml"}
	h, _ := newHandlers(doer, route.Config{ManagedBaseURL: "https://managed.tappy.net"})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/ad/bid", testAuth, `{}`)
	body := decode(t, rec)
	if body["filled"] != false || body["reasonCode"] != "BID_INVALID_RESPONSE_JSON" {
		t.Fatalf("non-JSON body must degrade to no-fill, got %v", body)
	}
}

func TestAdBid_SuccessMarksFilled(t *testing.T) {
	doer := &fakeDoer{status: 200, body: `{"landingUrl":"https://ads.example/x"}`}
	h, _ := newHandlers(doer, route.Config{ManagedBaseURL: "https://managed.tappy.net"})
	router := NewRouter(h)

	rec := do(t, router, "POST", "/api/ad/bid", testAuth, `{}`)
	body := decode(t, rec)
	if body["filled"] != true || body["landingUrl"] != "https://ads.example/x" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{}, route.Config{})
	router := NewRouter(h)

	rec := do(t, router, "GET", "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newHandlers(&fakeDoer{}, route.Config{})
	router := NewRouter(h)

	req := httptest.NewRequest("OPTIONS", "/api/v2/bid", nil)
	req.Header.Set("Origin", "https://app.customer.org")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.customer.org" {
		t.Fatalf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
