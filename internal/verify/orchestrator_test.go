// internal/verify/orchestrator_test.go
//
// State-machine tests for verify-and-bind and re-probe.
//
// The probe Runner is built on fake network edges, and the binding store
// runs without persistence, so every path executes entirely in memory.

package verify

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/probe"
)

type fakeResolver struct {
	ips   []net.IP
	cname string
	err   error
}

func (f *fakeResolver) LookupIP(_ context.Context, network, _ string) ([]net.IP, error) {
	if f.err != nil || network == "ip6" {
		return nil, errors.New("no records")
	}
	return f.ips, nil
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	if f.cname == "" {
		return host + ".", nil
	}
	return f.cname, nil
}

type fakeDialer struct{ err error }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (f *fakeDialer) DialTLS(context.Context, string) (io.Closer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nopCloser{}, nil
}

type fakeDoer struct {
	status int
	body   string
	err    error
}

func (f *fakeDoer) Do(*http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

const testAuth = "Bearer sk_live_test_1"

type fixture struct {
	orch  *Orchestrator
	store *binding.Store
}

func newFixture(res probe.Resolver, dial probe.TLSDialer, doer probe.Doer) fixture {
	runner := probe.NewRunner(
		probe.Config{GatewayHost: "gw.tappy.net"},
		probe.WithResolver(res), probe.WithTLSDialer(dial), probe.WithHTTPClient(doer))
	store := binding.NewStore(nil, time.Minute)
	return fixture{
		orch:  New(runner, store, binding.NewHeaderCodec(""), ""),
		store: store,
	}
}

func happyEdges() (*fakeResolver, *fakeDialer, *fakeDoer) {
	return &fakeResolver{
			ips:   []net.IP{net.ParseIP("203.0.113.4")},
			cname: "gw.tappy.net.",
		},
		&fakeDialer{},
		&fakeDoer{status: 200, body: `{"landingUrl":"https://ads.example/x"}`}
}

func TestVerifyAndBind_FullSuccess(t *testing.T) {
	fx := newFixture(happyEdges())

	resp := fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth,
		Domain:        "runtime.customer.org",
	})

	if resp.Status != "verified" || resp.BindStage != StageBound {
		t.Fatalf("status/stage = %s/%s", resp.Status, resp.BindStage)
	}
	want := probe.Checks{DNSOk: true, CNAMEOk: true, TLSOk: true,
		ConnectOk: true, AuthOk: true, BidOk: true, LandingURLOk: true}
	if resp.Checks != want {
		t.Fatalf("checks = %+v", resp.Checks)
	}
	if resp.LandingURLSample != "https://ads.example/x" {
		t.Fatalf("landingUrlSample = %q", resp.LandingURLSample)
	}
	if len(resp.NextActions) != 0 {
		t.Fatalf("nextActions should be empty on success: %v", resp.NextActions)
	}
	if resp.RequestID == "" || resp.TenantID == "" {
		t.Fatal("requestId and tenantId must be set")
	}

	rec, _ := fx.store.Get(context.Background(), testAuth)
	if rec == nil || rec.BindStatus != binding.StatusVerified {
		t.Fatalf("persisted binding = %+v", rec)
	}
	if rec.VerifiedAt == nil || rec.VerifiedAt.IsZero() {
		t.Fatal("verifiedAt must be set on a verified binding")
	}
	if rec.LastProbeCode != string(errcode.Verified) {
		t.Fatalf("lastProbeCode = %q", rec.LastProbeCode)
	}
}

func TestVerifyAndBind_DNSFailurePersistsNothing(t *testing.T) {
	res, dial, doer := happyEdges()
	res.err = errors.New("NXDOMAIN")
	res.ips = nil
	res.cname = ""
	fx := newFixture(res, dial, doer)

	resp := fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth,
		Domain:        "missing.customer.org",
	})

	if resp.Status != "failed" || resp.BindStage != StagePreflight {
		t.Fatalf("status/stage = %s/%s", resp.Status, resp.BindStage)
	}
	if resp.FailureCode != errcode.DNSNotFound {
		t.Fatalf("failureCode = %s", resp.FailureCode)
	}
	if len(resp.NextActions) == 0 {
		t.Fatal("failures must carry nextActions")
	}

	if rec, _ := fx.store.Get(context.Background(), testAuth); rec != nil {
		t.Fatalf("pre-flight failure must not persist a binding, got %+v", rec)
	}
}

func TestVerifyAndBind_ProbeFailureLeavesPending(t *testing.T) {
	res, dial, _ := happyEdges()
	fx := newFixture(res, dial, &fakeDoer{err: errors.New("connection reset")})

	resp := fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth,
		Domain:        "runtime.customer.org",
	})

	if resp.Status != "pending" || resp.BindStage != StageProbeFailed {
		t.Fatalf("status/stage = %s/%s", resp.Status, resp.BindStage)
	}
	if resp.FailureCode != errcode.EgressBlocked {
		t.Fatalf("failureCode = %s", resp.FailureCode)
	}
	if resp.LegacyCode != errcode.LegacyNetworkBlocked {
		t.Fatalf("legacyCode = %s", resp.LegacyCode)
	}
	if resp.ProbeResult == nil || resp.ProbeResult.Source != "server" {
		t.Fatalf("probeResult = %+v", resp.ProbeResult)
	}

	rec, _ := fx.store.Get(context.Background(), testAuth)
	if rec == nil || rec.BindStatus != binding.StatusPending {
		t.Fatalf("binding = %+v, want pending", rec)
	}
	if rec.LastProbeCode != string(errcode.EgressBlocked) {
		t.Fatalf("lastProbeCode = %q", rec.LastProbeCode)
	}
	if rec.VerifiedAt != nil {
		t.Fatal("pending binding must not carry verifiedAt")
	}
}

func TestVerifyAndBind_MissingAuth(t *testing.T) {
	fx := newFixture(happyEdges())

	resp := fx.orch.VerifyAndBind(context.Background(), Request{
		Domain: "runtime.customer.org",
	})
	if resp.BindStage != StageRejected || resp.FailureCode != errcode.Auth401403 {
		t.Fatalf("stage/code = %s/%s", resp.BindStage, resp.FailureCode)
	}
	if resp.LegacyCode != errcode.LegacyAuthForbidden {
		t.Fatalf("legacyCode = %s", resp.LegacyCode)
	}
}

func TestVerifyAndBind_BadHeadersRejectedBeforeNetwork(t *testing.T) {
	// A panicking doer proves no network stage ran.
	res, dial, _ := happyEdges()
	fx := newFixture(res, dial, panicDoer{})

	resp := fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth,
		Domain:        "runtime.customer.org",
		ProbeHeaders:  map[string]string{"host": "evil.example"},
	})
	if resp.BindStage != StageRejected || resp.FailureCode != errcode.ProbeHeadersInvalid {
		t.Fatalf("stage/code = %s/%s", resp.BindStage, resp.FailureCode)
	}
}

type panicDoer struct{}

func (panicDoer) Do(*http.Request) (*http.Response, error) {
	panic("network touched after header rejection")
}

func TestVerifyAndBind_BadDomainRejected(t *testing.T) {
	fx := newFixture(happyEdges())

	resp := fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth,
		Domain:        "192.168.0.10",
	})
	if resp.BindStage != StageRejected || resp.FailureCode != errcode.CNAMEMismatch {
		t.Fatalf("stage/code = %s/%s", resp.BindStage, resp.FailureCode)
	}
}

func TestReprobe_ServerSuccessVerifies(t *testing.T) {
	res, dial, doer := happyEdges()
	fx := newFixture(res, dial, &fakeDoer{err: errors.New("down")})

	// Bind first with a failing probe so the binding sits at pending.
	fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth, Domain: "runtime.customer.org",
	})

	// Swap in a healthy doer for the re-probe.
	fx.orch.probes = probe.NewRunner(probe.Config{},
		probe.WithResolver(res), probe.WithTLSDialer(dial), probe.WithHTTPClient(doer))

	resp := fx.orch.Reprobe(context.Background(), ProbeRequest{Authorization: testAuth})
	if resp.FinalStatus != "verified" {
		t.Fatalf("finalStatus = %s", resp.FinalStatus)
	}

	rec, _ := fx.store.Get(context.Background(), testAuth)
	if rec.BindStatus != binding.StatusVerified || rec.VerifiedAt == nil {
		t.Fatalf("binding = %+v", rec)
	}
}

func TestReprobe_BrowserSuccessSoftensFailure(t *testing.T) {
	res, dial, _ := happyEdges()
	fx := newFixture(res, dial, &fakeDoer{status: 403, body: `{}`})

	fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth, Domain: "runtime.customer.org",
	})

	resp := fx.orch.Reprobe(context.Background(), ProbeRequest{
		Authorization: testAuth,
		BrowserProbe:  &probe.Result{Source: "browser", OK: true},
	})

	if resp.FinalStatus != "pending" {
		t.Fatalf("finalStatus = %s", resp.FinalStatus)
	}
	if resp.FailureCode != errcode.EgressBlocked {
		t.Fatalf("failureCode = %s, want EGRESS_BLOCKED (browser reached the runtime)", resp.FailureCode)
	}
	// The server probe itself still reports the hard code.
	if resp.ServerProbe == nil || resp.ServerProbe.Code != errcode.Auth401403 {
		t.Fatalf("serverProbe = %+v", resp.ServerProbe)
	}

	rec, _ := fx.store.Get(context.Background(), testAuth)
	if rec.LastProbeCode != string(errcode.EgressBlocked) {
		t.Fatalf("lastProbeCode = %q", rec.LastProbeCode)
	}
}

func TestReprobe_RequestsBrowserProbeOnFailure(t *testing.T) {
	res, dial, _ := happyEdges()
	fx := newFixture(res, dial, &fakeDoer{status: 403, body: `{}`})

	fx.orch.VerifyAndBind(context.Background(), Request{
		Authorization: testAuth, Domain: "runtime.customer.org",
	})

	resp := fx.orch.Reprobe(context.Background(), ProbeRequest{
		Authorization:   testAuth,
		RunBrowserProbe: true,
	})
	if !resp.BrowserProbeRequested {
		t.Fatal("failed server probe with a willing client must request a browser probe")
	}

	// Attaching a browser result satisfies the request.
	resp = fx.orch.Reprobe(context.Background(), ProbeRequest{
		Authorization:   testAuth,
		RunBrowserProbe: true,
		BrowserProbe:    &probe.Result{Source: "browser", OK: false},
	})
	if resp.BrowserProbeRequested {
		t.Fatal("browserProbeRequested must clear once a result is attached")
	}
}

func TestReprobe_NoBinding(t *testing.T) {
	fx := newFixture(happyEdges())

	resp := fx.orch.Reprobe(context.Background(), ProbeRequest{Authorization: testAuth})
	if resp.FailureCode != errcode.NotBound {
		t.Fatalf("failureCode = %s, want RUNTIME_DOMAIN_NOT_BOUND", resp.FailureCode)
	}
}

func TestNextActions_DefaultFallback(t *testing.T) {
	hints := NextActions(errcode.Code("SOMETHING_NEW"))
	if len(hints) == 0 {
		t.Fatal("unknown codes must still yield a hint")
	}
}
