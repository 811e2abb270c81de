// internal/route/resolver_test.go
//
// Routing precedence tests.

package route

import (
	"testing"

	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/errcode"
)

func verifiedBinding() *binding.Record {
	return &binding.Record{
		KeyHash:        "kh_1",
		RuntimeBaseURL: "https://runtime.customer.org",
		BindStatus:     binding.StatusVerified,
	}
}

func TestResolve_OverrideBeatsEverything(t *testing.T) {
	cfg := Config{
		OverrideBaseURL: "https://staging.tappy.net",
		ManagedBaseURL:  "https://managed.tappy.net",
	}

	d, ferr := Resolve(cfg, verifiedBinding())
	if ferr != nil {
		t.Fatalf("unexpected failure: %v", ferr)
	}
	if d.Source != SourceOverride || d.RuntimeBaseURL != "https://staging.tappy.net" {
		t.Fatalf("decision = %+v", d)
	}
	if d.BindStatus != binding.StatusVerified {
		t.Fatalf("override must still report the binding status, got %s", d.BindStatus)
	}

	d, ferr = Resolve(cfg, nil)
	if ferr != nil || d.Source != SourceOverride || d.BindStatus != binding.StatusUnbound {
		t.Fatalf("decision without binding = %+v (%v)", d, ferr)
	}
}

func TestResolve_VerifiedGoesToCustomer(t *testing.T) {
	d, ferr := Resolve(Config{ManagedBaseURL: "https://managed.tappy.net"}, verifiedBinding())
	if ferr != nil {
		t.Fatalf("unexpected failure: %v", ferr)
	}
	if d.Source != SourceCustomer || d.RuntimeBaseURL != "https://runtime.customer.org" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestResolve_PendingUsesManagedFallback(t *testing.T) {
	rec := verifiedBinding()
	rec.BindStatus = binding.StatusPending

	d, ferr := Resolve(Config{ManagedBaseURL: "https://managed.tappy.net"}, rec)
	if ferr != nil {
		t.Fatalf("unexpected failure: %v", ferr)
	}
	if d.Source != SourceManagedFallback || d.RuntimeBaseURL != "https://managed.tappy.net" {
		t.Fatalf("decision = %+v", d)
	}
	if d.BindStatus != binding.StatusPending {
		t.Fatalf("bindStatus = %s", d.BindStatus)
	}
}

func TestResolve_FallbackDisabled(t *testing.T) {
	rec := verifiedBinding()
	rec.BindStatus = binding.StatusFailed

	d, ferr := Resolve(Config{ManagedBaseURL: "https://managed.tappy.net", DisableFallback: true}, rec)
	if ferr == nil || ferr.Code != errcode.ManagedNotConfigured {
		t.Fatalf("ferr = %v, want MANAGED_RUNTIME_NOT_CONFIGURED", ferr)
	}
	if d.BindStatus != binding.StatusFailed {
		t.Fatalf("failure must carry the binding status, got %s", d.BindStatus)
	}
}

func TestResolve_NoBindingUsesManagedDefault(t *testing.T) {
	d, ferr := Resolve(Config{ManagedBaseURL: "https://managed.tappy.net"}, nil)
	if ferr != nil {
		t.Fatalf("unexpected failure: %v", ferr)
	}
	if d.Source != SourceManagedDefault || d.BindStatus != binding.StatusUnbound {
		t.Fatalf("decision = %+v", d)
	}
}

func TestResolve_NothingConfigured(t *testing.T) {
	d, ferr := Resolve(Config{}, nil)
	if ferr == nil || ferr.Code != errcode.ManagedNotConfigured {
		t.Fatalf("ferr = %v, want MANAGED_RUNTIME_NOT_CONFIGURED", ferr)
	}
	if d.BindStatus != binding.StatusUnbound {
		t.Fatalf("bindStatus = %s, want unbound", d.BindStatus)
	}
}

func TestResolve_VerifiedWithoutURLFallsThrough(t *testing.T) {
	rec := verifiedBinding()
	rec.RuntimeBaseURL = ""

	d, ferr := Resolve(Config{ManagedBaseURL: "https://managed.tappy.net"}, rec)
	if ferr != nil {
		t.Fatalf("unexpected failure: %v", ferr)
	}
	if d.Source != SourceManagedFallback {
		t.Fatalf("decision = %+v, want managed fallback", d)
	}
}
