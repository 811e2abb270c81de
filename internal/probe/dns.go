// internal/probe/dns.go
//
// DNS + CNAME pre-flight check.
//
// A and AAAA records are resolved in parallel, each individually tolerant
// of failure, alongside a CNAME lookup.  A host with neither an address
// nor a CNAME target fails DNS_ENOTFOUND.  A CNAME pointing at the
// configured gateway host sets cnameOk; with the strict flag on, a missing
// gateway CNAME is fatal (CNAME_MISMATCH).

package probe

import (
	"context"
	"net"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DNSStatus reports the outcome of the DNS pre-flight.
type DNSStatus struct {
	DNSOk   bool
	CNAMEOk bool
}

// CheckDNS runs the DNS + CNAME stage for host.  The returned error is nil
// unless the stage is fatal for the overall verification.
func (r *Runner) CheckDNS(ctx context.Context, host string) (DNSStatus, error) {
	var (
		mu    sync.Mutex
		addrs []net.IP
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, network := range []string{"ip4", "ip6"} {
		network := network
		g.Go(func() error {
			ips, err := r.resolver.LookupIP(gctx, network, host)
			if err != nil {
				return nil // each family is individually tolerant
			}
			mu.Lock()
			addrs = append(addrs, ips...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	cname, _ := r.resolver.LookupCNAME(ctx, host)
	target := canonicalHost(cname)
	hasCNAME := target != "" && target != canonicalHost(host)

	if len(addrs) == 0 && !hasCNAME {
		return DNSStatus{}, errNotFound(host)
	}

	cnameOk := hasCNAME && r.cfg.GatewayHost != "" &&
		target == canonicalHost(r.cfg.GatewayHost)

	if r.cfg.RequireCNAME && !cnameOk {
		return DNSStatus{DNSOk: true}, errGatewayCNAMERequired(r.cfg.GatewayHost)
	}

	return DNSStatus{DNSOk: true, CNAMEOk: cnameOk}, nil
}

// canonicalHost lower-cases and strips the trailing dot resolvers append.
func canonicalHost(h string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
}
