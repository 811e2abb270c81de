package probe

import (
	"fmt"

	"github.com/tappyhq/mediation-edge/internal/errcode"
)

func errNotFound(host string) *errcode.Error {
	return errcode.New(errcode.DNSNotFound,
		fmt.Sprintf("no A, AAAA, or CNAME records found for %s", host))
}

func errGatewayCNAMERequired(gateway string) *errcode.Error {
	return errcode.New(errcode.CNAMEMismatch,
		fmt.Sprintf("this deployment requires a CNAME pointing at %s", gateway))
}
