// internal/probe/tls.go
//
// TLS handshake pre-flight.  One verifying handshake to host:443 inside an
// 8-second budget; anything short of a clean secure session is TLS_INVALID.

package probe

import (
	"context"

	"github.com/tappyhq/mediation-edge/internal/errcode"
)

// CheckTLS opens and immediately closes one verified TLS session to host.
func (r *Runner) CheckTLS(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TLSTimeout)
	defer cancel()

	conn, err := r.dialer.DialTLS(ctx, host)
	if err != nil {
		return errcode.Wrap(errcode.TLSInvalid,
			"TLS handshake with "+host+":443 failed", err)
	}
	_ = conn.Close()
	return nil
}
