// internal/binding/record.go
//
// Runtime binding record and API-key identity helpers.
//
// Context
// -------
// One Record exists per API-key identity.  The key itself is never stored;
// keyHash is a SHA-256 of the bearer token, and tenantId is a derived,
// display-safe identifier that stays stable for the same key value.  The
// record is a full snapshot: every write replaces it wholesale, so a
// reader always sees an internally consistent state (last writer wins).
//
// Notes
// -----
//   - keyHash is immutable once set.
//   - bindStatus "verified" requires runtimeBaseUrl and verifiedAt.
//   - The subsystem never deletes a record, only transitions it.
package binding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/tappyhq/mediation-edge/internal/probe"
)

// Status is the binding lifecycle state.
type Status string

const (
	StatusUnbound  Status = "unbound"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// tenantEpoch is folded into the tenant-id hash.  Bumping it rotates every
// tenant id without touching keyHash; that decision belongs to the control
// plane, so the edge pins a single epoch.
const tenantEpoch = "v1"

// Record is the per-key binding snapshot.
type Record struct {
	KeyHash             string         `json:"keyHash" db:"key_hash"`
	TenantID            string         `json:"tenantId" db:"tenant_id"`
	RuntimeBaseURL      string         `json:"runtimeBaseUrl,omitempty" db:"runtime_base_url"`
	PlacementID         string         `json:"placementId,omitempty" db:"placement_id"`
	BindStatus          Status         `json:"bindStatus" db:"bind_status"`
	VerifiedAt          *time.Time     `json:"verifiedAt,omitempty" db:"verified_at"`
	LastProbeAt         *time.Time     `json:"lastProbeAt,omitempty" db:"last_probe_at"`
	LastProbeCode       string         `json:"lastProbeCode,omitempty" db:"last_probe_code"`
	LastProbeHTTPStatus int            `json:"lastProbeHttpStatus,omitempty" db:"last_probe_http_status"`
	ProbeHeadersBlob    string         `json:"probeHeadersEncrypted,omitempty" db:"probe_headers_blob"`
	ProbeDiagnostics    []probe.Result `json:"probeDiagnostics,omitempty" db:"-"`
	CreatedAt           time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time      `json:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy so cached snapshots never alias caller state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		cp.VerifiedAt = &t
	}
	if r.LastProbeAt != nil {
		t := *r.LastProbeAt
		cp.LastProbeAt = &t
	}
	if len(r.ProbeDiagnostics) > 0 {
		cp.ProbeDiagnostics = append([]probe.Result(nil), r.ProbeDiagnostics...)
	}
	return &cp
}

// NormalizeAuthorization canonicalizes an Authorization header into
// "Bearer <token>" form.  The second return is false when no usable token
// is present.
func NormalizeAuthorization(header string) (string, bool) {
	token := BearerToken(header)
	if token == "" {
		return "", false
	}
	return "Bearer " + token, true
}

// BearerToken strips an optional Bearer prefix and surrounding space.
func BearerToken(header string) string {
	s := strings.TrimSpace(header)
	if len(s) >= 7 && strings.EqualFold(s[:7], "Bearer ") {
		s = s[7:]
	}
	return strings.TrimSpace(s)
}

// HashKey derives the stable primary key for an Authorization value.
func HashKey(header string) string {
	sum := sha256.Sum256([]byte(BearerToken(header)))
	return hex.EncodeToString(sum[:])
}

// TenantID derives the display identifier for an Authorization value.
// Same key value, same tenant id, across key-object rotations.
func TenantID(header string) string {
	sum := sha256.Sum256([]byte(BearerToken(header) + "|" + tenantEpoch))
	return "tnt_" + hex.EncodeToString(sum[:8])
}
