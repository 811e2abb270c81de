package binding

import (
	"context"
	"errors"
)

// ErrNotFound reports that no binding exists for a key hash.  Both
// persistence backends translate their respective "missing" signals
// (HTTP 404, sql.ErrNoRows) into it.
var ErrNotFound = errors.New("binding not found")

// Persistence is the remote half of the store: the control-plane REST
// endpoint in managed deployments, MySQL when self-hosted.
type Persistence interface {
	// Fetch loads the binding for keyHash, or ErrNotFound.
	Fetch(ctx context.Context, keyHash string) (*Record, error)

	// Save upserts the full snapshot and echoes what was stored.
	Save(ctx context.Context, rec *Record) (*Record, error)
}
