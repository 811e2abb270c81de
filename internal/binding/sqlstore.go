// internal/binding/sqlstore.go
//
// MySQL binding persistence for self-hosted deployments.
//
// Context
// -------
// Operators who run the edge without the managed control plane point
// `binding.dsn` at a MySQL (or MariaDB) instance and the edge persists
// snapshots itself.  Uses the same Persistence interface as the REST
// client, so the Store never knows which backend is live.
//
// Schema (one table):
//
//	runtime_binding (
//	    key_hash               CHAR(64) PRIMARY KEY,
//	    tenant_id              VARCHAR(32)  NOT NULL,
//	    runtime_base_url       VARCHAR(255) NOT NULL DEFAULT '',
//	    placement_id           VARCHAR(64)  NOT NULL DEFAULT '',
//	    bind_status            VARCHAR(16)  NOT NULL,
//	    verified_at            DATETIME     NULL,
//	    last_probe_at          DATETIME     NULL,
//	    last_probe_code        VARCHAR(64)  NOT NULL DEFAULT '',
//	    last_probe_http_status INT          NOT NULL DEFAULT 0,
//	    probe_headers_blob     TEXT         NOT NULL,
//	    probe_diagnostics      TEXT         NOT NULL,
//	    created_at             DATETIME     NOT NULL,
//	    updated_at             DATETIME     NOT NULL
//	)

package binding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/tappyhq/mediation-edge/internal/probe"
)

// SQLStore implements Persistence on a small MySQL pool.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQL connects with a conservative pool and pings so bootstrap fails
// fast on a bad DSN.
func OpenSQL(dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an existing pool (tests).
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

// Close releases the pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Ping reports backend reachability for health checks.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// bindingRow mirrors the table; diagnostics travel as a JSON text column.
type bindingRow struct {
	Record
	Diagnostics string `db:"probe_diagnostics"`
}

const selectBinding = `
        SELECT key_hash, tenant_id, runtime_base_url, placement_id,
               bind_status, verified_at, last_probe_at, last_probe_code,
               last_probe_http_status, probe_headers_blob, probe_diagnostics,
               created_at, updated_at
        FROM   runtime_binding
        WHERE  key_hash = ?
        LIMIT  1`

// Fetch implements Persistence.
func (s *SQLStore) Fetch(ctx context.Context, keyHash string) (*Record, error) {
	var row bindingRow
	if err := s.db.GetContext(ctx, &row, selectBinding, keyHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec := row.Record
	if row.Diagnostics != "" {
		var diags []probe.Result
		if err := json.Unmarshal([]byte(row.Diagnostics), &diags); err == nil {
			rec.ProbeDiagnostics = diags
		}
	}
	return &rec, nil
}

const upsertBinding = `
        INSERT INTO runtime_binding
               (key_hash, tenant_id, runtime_base_url, placement_id,
                bind_status, verified_at, last_probe_at, last_probe_code,
                last_probe_http_status, probe_headers_blob, probe_diagnostics,
                created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
               tenant_id = VALUES(tenant_id),
               runtime_base_url = VALUES(runtime_base_url),
               placement_id = VALUES(placement_id),
               bind_status = VALUES(bind_status),
               verified_at = VALUES(verified_at),
               last_probe_at = VALUES(last_probe_at),
               last_probe_code = VALUES(last_probe_code),
               last_probe_http_status = VALUES(last_probe_http_status),
               probe_headers_blob = VALUES(probe_headers_blob),
               probe_diagnostics = VALUES(probe_diagnostics),
               updated_at = VALUES(updated_at)`

// Save implements Persistence with a full-snapshot upsert.
func (s *SQLStore) Save(ctx context.Context, rec *Record) (*Record, error) {
	diags := ""
	if len(rec.ProbeDiagnostics) > 0 {
		if b, err := json.Marshal(rec.ProbeDiagnostics); err == nil {
			diags = string(b)
		}
	}

	_, err := s.db.ExecContext(ctx, upsertBinding,
		rec.KeyHash, rec.TenantID, rec.RuntimeBaseURL, rec.PlacementID,
		rec.BindStatus, rec.VerifiedAt, rec.LastProbeAt, rec.LastProbeCode,
		rec.LastProbeHTTPStatus, rec.ProbeHeadersBlob, diags,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
