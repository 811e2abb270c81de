// internal/binding/store.go
//
// Read-through / write-through binding store.
//
// Context
// -------
// The Store is the only shared mutable state in the edge.  It keeps a
// short-TTL in-process cache keyed by the normalized Authorization value,
// plus a local fallback map keyed by keyHash that outlives the cache TTL.
// Reads go cache → remote → local; a remote 404 means "no binding", and
// any other remote failure degrades to whatever local copy exists rather
// than failing the caller.  Writes land locally first, so routing stays
// correct even when the remote push fails, then reconcile with whatever
// the remote echoes back.
//
// Concurrency
// -----------
// A singleflight group collapses concurrent loads per key and a mutex
// guards both maps.  Get hands out clones, never shared pointers.

package binding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tappyhq/mediation-edge/internal/metrics"
)

// CacheTTL is how long a cached snapshot is trusted without a remote read.
const CacheTTL = 30 * time.Second

type cacheEntry struct {
	rec     *Record // nil caches a confirmed absence
	expires time.Time
}

// Store coordinates the cache, the local fallback map, and persistence.
type Store struct {
	persist Persistence // nil when the edge runs without any backend
	ttl     time.Duration
	sfg     singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry // normalized Authorization → snapshot
	local map[string]*Record    // keyHash → last locally written snapshot

	now func() time.Time
}

// NewStore builds a Store.  persist may be nil; ttl <= 0 uses CacheTTL.
func NewStore(persist Persistence, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &Store{
		persist: persist,
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
		local:   make(map[string]*Record),
		now:     time.Now,
	}
}

// Get returns the binding for an Authorization header, or (nil, nil) when
// none exists.  The result is a private copy.
func (s *Store) Get(ctx context.Context, authorization string) (*Record, error) {
	auth, ok := NormalizeAuthorization(authorization)
	if !ok {
		return nil, nil
	}

	s.mu.Lock()
	if ent, hit := s.cache[auth]; hit && s.now().Before(ent.expires) {
		s.mu.Unlock()
		metrics.BindingCacheHits.Inc()
		return ent.rec.Clone(), nil
	}
	s.mu.Unlock()
	metrics.BindingCacheMisses.Inc()

	v, err, _ := s.sfg.Do(auth, func() (interface{}, error) {
		return s.load(ctx, auth), nil
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	return rec.Clone(), nil
}

// load resolves one cache miss: remote read folded over the local copy.
func (s *Store) load(ctx context.Context, auth string) *Record {
	keyHash := HashKey(auth)

	s.mu.Lock()
	localCopy := s.local[keyHash].Clone()
	s.mu.Unlock()

	rec := localCopy
	if s.persist != nil {
		rctx, cancel := context.WithTimeout(ctx, RemoteTimeout)
		remote, err := s.persist.Fetch(rctx, keyHash)
		cancel()
		switch {
		case err == nil:
			rec = remote // remote wins when reachable
		case err == ErrNotFound:
			// No remote record.  Keep any local copy; it may be a write
			// whose remote push has not landed yet.
		default:
			metrics.BindingRemoteErrors.Inc()
			zap.S().Warnw("binding remote read degraded to local copy",
				"key_hash", keyHash, "err", err)
		}
	}

	s.mu.Lock()
	s.cache[auth] = cacheEntry{rec: rec.Clone(), expires: s.now().Add(s.ttl)}
	if rec != nil {
		s.local[keyHash] = rec.Clone()
	}
	s.mu.Unlock()
	return rec
}

// Save writes a full snapshot: local maps first, then a best-effort remote
// push whose echo reconciles the cache.  Save never fails the caller.
func (s *Store) Save(ctx context.Context, authorization string, rec *Record) *Record {
	auth, ok := NormalizeAuthorization(authorization)
	if !ok || rec == nil {
		return rec
	}

	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.mu.Lock()
	s.local[rec.KeyHash] = rec.Clone()
	s.cache[auth] = cacheEntry{rec: rec.Clone(), expires: now.Add(s.ttl)}
	s.mu.Unlock()

	if s.persist == nil {
		return rec
	}

	rctx, cancel := context.WithTimeout(ctx, RemoteTimeout)
	echo, err := s.persist.Save(rctx, rec)
	cancel()
	if err != nil {
		metrics.BindingRemoteErrors.Inc()
		zap.S().Warnw("binding remote write failed; local copy is authoritative",
			"key_hash", rec.KeyHash, "err", err)
		return rec
	}
	if echo != nil && echo.KeyHash == rec.KeyHash {
		s.mu.Lock()
		s.local[rec.KeyHash] = echo.Clone()
		s.cache[auth] = cacheEntry{rec: echo.Clone(), expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return echo.Clone()
	}
	return rec
}

// Healthy reports whether the persistence backend answers, for /healthz.
func (s *Store) Healthy(ctx context.Context) bool {
	type pinger interface{ Ping(context.Context) error }
	if p, ok := s.persist.(pinger); ok {
		return p.Ping(ctx) == nil
	}
	return true
}
