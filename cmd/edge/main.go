// cmd/edge/main.go
//
// Mediation edge – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load config (.env + conf/global.yaml + MEDIATION_* overrides) and
//     resolve any vault: secret references.
//
//  4. Pick the binding persistence backend:
//
//     • MySQL table, when binding.dsn is set (self-hosted edges),
//     • control-plane REST API, when control_plane.base_url is set,
//     • in-memory only, otherwise (verification still works; bindings
//       do not survive restarts).
//
//  5. Build the binding store (TTL cache + singleflight), probe runner,
//     verification orchestrator, and bid proxy.
//
//  6. Open the optional GeoLite2 database for bid-traffic enrichment.
//
//  7. Assemble the chi router (verify, probe, bootstrap, bid, healthz,
//     Prometheus /metrics) and serve with hardened timeouts.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/oschwald/geoip2-golang"

	"github.com/tappyhq/mediation-edge/internal/bidproxy"
	"github.com/tappyhq/mediation-edge/internal/binding"
	"github.com/tappyhq/mediation-edge/internal/config"
	"github.com/tappyhq/mediation-edge/internal/httpapi"
	"github.com/tappyhq/mediation-edge/internal/logger"
	"github.com/tappyhq/mediation-edge/internal/probe"
	"github.com/tappyhq/mediation-edge/internal/requestinfo"
	"github.com/tappyhq/mediation-edge/internal/route"
	"github.com/tappyhq/mediation-edge/internal/server"
	"github.com/tappyhq/mediation-edge/internal/vault"
	"github.com/tappyhq/mediation-edge/internal/verify"
)

const serverEnvPath = "/usr/local/etc/mediation-edge/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx := context.Background()

	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	//
	// ── 1.  Config load + secret resolution ─────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		logOut.Fatalf("load config: %v", err)
	}

	if cfg.NeedsVault() {
		vcli, err := vault.New(ctx, logOut.Infof)
		if err != nil {
			logOut.Fatalf("vault client: %v", err)
		}
		if err := config.ResolveSecrets(ctx, vcli, cfg); err != nil {
			logOut.Fatalf("resolve secrets: %v", err)
		}
		logOut.Infow("vault secrets resolved")
	}

	//
	// ── 2.  Binding persistence backend ─────────────────────────────────
	//
	var persist binding.Persistence
	switch {
	case cfg.Binding.DSN != "":
		sqlStore, err := binding.OpenSQL(cfg.Binding.DSN)
		if err != nil {
			logOut.Fatalf("connect binding DB: %v", err)
		}
		defer sqlStore.Close()
		persist = sqlStore
		logOut.Infow("binding persistence online", "backend", "mysql")
	case cfg.ControlPlane.BaseURL != "":
		persist = binding.NewControlPlane(cfg.ControlPlane.BaseURL,
			cfg.ControlPlane.ServiceToken, nil)
		logOut.Infow("binding persistence online",
			"backend", "control-plane", "base_url", cfg.ControlPlane.BaseURL)
	default:
		logOut.Warnw("no binding persistence configured, bindings are memory-only")
	}

	store := binding.NewStore(persist, cfg.CacheTTL())

	//
	// ── 3.  Probe runner + verification orchestrator ────────────────────
	//
	runner := probe.NewRunner(probe.Config{
		GatewayHost:        cfg.Runtime.GatewayHost,
		RequireCNAME:       cfg.Runtime.RequireCNAME,
		DefaultPlacementID: cfg.Runtime.DefaultPlacementID,
	})
	orch := verify.New(runner, store,
		binding.NewHeaderCodec(cfg.Binding.BlobKey), cfg.Runtime.DefaultPlacementID)

	//
	// ── 4.  Optional geo enrichment ─────────────────────────────────────
	//
	var geoDB *geoip2.Reader
	if cfg.Geo.DBPath != "" {
		geoDB, err = requestinfo.OpenGeo(cfg.Geo.DBPath)
		if err != nil {
			// Enrichment is best-effort; bid traffic must not depend on it.
			logOut.Warnw("geo database unavailable", "path", cfg.Geo.DBPath, "err", err)
			geoDB = nil
		} else {
			defer geoDB.Close()
			logOut.Infow("geo database online", "path", cfg.Geo.DBPath)
		}
	}

	//
	// ── 5.  Router + server ─────────────────────────────────────────────
	//
	router := httpapi.NewRouter(httpapi.Handlers{
		Orch:  orch,
		Store: store,
		Route: route.Config{
			OverrideBaseURL: cfg.Runtime.APIBaseURLOverride,
			ManagedBaseURL:  cfg.Runtime.ManagedBaseURL,
			DisableFallback: cfg.Runtime.DisableManagedFallback,
		},
		Proxy:            bidproxy.New(nil, logOut),
		Enricher:         requestinfo.NewEnricher(geoDB, logOut),
		DefaultPlacement: cfg.Runtime.DefaultPlacementID,
		Log:              logOut,
	})

	srv := server.New(cfg.HTTP.ListenAddr, router)
	logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
	if err := srv.ListenAndServe(); err != nil {
		logOut.Fatalf("http server: %v", err)
	}
}
