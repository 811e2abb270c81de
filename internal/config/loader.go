// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file — first `<root>/conf/.env`, then jail-wide fallback.
  2. `conf/global.yaml` (optional; the edge can run on env alone).
  3. Environment variables prefixed `MEDIATION_`, where `__` maps to “.”
     (e.g., `MEDIATION_RUNTIME__GATEWAY_HOST → runtime.gateway_host`).

After merging, the tree is unmarshalled into strongly-typed structs,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` simply calls `Load()`
again and swaps the pointer.

Secrets written as `vault:` references stay unresolved here; main()
expands them via ResolveSecrets once the Vault client is up.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  — final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed (bootstrap console).

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/edge` work from any sub-directory.
*/
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/tappyhq/mediation-edge/internal/vault"
)

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves MEDIATION_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv("MEDIATION_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, validates, and caches Config.
func Load() (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	// YAML is optional; a pure-env deployment skips it.
	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if _, statErr := os.Stat(yamlPath); statErr == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	}

	// Env overrides: MEDIATION_RUNTIME__GATEWAY_HOST → runtime.gateway_host
	if err := k.Load(env.Provider("MEDIATION_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MEDIATION_")
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	applyDefaults(&cfg)

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"gateway_host", cfg.Runtime.GatewayHost,
		"managed_base_url", cfg.Runtime.ManagedBaseURL,
		"binding_backend", bindingBackend(&cfg),
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":8080"
	}
	if cfg.Binding.CacheTTLSeconds == 0 {
		cfg.Binding.CacheTTLSeconds = 30
	}
}

func bindingBackend(cfg *Config) string {
	if cfg.Binding.DSN != "" {
		return "mysql"
	}
	if cfg.ControlPlane.BaseURL != "" {
		return "control-plane"
	}
	return "memory"
}

// CacheTTL returns the binding cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Binding.CacheTTLSeconds) * time.Second
}

/*──────────────────────────── vault resolution ─────────────────────────────*/

// ResolveSecrets expands every `vault:`-referenced field in place.  It is
// a no-op for plain values, so main() can call it unconditionally once
// the Vault client is up.
func ResolveSecrets(ctx context.Context, cli *vault.Client, cfg *Config) error {
	for _, field := range []*string{
		&cfg.ControlPlane.ServiceToken,
		&cfg.Binding.BlobKey,
		&cfg.Binding.DSN,
	} {
		val, err := cli.Resolve(ctx, *field)
		if err != nil {
			return err
		}
		*field = val
	}
	current.Store(cfg)
	return nil
}

// NeedsVault reports whether any configured value is a vault: reference.
func (c *Config) NeedsVault() bool {
	return vault.IsRef(c.ControlPlane.ServiceToken) ||
		vault.IsRef(c.Binding.BlobKey) ||
		vault.IsRef(c.Binding.DSN)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }
