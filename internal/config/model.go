// internal/config/model.go
//
// Typed configuration model for the mediation edge.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `MEDIATION_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so the handlers never
// see Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Control-plane section
//

// ControlPlane points at the upstream dashboard/API service that owns
// binding storage.  ServiceToken may be a `vault:` reference.
type ControlPlane struct {
	BaseURL      string `koanf:"base_url"      validate:"omitempty,url"`
	ServiceToken string `koanf:"service_token"`
}

//
// Runtime-routing section
//

// Runtime holds the knobs that drive domain verification and bid routing.
//
// GatewayHost is the CNAME target customers point their runtime domains
// at.  ManagedBaseURL is the operator-owned runtime used when a customer
// binding is absent or unverified; leaving it empty removes the managed
// branches rather than erroring at startup.  APIBaseURLOverride pins
// every bid to one runtime regardless of bindings, for staging and
// incident response.
type Runtime struct {
	GatewayHost            string `koanf:"gateway_host"`
	RequireCNAME           bool   `koanf:"require_cname"`
	ManagedBaseURL         string `koanf:"managed_base_url"    validate:"omitempty,url"`
	APIBaseURLOverride     string `koanf:"api_base_url_override" validate:"omitempty,url"`
	DisableManagedFallback bool   `koanf:"disable_managed_fallback"`
	DefaultPlacementID     string `koanf:"default_placement_id"`
}

//
// Binding-store section
//

// Binding selects where runtime bindings persist.  When DSN is set the
// edge keeps bindings in its own MySQL table; otherwise it uses the
// control-plane REST API.  BlobKey encrypts stored probe headers and may
// be a `vault:` reference.
type Binding struct {
	DSN             string `koanf:"dsn"`
	BlobKey         string `koanf:"blob_key"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds" validate:"omitempty,min=1"`
}

//
// Geo section
//

// Geo locates the optional GeoLite2-City database used to enrich bid
// traffic.  Empty path disables geo enrichment.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or MEDIATION_ROOT override) so later code
// can build absolute file paths.
type Paths struct {
	Root string // MEDIATION_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP         HTTP         `koanf:"http"`
	ControlPlane ControlPlane `koanf:"control_plane"`
	Runtime      Runtime      `koanf:"runtime"`
	Binding      Binding      `koanf:"binding"`
	Geo          Geo          `koanf:"geo"`
	Paths        Paths        `koanf:"-"` // not loaded from config files
}
