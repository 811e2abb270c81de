// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial or malformed configuration.
//
// Rules in use: `required` and `hostname_port` on the listen address,
// `url` on the control-plane and managed-runtime base URLs, and a min
// bound on the binding cache TTL.  `vault:` references skip the url rule
// because they resolve after validation.

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tappyhq/mediation-edge/internal/vault"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	// url rules cannot apply to vault: references; blank them for the
	// validation pass only.
	cp := *c
	if vault.IsRef(cp.ControlPlane.BaseURL) {
		cp.ControlPlane.BaseURL = ""
	}
	if s := cp.Runtime.ManagedBaseURL; vault.IsRef(s) || strings.HasPrefix(s, "$") {
		cp.Runtime.ManagedBaseURL = ""
	}
	return v.Struct(&cp)
}
