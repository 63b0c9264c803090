// Package mcpconfig defines the ServerConfig data model shared by the
// registry client, lifecycle manager and MCP service, plus the
// deterministic auth-classification rule spec.md §4.2 describes.
package mcpconfig

import (
	"strings"

	"github.com/google/uuid"
)

// Source identifies where a ServerConfig originated.
type Source string

const (
	SourceOfficial Source = "official"
	SourceMirror   Source = "mirror"
	SourceManual   Source = "manual"
)

// PackageKind identifies the launch mechanism for a stdio server.
type PackageKind string

const (
	PackageNPM    PackageKind = "npm"
	PackageDocker PackageKind = "docker"
	PackageHTTP   PackageKind = "http"
)

// Transport identifies how the lifecycle manager talks to a running server.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// AuthKind identifies how credentials are supplied to a server.
type AuthKind string

const (
	AuthNone    AuthKind = "none"
	AuthAPIKey  AuthKind = "api-key"
	AuthKeyfile AuthKind = "keyfile"
	AuthOAuth   AuthKind = "oauth"
)

// EnvVar is a single required-or-optional environment variable a server
// expects at launch.
type EnvVar struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
}

// PackageArgKind distinguishes named (--flag value) from positional args.
type PackageArgKind string

const (
	ArgNamed      PackageArgKind = "named"
	ArgPositional PackageArgKind = "positional"
)

// PackageArg is one entry in a package's argument schema.
type PackageArg struct {
	Kind     PackageArgKind `json:"kind" yaml:"kind"`
	Name     string         `json:"name" yaml:"name"`
	Required bool           `json:"required" yaml:"required"`
	Default  string         `json:"default,omitempty" yaml:"default,omitempty"`
}

// Package describes the launch artifact for a stdio/docker server, or is
// empty for http-transport servers.
type Package struct {
	Kind        PackageKind `json:"kind" yaml:"kind"`
	Identifier  string      `json:"identifier" yaml:"identifier"`
	RuntimeHint string      `json:"runtimeHint,omitempty" yaml:"runtimeHint,omitempty"`
}

// ServerConfig is the full description of one MCP server, persisted as
// part of config.json (spec.md §6).
type ServerConfig struct {
	ID          uuid.UUID              `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Enabled     bool                   `json:"enabled" yaml:"enabled"`
	Source      Source                 `json:"source" yaml:"source"`
	Package     Package                `json:"package" yaml:"package"`
	Transport   Transport              `json:"transport" yaml:"transport"`
	Auth        AuthKind               `json:"auth" yaml:"auth"`
	EnvVars     []EnvVar               `json:"envVars,omitempty" yaml:"envVars,omitempty"`
	PackageArgs []PackageArg           `json:"packageArgs,omitempty" yaml:"packageArgs,omitempty"`
	KeyfilePath string                 `json:"keyfilePath,omitempty" yaml:"keyfilePath,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	OAuthToken  string                 `json:"oauthToken,omitempty" yaml:"oauthToken,omitempty"`
}

// Validate enforces the structural invariants of spec.md §3: stdio
// transport requires a launch command (checked by callers that already
// built the command — here we validate the cheaper, static invariants),
// http transport carries no command expectations, and keyfile auth
// requires a path.
func (c ServerConfig) Validate() error {
	if c.Transport == TransportStdio && c.Package.Identifier == "" {
		return newValidationError("stdio transport requires a package identifier")
	}
	if c.Auth == AuthKeyfile && c.KeyfilePath == "" {
		return newValidationError("keyfile auth requires a keyfile path")
	}
	return nil
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func newValidationError(msg string) error { return &validationError{msg: msg} }

// RegistryEnvVar is the registry-side shape used for auth detection,
// decoupled from the persisted EnvVar so registry conversion can run
// before a ServerConfig exists.
type RegistryEnvVar struct {
	Name       string
	IsSecret   bool
	IsRequired bool
}

// DetectAuthKind implements spec.md §4.2's deterministic auth
// classification: CLIENT_ID + secret CLIENT_SECRET => oauth; any secret
// variable named like a token/key/PAT => api-key; else none.
func DetectAuthKind(vars []RegistryEnvVar) AuthKind {
	hasClientID := false
	hasClientSecret := false
	hasSecretLikeCred := false

	for _, v := range vars {
		upper := strings.ToUpper(v.Name)
		if strings.Contains(upper, "CLIENT_ID") {
			hasClientID = true
		}
		if v.IsSecret && strings.Contains(upper, "CLIENT_SECRET") {
			hasClientSecret = true
		}
		if v.IsSecret && isCredentialLike(upper) {
			hasSecretLikeCred = true
		}
	}

	switch {
	case hasClientID && hasClientSecret:
		return AuthOAuth
	case hasSecretLikeCred:
		return AuthAPIKey
	default:
		return AuthNone
	}
}

func isCredentialLike(upperName string) bool {
	for _, marker := range []string{"TOKEN", "API_KEY", "_KEY", "_PAT"} {
		if strings.Contains(upperName, marker) {
			return true
		}
	}
	return false
}
