// Package mcpregistry discovers installable MCP servers from the official
// registry and from bearer-token-authenticated mirrors, converting their
// entries into mcpconfig.ServerConfig values.
package mcpregistry

import "encoding/json"

// Entry wraps one server record the way the official registry nests it
// under "server"/"_meta".
type Entry struct {
	Server Server          `json:"server"`
	Meta   json.RawMessage `json:"_meta,omitempty"`
}

// Server is one registry server definition.
type Server struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Repository  Repository   `json:"repository"`
	Version     string       `json:"version"`
	Packages    []Package    `json:"packages"`
	Remotes     []Remote     `json:"remotes"`
}

// Repository is the optional source-control pointer on a Server.
type Repository struct {
	URL    string `json:"url,omitempty"`
	Source string `json:"source,omitempty"`
}

// Package is one launch artifact a registry Server offers.
type Package struct {
	RegistryType          string       `json:"registryType"`
	Identifier            string       `json:"identifier"`
	Version               string       `json:"version,omitempty"`
	Transport             Transport    `json:"transport"`
	EnvironmentVariables  []EnvVar     `json:"environmentVariables"`
	PackageArguments      []PackageArg `json:"packageArguments"`
}

// Transport is the registry-side transport descriptor.
type Transport struct {
	Type string `json:"type"`
}

// Remote is a hosted (non-package) server endpoint.
type Remote struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// EnvVar is the registry-side environment variable descriptor, carrying
// the IsSecret flag mcpconfig.DetectAuthKind consumes.
type EnvVar struct {
	Name       string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSecret   bool   `json:"isSecret"`
	IsRequired bool   `json:"isRequired"`
}

// PackageArg is the registry-side package-argument descriptor.
type PackageArg struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsRequired  bool   `json:"isRequired"`
	Default     string `json:"default,omitempty"`
}

// searchResponse is the official registry's top-level search/list payload.
type searchResponse struct {
	Servers []Entry `json:"servers"`
}

// Source identifies which backend a SearchResult came from.
type Source string

const (
	SourceOfficial Source = "official"
	SourceMirror   Source = "mirror"
)

// SearchResult is the outcome of a registry search. Official-registry
// results are deduplicated by name; mirror results are returned as the
// mirror sent them.
type SearchResult struct {
	Entries []Entry
	Source  Source
}
