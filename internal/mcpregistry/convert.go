package mcpregistry

import (
	"github.com/google/uuid"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
)

// EntryToConfig converts one registry Entry into a ServerConfig, preferring
// the entry's first package over its first remote when both are present.
func EntryToConfig(entry Entry) (mcpconfig.ServerConfig, error) {
	server := entry.Server

	if len(server.Packages) > 0 {
		return packageEntryToConfig(server, server.Packages[0])
	}
	if len(server.Remotes) > 0 {
		return remoteEntryToConfig(server, server.Remotes[0])
	}
	return mcpconfig.ServerConfig{}, errkind.New(errkind.Protocol, "server %q has neither packages nor remotes", server.Name)
}

func packageEntryToConfig(server Server, pkg Package) (mcpconfig.ServerConfig, error) {
	var kind mcpconfig.PackageKind
	switch pkg.RegistryType {
	case "npm":
		kind = mcpconfig.PackageNPM
	case "oci":
		kind = mcpconfig.PackageDocker
	default:
		return mcpconfig.ServerConfig{}, errkind.New(errkind.Protocol, "unsupported registry type %q", pkg.RegistryType)
	}

	var transport mcpconfig.Transport
	switch pkg.Transport.Type {
	case "stdio":
		transport = mcpconfig.TransportStdio
	case "http", "streamable-http":
		transport = mcpconfig.TransportHTTP
	default:
		return mcpconfig.ServerConfig{}, errkind.New(errkind.Protocol, "unsupported transport type %q", pkg.Transport.Type)
	}

	envVars := make([]mcpconfig.EnvVar, 0, len(pkg.EnvironmentVariables))
	registryVars := make([]mcpconfig.RegistryEnvVar, 0, len(pkg.EnvironmentVariables))
	for _, v := range pkg.EnvironmentVariables {
		envVars = append(envVars, mcpconfig.EnvVar{Name: v.Name, Required: v.IsRequired})
		registryVars = append(registryVars, mcpconfig.RegistryEnvVar{Name: v.Name, IsSecret: v.IsSecret, IsRequired: v.IsRequired})
	}
	authKind := mcpconfig.DetectAuthKind(registryVars)

	packageArgs := make([]mcpconfig.PackageArg, 0, len(pkg.PackageArguments))
	for _, a := range pkg.PackageArguments {
		argKind := mcpconfig.ArgPositional
		if a.Type == "named" {
			argKind = mcpconfig.ArgNamed
		}
		packageArgs = append(packageArgs, mcpconfig.PackageArg{
			Kind:     argKind,
			Name:     a.Name,
			Required: a.IsRequired,
			Default:  a.Default,
		})
	}

	var runtimeHint string
	switch kind {
	case mcpconfig.PackageNPM:
		runtimeHint = "npx"
	case mcpconfig.PackageDocker:
		runtimeHint = "docker"
	}

	return mcpconfig.ServerConfig{
		ID:      uuid.New(),
		Name:    server.Name,
		Enabled: true,
		Source:  mcpconfig.SourceOfficial,
		Package: mcpconfig.Package{
			Kind:        kind,
			Identifier:  pkg.Identifier,
			RuntimeHint: runtimeHint,
		},
		Transport:   transport,
		Auth:        authKind,
		EnvVars:     envVars,
		PackageArgs: packageArgs,
	}, nil
}

func remoteEntryToConfig(server Server, remote Remote) (mcpconfig.ServerConfig, error) {
	var transport mcpconfig.Transport
	var auth mcpconfig.AuthKind

	switch remote.Type {
	case "http", "streamable-http":
		transport, auth = mcpconfig.TransportHTTP, mcpconfig.AuthNone
	case "mirror-oauth":
		transport, auth = mcpconfig.TransportHTTP, mcpconfig.AuthOAuth
	default:
		return mcpconfig.ServerConfig{}, errkind.New(errkind.Protocol, "unsupported remote type %q", remote.Type)
	}

	return mcpconfig.ServerConfig{
		ID:      uuid.New(),
		Name:    server.Name,
		Enabled: true,
		Source:  mcpconfig.SourceManual,
		Package: mcpconfig.Package{
			Kind:       mcpconfig.PackageHTTP,
			Identifier: remote.URL,
		},
		Transport: transport,
		Auth:      auth,
	}, nil
}
