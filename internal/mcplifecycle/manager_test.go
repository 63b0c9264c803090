package mcplifecycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/secretstore"
)

func testConfig() mcpconfig.ServerConfig {
	return mcpconfig.ServerConfig{
		ID:        uuid.New(),
		Name:      "Test MCP",
		Enabled:   true,
		Source:    mcpconfig.SourceManual,
		Transport: mcpconfig.TransportStdio,
		Auth:      mcpconfig.AuthAPIKey,
		Package: mcpconfig.Package{
			Kind:        mcpconfig.PackageNPM,
			Identifier:  "@test/mcp",
			RuntimeHint: "npx",
		},
		EnvVars: []mcpconfig.EnvVar{{Name: "TEST_API_KEY", Required: true}},
	}
}

func TestNewManagerDefaults(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, defaultIdleTimeout, m.idleTimeout)
	assert.Equal(t, defaultMaxRestarts, m.maxRestarts)
}

func TestWithIdleTimeoutOption(t *testing.T) {
	m := New(secretstore.New(t.TempDir()), WithIdleTimeout(time.Minute))
	assert.Equal(t, time.Minute, m.idleTimeout)
}

func TestWithMaxRestartsOption(t *testing.T) {
	m := New(secretstore.New(t.TempDir()), WithMaxRestarts(5))
	assert.Equal(t, 5, m.maxRestarts)
}

func TestBuildCommandNPM(t *testing.T) {
	cfg := testConfig()
	cmd, args, err := BuildCommand(cfg)
	require.NoError(t, err)
	assert.Equal(t, "npx", cmd)
	assert.Equal(t, []string{"-y", "@test/mcp"}, args)
}

func TestBuildCommandNPMDefaultRuntime(t *testing.T) {
	cfg := testConfig()
	cfg.Package.RuntimeHint = ""
	cmd, _, err := BuildCommand(cfg)
	require.NoError(t, err)
	assert.Equal(t, "npx", cmd)
}

func TestBuildCommandDocker(t *testing.T) {
	cfg := testConfig()
	cfg.Package.Kind = mcpconfig.PackageDocker
	cfg.Package.Identifier = "test/mcp:latest"
	cmd, args, err := BuildCommand(cfg)
	require.NoError(t, err)
	assert.Equal(t, "docker", cmd)
	assert.Equal(t, []string{"run", "-i", "--rm", "test/mcp:latest"}, args)
}

func TestBuildCommandDockerInvalidReference(t *testing.T) {
	cfg := testConfig()
	cfg.Package.Kind = mcpconfig.PackageDocker
	cfg.Package.Identifier = "Not A Valid Ref!!"
	_, _, err := BuildCommand(cfg)
	require.Error(t, err)
	assert.Equal(t, errkind.Protocol, errkind.Of(err))
}

func TestBuildCommandHTTP(t *testing.T) {
	cfg := testConfig()
	cfg.Package.Kind = mcpconfig.PackageHTTP
	cmd, args, err := BuildCommand(cfg)
	require.NoError(t, err)
	assert.Equal(t, "", cmd)
	assert.Empty(t, args)
}

func TestBuildCommandWithPackageArgs(t *testing.T) {
	cfg := testConfig()
	cfg.PackageArgs = []mcpconfig.PackageArg{
		{Kind: mcpconfig.ArgPositional, Name: "root", Default: "/tmp"},
		{Kind: mcpconfig.ArgNamed, Name: "scope", Default: "a,b,,c"},
	}
	_, args, err := BuildCommand(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "@test/mcp", "/tmp", "--scope", "a", "--scope", "b", "--scope", "c"}, args)
}

func TestBuildCommandArgsConfigOverridesDefault(t *testing.T) {
	cfg := testConfig()
	cfg.PackageArgs = []mcpconfig.PackageArg{
		{Kind: mcpconfig.ArgPositional, Name: "root", Default: "/tmp"},
	}
	cfg.Config = map[string]interface{}{"root": "/workspace"}
	_, args, err := BuildCommand(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "@test/mcp", "/workspace"}, args)
}

func TestBuildEnvNoAuth(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	env, err := m.BuildEnv(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestBuildEnvAPIKeySingle(t *testing.T) {
	dir := t.TempDir()
	secrets := secretstore.New(dir)
	cfg := testConfig()
	require.NoError(t, secrets.Put(context.Background(), cfg.ID, "", []byte("test-key-123")))

	m := New(secrets)
	env, err := m.BuildEnv(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "test-key-123", env["TEST_API_KEY"])
}

func TestBuildEnvAPIKeyMultiple(t *testing.T) {
	dir := t.TempDir()
	secrets := secretstore.New(dir)
	cfg := testConfig()
	cfg.EnvVars = []mcpconfig.EnvVar{
		{Name: "CLIENT_ID", Required: true},
		{Name: "CLIENT_SECRET", Required: true},
	}
	require.NoError(t, secrets.Put(context.Background(), cfg.ID, "CLIENT_ID", []byte("id-123")))
	require.NoError(t, secrets.Put(context.Background(), cfg.ID, "CLIENT_SECRET", []byte("secret-456")))

	m := New(secrets)
	env, err := m.BuildEnv(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "id-123", env["CLIENT_ID"])
	assert.Equal(t, "secret-456", env["CLIENT_SECRET"])
}

func TestBuildEnvAPIKeyMissingIsNotFound(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	_, err := m.BuildEnv(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, errkind.NotFound, errkind.Of(err))
}

func TestBuildEnvKeyfile(t *testing.T) {
	dir := t.TempDir()
	keyfile := dir + "/test.key"
	require.NoError(t, os.WriteFile(keyfile, []byte("keyfile-content"), 0o600))

	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthKeyfile
	cfg.KeyfilePath = keyfile

	m := New(secretstore.New(dir))
	env, err := m.BuildEnv(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "keyfile-content", env["TEST_API_KEY"])
}

func TestBuildEnvKeyfileDefaultVarName(t *testing.T) {
	dir := t.TempDir()
	keyfile := dir + "/test.key"
	require.NoError(t, os.WriteFile(keyfile, []byte("keyfile-content"), 0o600))

	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthKeyfile
	cfg.KeyfilePath = keyfile
	cfg.EnvVars = nil

	m := New(secretstore.New(dir))
	env, err := m.BuildEnv(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "keyfile-content", env["API_KEY"])
}

func TestBuildEnvOAuthTolerantOfMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthOAuth
	m := New(secretstore.New(t.TempDir()))
	env, err := m.BuildEnv(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestBuildHeadersPrefersOAuthToken(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.OAuthToken = "abc123"
	headers, err := m.BuildHeaders(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", headers["Authorization"])
}

func TestStartStopAndActiveCount(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone

	assert.False(t, m.IsActive(cfg.ID))
	require.NoError(t, m.Start(context.Background(), cfg))
	assert.True(t, m.IsActive(cfg.ID))
	assert.Equal(t, 1, m.ActiveCount())

	require.NoError(t, m.Stop(cfg.ID))
	assert.False(t, m.IsActive(cfg.ID))
}

func TestStartDisabledFails(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Enabled = false
	err := m.Start(context.Background(), cfg)
	require.Error(t, err)
}

func TestStartHTTPRegistersWithoutCommand(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Transport = mcpconfig.TransportHTTP
	cfg.Package.Kind = mcpconfig.PackageHTTP
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, m.Start(context.Background(), cfg))
	server, ok := m.Get(cfg.ID)
	require.True(t, ok)
	assert.Equal(t, StateRunning, server.State)
}

func TestStartIdempotentWhenAlreadyRunning(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, m.Start(context.Background(), cfg))
	require.NoError(t, m.Start(context.Background(), cfg))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestTouchUpdatesLastUsed(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, m.Start(context.Background(), cfg))

	first, _ := m.Get(cfg.ID)
	time.Sleep(10 * time.Millisecond)
	m.Touch(cfg.ID)
	second, _ := m.Get(cfg.ID)

	assert.True(t, second.LastUsed.After(first.LastUsed))
}

func TestRestartCountAndLimit(t *testing.T) {
	m := New(secretstore.New(t.TempDir()), WithMaxRestarts(2))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone

	require.NoError(t, m.Start(context.Background(), cfg))
	require.NoError(t, m.Restart(context.Background(), cfg))
	assert.Equal(t, 1, m.RestartCount(cfg.ID))

	require.NoError(t, m.Restart(context.Background(), cfg))
	assert.Equal(t, 2, m.RestartCount(cfg.ID))

	err := m.Restart(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, errkind.Internal, errkind.Of(err))
}

func TestCleanupIdleDropsExpired(t *testing.T) {
	m := New(secretstore.New(t.TempDir()), WithIdleTimeout(time.Millisecond))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, m.Start(context.Background(), cfg))

	time.Sleep(5 * time.Millisecond)
	dropped := m.CleanupIdle()
	assert.Equal(t, []uuid.UUID{cfg.ID}, dropped)
	assert.False(t, m.IsActive(cfg.ID))
}

func TestHandleConfigChangeStopsDisabled(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, m.Start(context.Background(), cfg))

	cfg.Enabled = false
	require.NoError(t, m.HandleConfigChange(cfg))
	assert.False(t, m.IsActive(cfg.ID))
}

func TestHandleConfigChangeEnablingDoesNotAutoStart(t *testing.T) {
	m := New(secretstore.New(t.TempDir()))
	cfg := testConfig()
	cfg.Enabled = true
	require.NoError(t, m.HandleConfigChange(cfg))
	assert.False(t, m.IsActive(cfg.ID))
}

func TestDeleteServerRemovesSecrets(t *testing.T) {
	dir := t.TempDir()
	secrets := secretstore.New(dir)
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, secrets.Put(context.Background(), cfg.ID, "", []byte("leftover")))

	m := New(secrets)
	require.NoError(t, m.Start(context.Background(), cfg))
	require.NoError(t, m.DeleteServer(context.Background(), cfg))

	assert.False(t, m.IsActive(cfg.ID))
	_, err := secrets.GetDefault(context.Background(), cfg.ID)
	assert.Equal(t, errkind.NotFound, errkind.Of(err))
}

func TestStartReaperStopsCleanly(t *testing.T) {
	m := New(secretstore.New(t.TempDir()), WithIdleTimeout(time.Millisecond))
	cfg := testConfig()
	cfg.Auth = mcpconfig.AuthNone
	require.NoError(t, m.Start(context.Background(), cfg))

	stop := m.StartReaper(context.Background(), time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	stop()

	assert.False(t, m.IsActive(cfg.ID))
}
