package mcpservice

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/secretstore"
)

type fakeConfigStore struct {
	configs []mcpconfig.ServerConfig
}

func (f *fakeConfigStore) List(ctx context.Context) ([]mcpconfig.ServerConfig, error) {
	return f.configs, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	toolsBy map[uuid.UUID][]Tool
	calls   int
}

func (f *fakeTransport) ListTools(ctx context.Context, cfg mcpconfig.ServerConfig) ([]Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toolsBy[cfg.ID], nil
}

func (f *fakeTransport) CallTool(ctx context.Context, cfg mcpconfig.ServerConfig, toolName string, args map[string]interface{}) (interface{}, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return map[string]interface{}{"ok": true}, nil
}

func newEnabledConfig(name string) mcpconfig.ServerConfig {
	return mcpconfig.ServerConfig{
		ID:        uuid.New(),
		Name:      name,
		Enabled:   true,
		Transport: mcpconfig.TransportHTTP,
		Auth:      mcpconfig.AuthNone,
		Package:   mcpconfig.Package{Kind: mcpconfig.PackageHTTP, Identifier: "https://example.com"},
	}
}

func TestInitializeStartsEnabledServersAndIndexesTools(t *testing.T) {
	cfg := newEnabledConfig("fs")
	store := &fakeConfigStore{configs: []mcpconfig.ServerConfig{cfg}}
	transport := &fakeTransport{toolsBy: map[uuid.UUID][]Tool{
		cfg.ID: {{Name: "read_file", Description: "reads a file"}},
	}}

	svc := New(store, secretstore.New(t.TempDir()), transport)
	require.NoError(t, svc.Initialize(context.Background()))

	tools := svc.GetTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "read_file", tools[0].Name)
	assert.True(t, svc.Lifecycle().IsActive(cfg.ID))
}

func TestInitializeSkipsDisabledServers(t *testing.T) {
	cfg := newEnabledConfig("fs")
	cfg.Enabled = false
	store := &fakeConfigStore{configs: []mcpconfig.ServerConfig{cfg}}
	transport := &fakeTransport{toolsBy: map[uuid.UUID][]Tool{}}

	svc := New(store, secretstore.New(t.TempDir()), transport)
	require.NoError(t, svc.Initialize(context.Background()))

	assert.False(t, svc.Lifecycle().IsActive(cfg.ID))
	assert.Empty(t, svc.GetTools())
}

func TestFirstRegisteredToolWinsOnNameCollision(t *testing.T) {
	cfgA := newEnabledConfig("server-a")
	cfgB := newEnabledConfig("server-b")
	store := &fakeConfigStore{configs: []mcpconfig.ServerConfig{cfgA, cfgB}}
	transport := &fakeTransport{toolsBy: map[uuid.UUID][]Tool{
		cfgA.ID: {{Name: "shared_tool", Description: "from a"}},
		cfgB.ID: {{Name: "shared_tool", Description: "from b"}},
	}}

	svc := New(store, secretstore.New(t.TempDir()), transport)
	require.NoError(t, svc.Initialize(context.Background()))

	tools := svc.GetTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "from a", tools[0].Description)
}

func TestCallToolResolvesTouchesAndForwards(t *testing.T) {
	cfg := newEnabledConfig("fs")
	store := &fakeConfigStore{configs: []mcpconfig.ServerConfig{cfg}}
	transport := &fakeTransport{toolsBy: map[uuid.UUID][]Tool{
		cfg.ID: {{Name: "read_file"}},
	}}

	svc := New(store, secretstore.New(t.TempDir()), transport)
	require.NoError(t, svc.Initialize(context.Background()))

	result, err := svc.CallTool(context.Background(), "read_file", map[string]interface{}{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, result)
	assert.Equal(t, 1, transport.calls)
}

func TestCallToolUnknownNameIsNotFound(t *testing.T) {
	store := &fakeConfigStore{}
	transport := &fakeTransport{toolsBy: map[uuid.UUID][]Tool{}}
	svc := New(store, secretstore.New(t.TempDir()), transport)
	require.NoError(t, svc.Initialize(context.Background()))

	_, err := svc.CallTool(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestReloadRefreshesAfterConfigChange(t *testing.T) {
	cfg := newEnabledConfig("fs")
	store := &fakeConfigStore{configs: []mcpconfig.ServerConfig{cfg}}
	transport := &fakeTransport{toolsBy: map[uuid.UUID][]Tool{
		cfg.ID: {{Name: "read_file"}},
	}}

	svc := New(store, secretstore.New(t.TempDir()), transport)
	require.NoError(t, svc.Initialize(context.Background()))
	assert.Len(t, svc.GetTools(), 1)

	transport.toolsBy[cfg.ID] = append(transport.toolsBy[cfg.ID], Tool{Name: "write_file"})
	require.NoError(t, svc.Reload(context.Background()))
	assert.Len(t, svc.GetTools(), 2)
}
