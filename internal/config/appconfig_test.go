package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidloop/deskagent/internal/mcpconfig"
)

func TestLoadMissingConfigReturnsZeroValue(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))
	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cfg.ServerConfigs)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))

	cfg := AppConfig{
		ServerConfigs: []mcpconfig.ServerConfig{
			{Name: "weather", Enabled: true, Source: mcpconfig.SourceOfficial},
		},
		MirrorBaseURL: "https://mirror.example.com",
		MirrorAPIKey:  "secret-key",
	}
	require.NoError(t, store.Save(context.Background(), cfg))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.ServerConfigs, 1)
	assert.Equal(t, "weather", loaded.ServerConfigs[0].Name)
	assert.Equal(t, "https://mirror.example.com", loaded.MirrorBaseURL)
}

func TestListReturnsServerConfigs(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))
	cfg := AppConfig{ServerConfigs: []mcpconfig.ServerConfig{{Name: "a"}, {Name: "b"}}}
	require.NoError(t, store.Save(context.Background(), cfg))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
