package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/viant/afs"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
)

// AppConfig is the on-disk shape of config.json: the registered MCP
// server configs plus the mirror registry's bearer credential, per
// spec.md §6.
type AppConfig struct {
	ServerConfigs    []mcpconfig.ServerConfig `json:"serverConfigs"`
	MirrorBaseURL    string                   `json:"mirrorBaseURL,omitempty"`
	MirrorAPIKey     string                   `json:"mirrorApiKey,omitempty"`
	ActiveProfileID  string                   `json:"activeProfileId,omitempty"`
}

// Store reads and writes AppConfig at a fixed path through afs, matching
// the secret store and model cache's storage abstraction.
type Store struct {
	path string
	fs   afs.Service
}

// NewStore returns a Store rooted at path.
func NewStore(path string) *Store {
	return &Store{path: path, fs: afs.New()}
}

// Load reads the config file, returning a zero-value AppConfig without
// error if it has never been written yet.
func (s *Store) Load(ctx context.Context) (AppConfig, error) {
	var cfg AppConfig
	raw, err := s.fs.DownloadWithURL(ctx, s.path)
	if err != nil {
		if isNotFound(err) {
			return cfg, nil
		}
		return cfg, errkind.Wrap(err, errkind.IO, "read config %s", s.path)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errkind.Wrap(err, errkind.Protocol, "parse config %s", s.path)
	}
	return cfg, nil
}

// Save writes cfg to the config file.
func (s *Store) Save(ctx context.Context, cfg AppConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errkind.Wrap(err, errkind.Internal, "marshal config")
	}
	if err := s.fs.Upload(ctx, s.path, 0o644, bytes.NewReader(raw)); err != nil {
		return errkind.Wrap(err, errkind.IO, "write config %s", s.path)
	}
	return nil
}

// List implements mcpservice.ConfigStore over the persisted AppConfig,
// so the MCP service can load server configs directly from config.json.
func (s *Store) List(ctx context.Context) ([]mcpconfig.ServerConfig, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.ServerConfigs, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(strings.ToLower(err.Error()), "no such file")
}
