// Package mcpservice composes the lifecycle manager, secret store, and
// OAuth manager into the process-wide MCP singleton: it owns the global
// tool-name to server-id index and exposes the call surface the chat core
// consumes.
package mcpservice

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/mcplifecycle"
	"github.com/lucidloop/deskagent/internal/mcpoauth"
	"github.com/lucidloop/deskagent/internal/secretstore"
)

// Tool is one discoverable MCP tool, as returned by a server's handshake.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ConfigStore persists the set of registered servers; conversation and
// profile storage live behind equivalent interfaces owned by their own
// packages, per spec.md's external-collaborator boundary.
type ConfigStore interface {
	List(ctx context.Context) ([]mcpconfig.ServerConfig, error)
}

// Transport discovers tools from a running server and invokes one of
// them. Concrete stdio/http transports live outside this package; tests
// use a fake.
type Transport interface {
	ListTools(ctx context.Context, cfg mcpconfig.ServerConfig) ([]Tool, error)
	CallTool(ctx context.Context, cfg mcpconfig.ServerConfig, toolName string, args map[string]interface{}) (interface{}, error)
}

// Service is the process-wide MCP singleton.
type Service struct {
	mu        sync.Mutex
	configs   ConfigStore
	lifecycle *mcplifecycle.Manager
	oauth     *mcpoauth.Manager
	transport Transport

	serversByID map[uuid.UUID]mcpconfig.ServerConfig
	toolIndex   map[string]uuid.UUID
	tools       []Tool
}

// New returns a Service wired to its collaborators.
func New(configs ConfigStore, secrets *secretstore.Store, transport Transport, opts ...mcplifecycle.Option) *Service {
	return &Service{
		configs:     configs,
		lifecycle:   mcplifecycle.New(secrets, opts...),
		oauth:       mcpoauth.New(),
		transport:   transport,
		serversByID: make(map[uuid.UUID]mcpconfig.ServerConfig),
		toolIndex:   make(map[string]uuid.UUID),
	}
}

// Initialize loads persisted configs, starts each enabled one, and
// refreshes the tool index from currently-running servers.
func (s *Service) Initialize(ctx context.Context) error {
	configs, err := s.configs.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.serversByID = make(map[uuid.UUID]mcpconfig.ServerConfig)
	for _, cfg := range configs {
		s.serversByID[cfg.ID] = cfg
	}
	s.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := s.lifecycle.Start(ctx, cfg); err != nil {
			log.Warn().Err(err).Str("server", cfg.Name).Msg("failed to start MCP server during initialize")
		}
	}

	return s.refreshToolIndex(ctx)
}

// Reload re-runs Initialize.
func (s *Service) Reload(ctx context.Context) error {
	return s.Initialize(ctx)
}

// refreshToolIndex rebuilds the tool-name to server-id index from every
// running server, keeping the first registration on a name collision.
func (s *Service) refreshToolIndex(ctx context.Context) error {
	s.mu.Lock()
	running := make([]mcpconfig.ServerConfig, 0, len(s.serversByID))
	for id, cfg := range s.serversByID {
		if s.lifecycle.IsActive(id) {
			running = append(running, cfg)
		}
	}
	s.mu.Unlock()

	sort.Slice(running, func(i, j int) bool { return running[i].Name < running[j].Name })

	index := make(map[string]uuid.UUID)
	var tools []Tool
	for _, cfg := range running {
		discovered, err := s.transport.ListTools(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Str("server", cfg.Name).Msg("failed to list tools")
			continue
		}
		for _, tool := range discovered {
			if _, exists := index[tool.Name]; exists {
				log.Warn().Str("tool", tool.Name).Str("server", cfg.Name).Msg("duplicate tool name, first registration wins")
				continue
			}
			index[tool.Name] = cfg.ID
			tools = append(tools, tool)
		}
	}

	s.mu.Lock()
	s.toolIndex = index
	s.tools = tools
	s.mu.Unlock()
	return nil
}

// GetTools returns a snapshot of all discovered tools.
func (s *Service) GetTools() []Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// GetLLMTools is an alias of GetTools naming the caller-facing intent:
// the snapshot handed to a provider request's tool set.
func (s *Service) GetLLMTools() []Tool {
	return s.GetTools()
}

// CallTool resolves name to its owning server, touches that server's
// idle timer, forwards the call, and rebuilds the tool index afterward
// since a server's tool set may vary across calls.
func (s *Service) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	s.mu.Lock()
	serverID, ok := s.toolIndex[name]
	var cfg mcpconfig.ServerConfig
	if ok {
		cfg, ok = s.serversByID[serverID]
	}
	s.mu.Unlock()

	if !ok {
		return nil, errkind.New(errkind.NotFound, "tool %q not found", name)
	}

	s.lifecycle.Touch(serverID)
	result, err := s.transport.CallTool(ctx, cfg, name, args)

	if refreshErr := s.refreshToolIndex(ctx); refreshErr != nil {
		log.Warn().Err(refreshErr).Msg("failed to refresh tool index after call")
	}

	return result, err
}

// Lifecycle exposes the underlying lifecycle manager for callers that
// need direct start/stop/restart access (config management UI surfaces).
func (s *Service) Lifecycle() *mcplifecycle.Manager { return s.lifecycle }

// OAuth exposes the underlying OAuth manager.
func (s *Service) OAuth() *mcpoauth.Manager { return s.oauth }
