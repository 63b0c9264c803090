// Package mcplifecycle builds launch artifacts for MCP servers and tracks
// their running state: start/stop/restart, idle eviction, and bounded
// restart attempts.
package mcplifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/distribution/reference"
	"github.com/google/uuid"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/secretstore"
)

// State is a lifecycle state per server, per spec.md §4.3's state machine.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateError      State = "error"
	StateDisabled   State = "disabled"
)

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultMaxRestarts   = 3
)

// ActiveServer tracks one server's runtime state.
type ActiveServer struct {
	Config       mcpconfig.ServerConfig
	State        State
	StartedAt    time.Time
	LastUsed     time.Time
	RestartCount int
	ErrorMessage string
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithIdleTimeout overrides the default 30 minute idle-reap window.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithMaxRestarts overrides the default bounded-restart ceiling of 3.
func WithMaxRestarts(n int) Option {
	return func(m *Manager) { m.maxRestarts = n }
}

// Manager owns the set of currently active MCP servers.
type Manager struct {
	mu          sync.Mutex
	secrets     *secretstore.Store
	active      map[uuid.UUID]*ActiveServer
	idleTimeout time.Duration
	maxRestarts int
}

// New returns a Manager backed by secrets for credential resolution.
func New(secrets *secretstore.Store, opts ...Option) *Manager {
	m := &Manager{
		secrets:     secrets,
		active:      make(map[uuid.UUID]*ActiveServer),
		idleTimeout: defaultIdleTimeout,
		maxRestarts: defaultMaxRestarts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BuildCommand constructs the launch command and arguments for cfg by
// package kind; http-transport servers spawn no process.
func BuildCommand(cfg mcpconfig.ServerConfig) (string, []string, error) {
	switch cfg.Package.Kind {
	case mcpconfig.PackageNPM:
		runtime := cfg.Package.RuntimeHint
		if runtime == "" {
			runtime = "npx"
		}
		args := append([]string{"-y", cfg.Package.Identifier}, expandPackageArgs(cfg)...)
		return runtime, args, nil
	case mcpconfig.PackageDocker:
		if _, err := reference.ParseNormalizedNamed(cfg.Package.Identifier); err != nil {
			return "", nil, errkind.Wrap(err, errkind.Protocol, "invalid docker image reference %q", cfg.Package.Identifier)
		}
		args := append([]string{"run", "-i", "--rm", cfg.Package.Identifier}, expandPackageArgs(cfg)...)
		return "docker", args, nil
	case mcpconfig.PackageHTTP:
		return "", nil, nil
	default:
		return "", nil, errkind.New(errkind.Internal, "unknown package kind %q", cfg.Package.Kind)
	}
}

// expandPackageArgs resolves the package-argument schema against the
// server's opaque config object: each value is looked up by name, falls
// back to the schema default, and is comma-split with empty entries
// dropped. Named args emit "--name value" pairs; positional args emit
// bare values, both in schema order.
func expandPackageArgs(cfg mcpconfig.ServerConfig) []string {
	var out []string
	for _, arg := range cfg.PackageArgs {
		raw := arg.Default
		if cfg.Config != nil {
			if v, ok := cfg.Config[arg.Name]; ok {
				if s, ok := v.(string); ok {
					raw = s
				}
			}
		}
		if raw == "" {
			continue
		}
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if arg.Kind == mcpconfig.ArgNamed {
				out = append(out, "--"+arg.Name, part)
			} else {
				out = append(out, part)
			}
		}
	}
	return out
}

// BuildEnv constructs the launch environment for cfg by auth kind, per
// spec.md §4.3.
func (m *Manager) BuildEnv(ctx context.Context, cfg mcpconfig.ServerConfig) (map[string]string, error) {
	env := make(map[string]string)

	switch cfg.Auth {
	case mcpconfig.AuthNone:
		return env, nil

	case mcpconfig.AuthAPIKey:
		for _, v := range cfg.EnvVars {
			var key []byte
			var err error
			if len(cfg.EnvVars) == 1 {
				key, err = m.secrets.GetDefault(ctx, cfg.ID)
			} else {
				key, err = m.secrets.Get(ctx, cfg.ID, v.Name)
			}
			if err != nil {
				return nil, err
			}
			env[v.Name] = string(key)
		}
		return env, nil

	case mcpconfig.AuthKeyfile:
		if cfg.KeyfilePath == "" {
			return env, nil
		}
		key, err := secretstore.ReadKeyfile(cfg.KeyfilePath)
		if err != nil {
			return nil, err
		}
		varName := "API_KEY"
		if len(cfg.EnvVars) > 0 {
			varName = cfg.EnvVars[0].Name
		}
		env[varName] = string(key)
		return env, nil

	case mcpconfig.AuthOAuth:
		for _, v := range cfg.EnvVars {
			key, err := m.secrets.Get(ctx, cfg.ID, v.Name)
			if err != nil {
				continue
			}
			env[v.Name] = string(key)
		}
		return env, nil

	default:
		return nil, errkind.New(errkind.Internal, "unknown auth kind %q", cfg.Auth)
	}
}

// BuildHeaders constructs authorization headers for http-transport
// servers: an in-config oauth token wins over a readable keyfile.
func (m *Manager) BuildHeaders(cfg mcpconfig.ServerConfig) (map[string]string, error) {
	headers := make(map[string]string)
	if cfg.OAuthToken != "" {
		headers["Authorization"] = "Bearer " + cfg.OAuthToken
		return headers, nil
	}
	if cfg.KeyfilePath != "" {
		key, err := secretstore.ReadKeyfile(cfg.KeyfilePath)
		if err == nil {
			headers["Authorization"] = "Bearer " + string(key)
		}
	}
	return headers, nil
}

// Start transitions cfg's server to Running. Disabled configs fail;
// already-running servers succeed idempotently; http transports are
// registered Running without spawning a process.
func (m *Manager) Start(ctx context.Context, cfg mcpconfig.ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !cfg.Enabled {
		return errkind.New(errkind.Protocol, "server %s is disabled", cfg.Name)
	}
	if existing, ok := m.active[cfg.ID]; ok && existing.State == StateRunning {
		return nil
	}

	now := m.now()
	server := &ActiveServer{Config: cfg, State: StateStarting, StartedAt: now, LastUsed: now}
	m.active[cfg.ID] = server

	if cfg.Transport != mcpconfig.TransportHTTP {
		if _, _, err := BuildCommand(cfg); err != nil {
			server.State = StateError
			server.ErrorMessage = err.Error()
			return err
		}
		if _, err := m.BuildEnv(ctx, cfg); err != nil {
			server.State = StateError
			server.ErrorMessage = err.Error()
			return err
		}
	}

	server.State = StateRunning
	return nil
}

// Stop removes the ActiveServer entry for id; absence is a no-op.
func (m *Manager) Stop(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
	return nil
}

// Restart stops then starts cfg's server, incrementing its restart
// counter and failing once the counter would exceed the configured
// maximum.
func (m *Manager) Restart(ctx context.Context, cfg mcpconfig.ServerConfig) error {
	m.mu.Lock()
	count := 0
	if existing, ok := m.active[cfg.ID]; ok {
		count = existing.RestartCount
	}
	if count >= m.maxRestarts {
		m.mu.Unlock()
		return errkind.New(errkind.Internal, "restart limit exceeded for server %s", cfg.Name)
	}
	delete(m.active, cfg.ID)
	m.mu.Unlock()

	if err := m.Start(ctx, cfg); err != nil {
		return err
	}

	m.mu.Lock()
	if server, ok := m.active[cfg.ID]; ok {
		server.RestartCount = count + 1
		server.State = StateRunning
	}
	m.mu.Unlock()
	return nil
}

// Touch updates the last-used timestamp for id.
func (m *Manager) Touch(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if server, ok := m.active[id]; ok {
		server.LastUsed = m.now()
	}
}

// IsActive reports whether id has an ActiveServer entry.
func (m *Manager) IsActive(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// ActiveCount returns the number of tracked ActiveServer entries.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// RestartCount returns the restart counter for id, or 0 when untracked.
func (m *Manager) RestartCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if server, ok := m.active[id]; ok {
		return server.RestartCount
	}
	return 0
}

// Get returns a copy of the ActiveServer entry for id, if any.
func (m *Manager) Get(id uuid.UUID) (ActiveServer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.active[id]
	if !ok {
		return ActiveServer{}, false
	}
	return *server, true
}

// CleanupIdle drops every ActiveServer whose last-used time exceeds the
// configured idle timeout, returning the dropped server IDs.
func (m *Manager) CleanupIdle() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var dropped []uuid.UUID
	for id, server := range m.active {
		if now.Sub(server.LastUsed) > m.idleTimeout {
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		delete(m.active, id)
	}
	return dropped
}

// HandleConfigChange stops cfg's server when the new config is disabled
// and the server is currently active; enabling never auto-starts.
func (m *Manager) HandleConfigChange(cfg mcpconfig.ServerConfig) error {
	if !cfg.Enabled && m.IsActive(cfg.ID) {
		return m.Stop(cfg.ID)
	}
	return nil
}

// DeleteServer stops cfg's server and deletes its stored credentials.
func (m *Manager) DeleteServer(ctx context.Context, cfg mcpconfig.ServerConfig) error {
	if err := m.Stop(cfg.ID); err != nil {
		return err
	}
	return m.secrets.DeleteAll(ctx, cfg.ID)
}

// ShutdownAll clears every tracked ActiveServer.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[uuid.UUID]*ActiveServer)
}

func (m *Manager) now() time.Time { return time.Now() }

// StartReaper runs CleanupIdle on interval until ctx is cancelled,
// returning a stop func the caller should invoke on shutdown.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupIdle()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
