package mcptransport

import (
	"context"

	"github.com/google/uuid"

	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/mcplifecycle"
	"github.com/lucidloop/deskagent/internal/mcpservice"
)

// Router dispatches to Stdio or HTTP by cfg.Transport, so mcpservice.Service
// can be wired against one mcpservice.Transport regardless of how any
// given server is launched.
type Router struct {
	stdio *Stdio
	http  *HTTP
}

// New returns a Router wired to lifecycle for both sub-transports.
func New(lifecycle *mcplifecycle.Manager) *Router {
	return &Router{stdio: NewStdio(lifecycle), http: NewHTTP(lifecycle)}
}

var _ mcpservice.Transport = (*Router)(nil)

func (r *Router) pick(cfg mcpconfig.ServerConfig) mcpservice.Transport {
	if cfg.Transport == mcpconfig.TransportHTTP {
		return r.http
	}
	return r.stdio
}

// ListTools dispatches to the sub-transport matching cfg.Transport.
func (r *Router) ListTools(ctx context.Context, cfg mcpconfig.ServerConfig) ([]mcpservice.Tool, error) {
	return r.pick(cfg).ListTools(ctx, cfg)
}

// CallTool dispatches to the sub-transport matching cfg.Transport.
func (r *Router) CallTool(ctx context.Context, cfg mcpconfig.ServerConfig, toolName string, args map[string]interface{}) (interface{}, error) {
	return r.pick(cfg).CallTool(ctx, cfg, toolName, args)
}

// Shutdown tears down any stdio child processes. Safe to call once at
// process exit.
func (r *Router) Shutdown() { r.stdio.Shutdown() }

// StopServer kills id's stdio process, if any.
func (r *Router) StopServer(id uuid.UUID) { r.stdio.StopServer(id) }
