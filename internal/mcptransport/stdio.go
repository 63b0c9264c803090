package mcptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/mcplifecycle"
	"github.com/lucidloop/deskagent/internal/mcpservice"
)

// stdioProc is one live child process and its framing state. Requests
// are serialized: the chat core dispatches tool calls to a given server
// one at a time, so a per-process mutex is enough and avoids having to
// route responses back to concurrent callers by id.
type stdioProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	nextID int64
}

// Stdio spawns and reuses one child process per MCP server, speaking
// newline-delimited JSON-RPC 2.0 over its stdin/stdout, per spec.md
// §4.5's stdio transport.
type Stdio struct {
	lifecycle *mcplifecycle.Manager

	mu    sync.Mutex
	procs map[uuid.UUID]*stdioProc
}

// NewStdio returns a Stdio transport that builds launch commands and
// environments through lifecycle.
func NewStdio(lifecycle *mcplifecycle.Manager) *Stdio {
	return &Stdio{lifecycle: lifecycle, procs: make(map[uuid.UUID]*stdioProc)}
}

var _ mcpservice.Transport = (*Stdio)(nil)

// ListTools starts cfg's process if needed and requests its tool list.
func (t *Stdio) ListTools(ctx context.Context, cfg mcpconfig.ServerConfig) ([]mcpservice.Tool, error) {
	proc, err := t.ensure(ctx, cfg)
	if err != nil {
		return nil, err
	}
	raw, err := proc.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "list tools on %s", cfg.Name)
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "decode tools/list result from %s", cfg.Name)
	}
	tools := make([]mcpservice.Tool, 0, len(result.Tools))
	for _, ts := range result.Tools {
		tools = append(tools, mcpservice.Tool{Name: ts.Name, Description: ts.Description, Parameters: ts.InputSchema})
	}
	return tools, nil
}

// CallTool invokes toolName on cfg's process with args.
func (t *Stdio) CallTool(ctx context.Context, cfg mcpconfig.ServerConfig, toolName string, args map[string]interface{}) (interface{}, error) {
	proc, err := t.ensure(ctx, cfg)
	if err != nil {
		return nil, err
	}
	raw, err := proc.call(ctx, "tools/call", toolCallParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "call tool %s on %s", toolName, cfg.Name)
	}
	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "decode tools/call result from %s", cfg.Name)
	}
	return result, nil
}

// Shutdown kills every process this transport has spawned. Called once
// at process exit.
func (t *Stdio) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, proc := range t.procs {
		_ = proc.stdin.Close()
		_ = proc.cmd.Process.Kill()
		delete(t.procs, id)
	}
}

// StopServer kills and forgets id's process, if any, so the next call
// respawns it. Exposed to callers through Router.StopServer.
func (t *Stdio) StopServer(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	proc, ok := t.procs[id]
	if !ok {
		return
	}
	_ = proc.stdin.Close()
	_ = proc.cmd.Process.Kill()
	delete(t.procs, id)
}

func (t *Stdio) ensure(ctx context.Context, cfg mcpconfig.ServerConfig) (*stdioProc, error) {
	t.mu.Lock()
	if proc, ok := t.procs[cfg.ID]; ok {
		t.mu.Unlock()
		return proc, nil
	}
	t.mu.Unlock()

	name, args, err := mcplifecycle.BuildCommand(cfg)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errkind.New(errkind.Internal, "server %s has no stdio command", cfg.Name)
	}
	env, err := t.lifecycle.BuildEnv(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stderr = stderrLogger{server: cfg.Name}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IO, "open stdin for %s", cfg.Name)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IO, "open stdout for %s", cfg.Name)
	}
	if err := cmd.Start(); err != nil {
		return nil, errkind.Wrap(err, errkind.IO, "start server %s", cfg.Name)
	}

	proc := &stdioProc{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}

	if _, err := proc.call(ctx, "initialize", nil); err != nil {
		_ = cmd.Process.Kill()
		return nil, errkind.Wrap(err, errkind.Network, "initialize server %s", cfg.Name)
	}

	t.mu.Lock()
	t.procs[cfg.ID] = proc
	t.mu.Unlock()
	return proc, nil
}

func (p *stdioProc) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := atomic.AddInt64(&p.nextID, 1)
	req := newRequest(id, method, params)

	line, err := json.Marshal(req)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "marshal %s request", method)
	}
	line = append(line, '\n')
	if _, err := p.stdin.Write(line); err != nil {
		return nil, errkind.Wrap(err, errkind.IO, "write %s request", method)
	}

	raw, err := p.stdout.ReadBytes('\n')
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IO, "read %s response", method)
	}
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "decode %s response", method)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// stderrLogger forwards a child process's stderr to the structured
// logger, one debug entry per chunk written (not split into lines),
// instead of the process's own stderr, so multiple servers don't
// interleave raw output.
type stderrLogger struct {
	server string
}

func (w stderrLogger) Write(p []byte) (int, error) {
	log.Debug().Str("server", w.server).Bytes("stderr", p).Msg("mcp server stderr")
	return len(p), nil
}
