package mcptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/mcpconfig"
	"github.com/lucidloop/deskagent/internal/mcplifecycle"
	"github.com/lucidloop/deskagent/internal/mcpservice"
)

// HTTP speaks the same JSON-RPC 2.0 envelope as Stdio but over a single
// POST per call, for servers configured with TransportHTTP.
type HTTP struct {
	lifecycle *mcplifecycle.Manager
	client    *http.Client
	nextID    int64
}

// NewHTTP returns an HTTP transport using lifecycle for auth headers.
func NewHTTP(lifecycle *mcplifecycle.Manager) *HTTP {
	return &HTTP{lifecycle: lifecycle, client: &http.Client{Timeout: 30 * time.Second}}
}

var _ mcpservice.Transport = (*HTTP)(nil)

// ListTools posts a tools/list request to cfg's URL.
func (t *HTTP) ListTools(ctx context.Context, cfg mcpconfig.ServerConfig) ([]mcpservice.Tool, error) {
	raw, err := t.post(ctx, cfg, "tools/list", nil)
	if err != nil {
		return nil, err
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

// CallTool posts a tools/call request to cfg's URL.
func (t *HTTP) CallTool(ctx context.Context, cfg mcpconfig.ServerConfig, toolName string, args map[string]interface{}) (interface{}, error) {
	raw, err := t.post(ctx, cfg, "tools/call", toolCallParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "decode tools/call result from %s", cfg.Name)
	}
	return result, nil
}

func (t *HTTP) post(ctx context.Context, cfg mcpconfig.ServerConfig, method string, params interface{}) (json.RawMessage, error) {
	url, _ := cfg.Config["url"].(string)
	if url == "" {
		return nil, errkind.New(errkind.Internal, "server %s has no http url configured", cfg.Name)
	}

	id := atomic.AddInt64(&t.nextID, 1)
	body, err := json.Marshal(newRequest(id, method, params))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	headers, err := t.lifecycle.BuildHeaders(cfg)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "%s request to %s", method, cfg.Name)
	}
	defer resp.Body.Close()

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "decode %s response from %s", method, cfg.Name)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if resp.StatusCode >= 400 {
		return nil, errkind.New(errkind.Network, "server %s returned status %d", cfg.Name, resp.StatusCode)
	}
	return rpcResp.Result, nil
}
