// Package mcptransport implements mcpservice.Transport over the two wire
// forms spec.md §4.5/§6 names: a stdio child process speaking line-delimited
// JSON-RPC 2.0 on its standard streams, and an HTTP server speaking the same
// envelope over POST. Command and environment construction is delegated to
// mcplifecycle, which already owns that per spec.md §4.3.
package mcptransport

import "encoding/json"

const jsonrpcVersion = "2.0"

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  interface{}     `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return e.Message }

type toolsListResult struct {
	Tools []toolSchema `json:"tools"`
}

type toolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func newRequest(id int64, method string, params interface{}) request {
	return request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}
