// Package llmprovider implements llm.Provider for the OpenAI-compatible
// chat-completions wire format, the default dispatch target of
// llm.Resolve. It is grounded on the teacher's own hand-rolled SSE
// scanning rather than the openai-go SDK's streaming helper: the teacher
// reads chat-completions streams the same way despite carrying the SDK
// as a dependency, so this matches its idiom rather than avoiding the
// SDK gratuitously.
package llmprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAI is an llm.Provider over the chat-completions endpoint, used
// both for native OpenAI access and for any provider that advertises
// openai-compatible client packaging with a custom BaseURL.
type OpenAI struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewOpenAI returns an OpenAI provider. An empty baseURL defaults to
// the native OpenAI API.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAI{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

var _ llm.Provider = (*OpenAI)(nil)

type wireMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []wireToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction2 `json:"function"`
}

type wireToolFunction2 struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireChunk struct {
	Choices []wireChoice `json:"choices"`
}

type wireChoice struct {
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
	Index        int       `json:"index"`
}

type wireDelta struct {
	Content   *string              `json:"content"`
	ToolCalls []wireDeltaToolCall  `json:"tool_calls"`
}

type wireDeltaToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id"`
	Function wireToolFunction `json:"function"`
}

func toWireRequest(req llm.GenerateRequest) wireRequest {
	out := wireRequest{
		Model:       req.Model,
		Stream:      true,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID: tc.ID, Type: "function",
				Function: wireToolFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		out.Messages = append(out.Messages, wm)
		for _, tr := range m.ToolResults {
			result, _ := json.Marshal(tr.Result)
			out.Messages = append(out.Messages, wireMessage{
				Role: "tool", Content: string(result), ToolCallID: tr.ToolCallID,
			})
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction2{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

// Request performs a non-streaming call by draining RequestStream, for
// callers that don't need incremental delivery.
func (c *OpenAI) Request(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	events, err := c.RequestStream(ctx, req)
	if err != nil {
		return llm.GenerateResponse{}, err
	}
	var out llm.GenerateResponse
	var text strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return llm.GenerateResponse{}, ev.Err
		}
		switch {
		case ev.Kind == llm.EventPartDelta && ev.Part == llm.PartText:
			text.WriteString(ev.Text)
		case ev.Kind == llm.EventPartEnd && ev.Part == llm.PartToolCall:
			out.ToolCalls = append(out.ToolCalls, ev.ToolCall)
		}
	}
	out.Content = text.String()
	return out, nil
}

// RequestStream posts req to the chat-completions endpoint with
// stream=true and translates the server-sent-events delta stream into
// llm.StreamEvent, indexed by each choice's streaming position.
func (c *OpenAI) RequestStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	if c.APIKey == "" {
		return nil, errkind.New(errkind.Auth, "openai: API key is required")
	}
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "marshal chat completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "build chat completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "chat completion request")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return nil, errkind.New(errkind.Network, "openai: status %d: %s", resp.StatusCode, buf.String())
	}

	events := make(chan llm.StreamEvent, 8)
	go c.consumeSSE(resp.Body, events)
	return events, nil
}

// toolCallState tracks one tool call's accumulated arguments across
// delta chunks, keyed by its stream index.
type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

func (c *OpenAI) consumeSSE(body io.ReadCloser, events chan<- llm.StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	textStarted := false
	toolCalls := make(map[int]*toolCallState)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			events <- llm.StreamEvent{Err: errkind.Wrap(err, errkind.Protocol, "decode stream chunk")}
			return
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != nil && *choice.Delta.Content != "" {
				if !textStarted {
					events <- llm.StreamEvent{Kind: llm.EventPartStart, Index: 0, Part: llm.PartText}
					textStarted = true
				}
				events <- llm.StreamEvent{Kind: llm.EventPartDelta, Index: 0, Part: llm.PartText, Text: *choice.Delta.Content}
			}
			for _, dtc := range choice.Delta.ToolCalls {
				state, ok := toolCalls[dtc.Index]
				if !ok {
					state = &toolCallState{id: dtc.ID, name: dtc.Function.Name}
					toolCalls[dtc.Index] = state
					events <- llm.StreamEvent{Kind: llm.EventPartStart, Index: dtc.Index + 1, Part: llm.PartToolCall, ToolCall: llm.ToolCall{ID: state.id, Name: state.name}}
				}
				if dtc.Function.Arguments != "" {
					state.args.WriteString(dtc.Function.Arguments)
				}
			}
			if choice.FinishReason != nil {
				if textStarted {
					events <- llm.StreamEvent{Kind: llm.EventPartEnd, Index: 0, Part: llm.PartText}
				}
				for idx, state := range toolCalls {
					var args map[string]interface{}
					if err := json.Unmarshal([]byte(state.args.String()), &args); err != nil {
						args = map[string]interface{}{}
					}
					events <- llm.StreamEvent{
						Kind: llm.EventPartEnd, Index: idx + 1, Part: llm.PartToolCall,
						ToolCall: llm.ToolCall{ID: state.id, Name: state.name, Args: args},
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		events <- llm.StreamEvent{Err: errkind.Wrap(err, errkind.Network, "read stream")}
	}
}
