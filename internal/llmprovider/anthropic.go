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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// Anthropic is an llm.Provider over the Messages API, the native
// dispatch target spec.md §6 names for provider id "anthropic".
type Anthropic struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewAnthropic returns an Anthropic provider.
func NewAnthropic(apiKey, baseURL string) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

var _ llm.Provider = (*Anthropic)(nil)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	ContentBlock struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Name  string `json:"name"`
	} `json:"content_block"`
}

func toAnthropicRequest(req llm.GenerateRequest) anthropicRequest {
	out := anthropicRequest{Model: req.Model, Stream: true, MaxTokens: req.Options.MaxTokens}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			out.System = m.Content
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out
}

// Request drains RequestStream for callers that want one final result.
func (c *Anthropic) Request(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
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
		if ev.Kind == llm.EventPartDelta && ev.Part == llm.PartText {
			text.WriteString(ev.Text)
		}
		if ev.Kind == llm.EventPartEnd && ev.Part == llm.PartToolCall {
			out.ToolCalls = append(out.ToolCalls, ev.ToolCall)
		}
	}
	out.Content = text.String()
	return out, nil
}

// RequestStream posts req to the Messages API with stream=true and
// translates its content_block_start/delta/stop events into
// llm.StreamEvent.
func (c *Anthropic) RequestStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	if c.APIKey == "" {
		return nil, errkind.New(errkind.Auth, "anthropic: API key is required")
	}
	body, err := json.Marshal(toAnthropicRequest(req))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "marshal messages request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "build messages request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "messages request")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return nil, errkind.New(errkind.Network, "anthropic: status %d: %s", resp.StatusCode, buf.String())
	}

	events := make(chan llm.StreamEvent, 8)
	go c.consumeSSE(resp.Body, events)
	return events, nil
}

func (c *Anthropic) consumeSSE(body io.ReadCloser, events chan<- llm.StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	toolArgs := make(map[int]*strings.Builder)
	toolMeta := make(map[int]llm.ToolCall)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			events <- llm.StreamEvent{Err: errkind.Wrap(err, errkind.Protocol, "decode stream event")}
			return
		}

		switch ev.Type {
		case "content_block_start":
			switch ev.ContentBlock.Type {
			case "text":
				events <- llm.StreamEvent{Kind: llm.EventPartStart, Index: ev.Index, Part: llm.PartText}
			case "tool_use":
				toolArgs[ev.Index] = &strings.Builder{}
				toolMeta[ev.Index] = llm.ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
				events <- llm.StreamEvent{Kind: llm.EventPartStart, Index: ev.Index, Part: llm.PartToolCall, ToolCall: toolMeta[ev.Index]}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				events <- llm.StreamEvent{Kind: llm.EventPartDelta, Index: ev.Index, Part: llm.PartText, Text: ev.Delta.Text}
			case "input_json_delta":
				if b, ok := toolArgs[ev.Index]; ok {
					b.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if meta, ok := toolMeta[ev.Index]; ok {
				var args map[string]interface{}
				if b, ok := toolArgs[ev.Index]; ok {
					_ = json.Unmarshal([]byte(b.String()), &args)
				}
				meta.Args = args
				events <- llm.StreamEvent{Kind: llm.EventPartEnd, Index: ev.Index, Part: llm.PartToolCall, ToolCall: meta}
			} else {
				events <- llm.StreamEvent{Kind: llm.EventPartEnd, Index: ev.Index, Part: llm.PartText}
			}
		case "message_stop":
			return
		}
	}
	if err := scanner.Err(); err != nil {
		events <- llm.StreamEvent{Err: errkind.Wrap(err, errkind.Network, "read stream")}
	}
}
