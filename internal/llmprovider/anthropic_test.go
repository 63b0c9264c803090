package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidloop/deskagent/internal/llm"
)

func anthropicSSEServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	}))
}

func TestAnthropicRequestStreamEmitsTextDeltas(t *testing.T) {
	srv := anthropicSSEServer(t, []string{
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_stop"}`,
	})
	defer srv.Close()

	client := NewAnthropic("test-key", srv.URL)
	events, err := client.RequestStream(context.Background(), llm.GenerateRequest{Model: "claude-3"})
	require.NoError(t, err)

	var text string
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Kind == llm.EventPartDelta {
			text += ev.Text
		}
	}
	assert.Equal(t, "Hi there", text)
}

func TestAnthropicRequestStreamEmitsToolUse(t *testing.T) {
	srv := anthropicSSEServer(t, []string{
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t1","name":"weather"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":\"NYC\"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_stop"}`,
	})
	defer srv.Close()

	client := NewAnthropic("test-key", srv.URL)
	events, err := client.RequestStream(context.Background(), llm.GenerateRequest{Model: "claude-3"})
	require.NoError(t, err)

	var call llm.ToolCall
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Kind == llm.EventPartEnd && ev.Part == llm.PartToolCall {
			call = ev.ToolCall
		}
	}
	assert.Equal(t, "t1", call.ID)
	assert.Equal(t, "weather", call.Name)
	assert.Equal(t, "NYC", call.Args["city"])
}
