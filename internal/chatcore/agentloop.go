package chatcore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lucidloop/deskagent/internal/conversation"
	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/eventbus"
	"github.com/lucidloop/deskagent/internal/llm"
	"github.com/lucidloop/deskagent/internal/mcpservice"
	"github.com/lucidloop/deskagent/internal/profile"
)

// runAgentLoop drives the provider stream to completion, interleaving
// tool calls and publishing bus events in causal order: StreamStarted has
// already been published by SendMessage; this always ends with exactly
// one of StreamCompleted, StreamCancelled, or StreamError. The session
// is returned to idle just before that terminal event is published.
func (s *Service) runAgentLoop(ctx context.Context, conversationID, messageID uuid.UUID, prof profile.Profile, tools []mcpservice.Tool) {
	defer s.session.Finish()

	provider, err := s.providers(prof.ProviderID)
	if err != nil {
		s.publishError(conversationID, messageID, err)
		return
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		s.publishError(conversationID, messageID, err)
		return
	}

	messages := buildMessages(prof, conv)
	toolDefs := toToolDefinitions(tools)

	var textContent, thinkingContent string
	var pendingToolCalls []llm.ToolCall

	for iteration := 0; ; iteration++ {
		if iteration >= s.maxToolIterations {
			s.publishError(conversationID, messageID, errkind.New(errkind.Protocol, "tool-call iteration limit exceeded"))
			return
		}

		if s.session.Cancelled() {
			s.publishCancelled(conversationID, messageID)
			return
		}

		req := llm.GenerateRequest{
			Model:    prof.Model,
			Messages: messages,
			Tools:    toolDefs,
			Options:  llm.Options{Stream: true},
		}

		events, err := provider.RequestStream(ctx, req)
		if err != nil {
			s.publishError(conversationID, messageID, err)
			return
		}

		textContent, thinkingContent, pendingToolCalls, err = s.consumeStream(ctx, conversationID, messageID, events)
		if err != nil {
			if errkind.Of(err) == errkind.Cancelled {
				s.publishCancelled(conversationID, messageID)
				return
			}
			s.publishError(conversationID, messageID, err)
			return
		}

		assistantMsg := conversation.Message{
			Role:      conversation.RoleAssistant,
			Content:   textContent,
			Thinking:  thinkingContent,
			ToolCalls: toConversationToolCalls(pendingToolCalls),
			Timestamp: time.Now(),
		}
		if err := s.conversations.Append(ctx, conversationID, assistantMsg); err != nil {
			s.publishError(conversationID, messageID, err)
			return
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   textContent,
			ToolCalls: pendingToolCalls,
		})

		if len(pendingToolCalls) == 0 {
			s.session.Finish()
			s.bus.Publish(eventbus.AppEvent{
				Kind: eventbus.KindChat,
				Chat: &eventbus.ChatEvent{
					Kind:           eventbus.ChatStreamCompleted,
					ConversationID: conversationID,
					MessageID:      messageID,
				},
			})
			return
		}

		if s.session.Cancelled() {
			s.publishCancelled(conversationID, messageID)
			return
		}

		results, toolResults, err := s.dispatchToolCalls(ctx, conversationID, messageID, pendingToolCalls)
		if err != nil {
			s.publishError(conversationID, messageID, err)
			return
		}
		if err := s.conversations.Append(ctx, conversationID, conversation.Message{
			Role:        conversation.RoleUser,
			ToolResults: toolResults,
			Timestamp:   time.Now(),
		}); err != nil {
			s.publishError(conversationID, messageID, err)
			return
		}
		messages = append(messages, llm.Message{
			Role:        llm.RoleUser,
			ToolResults: results,
		})
	}
}

// consumeStream reads a provider's streaming events until the terminal
// part_end of the response, accumulating text/thinking content and
// publishing deltas and tool-call lifecycle events in the order
// received. It returns errkind.Cancelled if cancellation is observed
// mid-stream.
func (s *Service) consumeStream(ctx context.Context, conversationID, messageID uuid.UUID, events <-chan llm.StreamEvent) (text, thinking string, toolCalls []llm.ToolCall, err error) {
	for event := range events {
		if s.session.Cancelled() {
			return text, thinking, toolCalls, errkind.New(errkind.Cancelled, "stream cancelled")
		}
		if event.Err != nil {
			return text, thinking, toolCalls, event.Err
		}

		switch event.Part {
		case llm.PartText:
			if event.Kind == llm.EventPartDelta {
				text += event.Text
				s.bus.Publish(eventbus.AppEvent{
					Kind: eventbus.KindChat,
					Chat: &eventbus.ChatEvent{
						Kind:           eventbus.ChatTextDelta,
						ConversationID: conversationID,
						MessageID:      messageID,
						Text:           event.Text,
					},
				})
			}
		case llm.PartThinking:
			if event.Kind == llm.EventPartDelta {
				thinking += event.Text
				s.bus.Publish(eventbus.AppEvent{
					Kind: eventbus.KindChat,
					Chat: &eventbus.ChatEvent{
						Kind:           eventbus.ChatThinkingDelta,
						ConversationID: conversationID,
						MessageID:      messageID,
						Text:           event.Text,
					},
				})
			}
		case llm.PartToolCall:
			if event.Kind == llm.EventPartStart {
				s.bus.Publish(eventbus.AppEvent{
					Kind: eventbus.KindChat,
					Chat: &eventbus.ChatEvent{
						Kind:           eventbus.ChatToolCallStarted,
						ConversationID: conversationID,
						MessageID:      messageID,
						ToolCallID:     event.ToolCall.ID,
						ToolName:       event.ToolCall.Name,
					},
				})
			}
			if event.Kind == llm.EventPartEnd {
				toolCalls = append(toolCalls, event.ToolCall)
			}
		}
	}
	return text, thinking, toolCalls, nil
}

// dispatchToolCalls forwards each pending tool call to the MCP service in
// order, publishing ToolCallCompleted as each finishes. Cancellation is
// checked by the caller once, before the batch is dispatched; once the
// batch is in flight every call in it runs to completion so the
// conversation record stays consistent, per spec.md §4.6's "let
// in-flight tool calls complete" rule.
func (s *Service) dispatchToolCalls(ctx context.Context, conversationID, messageID uuid.UUID, calls []llm.ToolCall) ([]llm.ToolResult, []conversation.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	convResults := make([]conversation.ToolResult, 0, len(calls))

	for _, call := range calls {
		start := time.Now()
		result, err := s.mcp.CallTool(ctx, call.Name, call.Args)
		duration := time.Since(start).Milliseconds()

		success := err == nil
		s.bus.Publish(eventbus.AppEvent{
			Kind: eventbus.KindChat,
			Chat: &eventbus.ChatEvent{
				Kind:           eventbus.ChatToolCallCompleted,
				ConversationID: conversationID,
				MessageID:      messageID,
				ToolCallID:     call.ID,
				ToolName:       call.Name,
				Success:        success,
				Result:         result,
				DurationMS:     duration,
			},
		})

		if !success {
			result = err.Error()
		}
		results = append(results, llm.ToolResult{ToolCallID: call.ID, Result: result})
		convResults = append(convResults, conversation.ToolResult{ToolCallID: call.ID, Success: success, Result: result})
	}

	return results, convResults, nil
}

func (s *Service) publishCancelled(conversationID, messageID uuid.UUID) {
	s.session.Finish()
	s.bus.Publish(eventbus.AppEvent{
		Kind: eventbus.KindChat,
		Chat: &eventbus.ChatEvent{
			Kind:           eventbus.ChatStreamCancelled,
			ConversationID: conversationID,
			MessageID:      messageID,
		},
	})
}

// buildMessages composes the provider request history: the profile's
// system prompt leads, followed by the full prior conversation mapped to
// {system, user, assistant} roles with tool calls/results preserved.
func buildMessages(prof profile.Profile, conv conversation.Conversation) []llm.Message {
	messages := make([]llm.Message, 0, len(conv.Messages)+1)
	if prof.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prof.SystemPrompt})
	}
	for _, msg := range conv.Messages {
		messages = append(messages, llm.Message{
			Role:        llm.Role(msg.Role),
			Content:     msg.Content,
			ToolCalls:   toLLMToolCalls(msg.ToolCalls),
			ToolResults: toLLMToolResults(msg.ToolResults),
		})
	}
	return messages
}

func toToolDefinitions(tools []mcpservice.Tool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return defs
}

func toLLMToolCalls(calls []conversation.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, llm.ToolCall{ID: c.ID, Name: c.Name, Args: c.Args})
	}
	return out
}

func toLLMToolResults(results []conversation.ToolResult) []llm.ToolResult {
	out := make([]llm.ToolResult, 0, len(results))
	for _, r := range results {
		out = append(out, llm.ToolResult{ToolCallID: r.ToolCallID, Result: r.Result})
	}
	return out
}

func toConversationToolCalls(calls []llm.ToolCall) []conversation.ToolCall {
	out := make([]conversation.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, conversation.ToolCall{ID: c.ID, Name: c.Name, Args: c.Args})
	}
	return out
}
