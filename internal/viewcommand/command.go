// Package viewcommand carries the point-to-point commands a presenter
// sends to its view: FIFO-ordered and reliably delivered, unlike the
// bus's non-blocking broadcast.
package viewcommand

import (
	"context"

	"github.com/google/uuid"
)

// Kind discriminates Command payloads.
type Kind string

const (
	AppendStreamChunk    Kind = "append_stream_chunk"
	AppendThinking       Kind = "append_thinking"
	MessageAppended      Kind = "message_appended"
	ShowThinking         Kind = "show_thinking"
	FinalizeMessage      Kind = "finalize_message"
	HideThinking         Kind = "hide_thinking"
	ShowToolCall         Kind = "show_tool_call"
	UpdateToolCall       Kind = "update_tool_call"
	ShowError            Kind = "show_error"
	StreamCancelled      Kind = "stream_cancelled"
	ActivateConversation Kind = "activate_conversation"
	ConversationCreated  Kind = "conversation_created"
	ConversationRenamed  Kind = "conversation_renamed"
	ConversationDeleted  Kind = "conversation_deleted"
)

// Command is one instruction from a presenter to its view.
type Command struct {
	Kind           Kind
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	Role           string
	Title          string
	Text           string
	ToolCallID     string
	ToolName       string
	Success        bool
	Result         interface{}
	ErrMessage     string
}

// Channel is a reliable, FIFO, point-to-point sender of Commands to one
// view. Unlike the bus, Send blocks until the view (or ctx) accepts it —
// no command is ever silently dropped.
type Channel struct {
	ch chan Command
}

// NewChannel returns a Channel with the given buffer depth.
func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan Command, buffer)}
}

// Send delivers cmd, blocking until the view reads it or ctx is done.
func (c *Channel) Send(ctx context.Context, cmd Command) error {
	select {
	case c.ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commands returns the receive side for the view to range over.
func (c *Channel) Commands() <-chan Command { return c.ch }

// Close closes the underlying channel; subsequent Sends will panic, as
// with any closed Go channel, so callers must stop sending before close.
func (c *Channel) Close() { close(c.ch) }
