// Package conversation models the conversation/message data the chat
// core appends to and the CRUD+append interface spec.md §1 treats as an
// external collaborator.
package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is a message's place in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a tool invocation an assistant message issued.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolResult is a tool's outcome, carried on a user-role message whose
// ToolCallID references a preceding assistant ToolCall.
type ToolResult struct {
	ToolCallID string
	Success    bool
	Result     interface{}
}

// Message is one append-only entry in a Conversation.
type Message struct {
	Role       Role
	Content    string
	Thinking   string
	ToolCalls  []ToolCall
	ToolResults []ToolResult
	Timestamp  time.Time
}

// Conversation is an ordered, append-only list of Messages.
type Conversation struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Title     string
	ProfileID string
	Messages  []Message
}

// Store is the minimal CRUD+append contract the chat core and
// presenters consume, per spec.md §1's external-collaborator boundary.
type Store interface {
	Create(ctx context.Context, profileID string) (Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (Conversation, error)
	Append(ctx context.Context, id uuid.UUID, msg Message) error
	Rename(ctx context.Context, id uuid.UUID, title string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Conversation, error)
}
