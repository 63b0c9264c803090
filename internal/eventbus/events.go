// Package eventbus carries the AppEvent broadcast bus that connects the
// chat core and views to presenters, per spec.md §4.7. The point-to-point
// view-command channel lives in package viewcommand.
package eventbus

import "github.com/google/uuid"

// EventKind tags which arm of the AppEvent union a given Event carries.
type EventKind string

const (
	KindUser         EventKind = "user"
	KindChat         EventKind = "chat"
	KindConversation EventKind = "conversation"
)

// AppEvent is the tagged-union value broadcast on the bus.
type AppEvent struct {
	Kind         EventKind
	User         *UserEvent
	Chat         *ChatEvent
	Conversation *ConversationEvent
}

// UserEventKind discriminates UserEvent payloads.
type UserEventKind string

const (
	UserSendMessage            UserEventKind = "send_message"
	UserStopStreaming          UserEventKind = "stop_streaming"
	UserNewConversation        UserEventKind = "new_conversation"
	UserSelectConversation     UserEventKind = "select_conversation"
	UserConfirmRenameConversation UserEventKind = "confirm_rename_conversation"
)

// UserEvent is an action a view emits back onto the bus.
type UserEvent struct {
	Kind           UserEventKind
	ConversationID uuid.UUID
	Text           string
	Title          string
}

// ChatEventKind discriminates ChatEvent payloads.
type ChatEventKind string

const (
	ChatStreamStarted     ChatEventKind = "stream_started"
	ChatTextDelta         ChatEventKind = "text_delta"
	ChatThinkingDelta     ChatEventKind = "thinking_delta"
	ChatToolCallStarted   ChatEventKind = "tool_call_started"
	ChatToolCallCompleted ChatEventKind = "tool_call_completed"
	ChatStreamCompleted   ChatEventKind = "stream_completed"
	ChatStreamCancelled   ChatEventKind = "stream_cancelled"
	ChatStreamError       ChatEventKind = "stream_error"
)

// ChatEvent is one event from the chat streaming core.
type ChatEvent struct {
	Kind           ChatEventKind
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	ModelID        string
	Text           string
	ToolCallID     string
	ToolName       string
	Success        bool
	Result         interface{}
	DurationMS     int64
	Err            string
}

// ConversationEventKind discriminates ConversationEvent payloads.
type ConversationEventKind string

const (
	ConversationCreated ConversationEventKind = "created"
	ConversationRenamed  ConversationEventKind = "renamed"
	ConversationDeleted  ConversationEventKind = "deleted"
)

// ConversationEvent is one conversation-lifecycle event.
type ConversationEvent struct {
	Kind           ConversationEventKind
	ConversationID uuid.UUID
	Title          string
}
