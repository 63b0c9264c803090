// Package presenter subscribes to the event bus and translates AppEvent
// values into ViewCommand values sent reliably to a view, per spec.md
// §4.7. ChatPresenter is the chat-and-conversation presenter; each view
// surface gets its own presenter instance sharing the same bus.
package presenter

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lucidloop/deskagent/internal/chatcore"
	"github.com/lucidloop/deskagent/internal/conversation"
	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/eventbus"
	"github.com/lucidloop/deskagent/internal/viewcommand"
)

// ChatPresenter coordinates user chat events and chat/conversation
// domain events with the conversation and chat services, emitting
// ViewCommands for its view to render.
type ChatPresenter struct {
	bus           *eventbus.Bus
	conversations conversation.Store
	chat          *chatcore.Service
	view          *viewcommand.Channel

	running int32
	stop    chan struct{}
}

// New returns a ChatPresenter wired to its collaborators. Call Start to
// begin consuming bus events.
func New(bus *eventbus.Bus, conversations conversation.Store, chat *chatcore.Service, view *viewcommand.Channel) *ChatPresenter {
	return &ChatPresenter{
		bus:           bus,
		conversations: conversations,
		chat:          chat,
		view:          view,
		stop:          make(chan struct{}),
	}
}

// Start subscribes to the bus and begins dispatching events on a
// background goroutine. Idempotent: calling Start while already running
// is a no-op.
func (p *ChatPresenter) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	p.stop = make(chan struct{})
	sub := p.bus.Subscribe()

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				atomic.StoreInt32(&p.running, 0)
				return
			case event, ok := <-sub.Events():
				if !ok {
					atomic.StoreInt32(&p.running, 0)
					return
				}
				p.handleEvent(ctx, event)
			}
		}
	}()
}

// Stop ends the event loop. Safe to call whether or not Start was ever
// called.
func (p *ChatPresenter) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	close(p.stop)
}

// IsRunning reports whether the presenter's event loop is active.
func (p *ChatPresenter) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *ChatPresenter) handleEvent(ctx context.Context, event eventbus.AppEvent) {
	switch event.Kind {
	case eventbus.KindUser:
		if event.User != nil {
			p.handleUserEvent(ctx, *event.User)
		}
	case eventbus.KindChat:
		if event.Chat != nil {
			p.handleChatEvent(ctx, *event.Chat)
		}
	case eventbus.KindConversation:
		if event.Conversation != nil {
			p.handleConversationEvent(ctx, *event.Conversation)
		}
	}
}

func (p *ChatPresenter) handleUserEvent(ctx context.Context, event eventbus.UserEvent) {
	switch event.Kind {
	case eventbus.UserSendMessage:
		p.handleSendMessage(ctx, event.ConversationID, event.Text)
	case eventbus.UserStopStreaming:
		p.chat.Cancel()
	case eventbus.UserNewConversation:
		p.handleNewConversation(ctx)
	case eventbus.UserSelectConversation:
		p.handleSelectConversation(ctx, event.ConversationID)
	case eventbus.UserConfirmRenameConversation:
		p.handleRenameConversation(ctx, event.ConversationID, event.Title)
	}
}

func (p *ChatPresenter) handleSendMessage(ctx context.Context, conversationID uuid.UUID, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	conversationID, err := p.ensureConversation(ctx, conversationID)
	if err != nil {
		p.showError(ctx, "conversation error", err.Error())
		return
	}

	p.send(ctx, viewcommand.Command{
		Kind:           viewcommand.MessageAppended,
		ConversationID: conversationID,
		Role:           "user",
		Text:           trimmed,
	})
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ShowThinking, ConversationID: conversationID})

	if err := p.chat.SendMessage(ctx, conversationID, trimmed); err != nil {
		log.Error().Err(err).Str("conversation", conversationID.String()).Msg("send message failed")
		p.send(ctx, viewcommand.Command{
			Kind:           viewcommand.ShowError,
			ConversationID: conversationID,
			ErrMessage:     err.Error(),
		})
		p.send(ctx, viewcommand.Command{Kind: viewcommand.HideThinking, ConversationID: conversationID})
	}
}

// ensureConversation resolves conversationID to a live conversation,
// creating one if it is absent or unset.
func (p *ChatPresenter) ensureConversation(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	if conversationID != uuid.Nil {
		if _, err := p.conversations.Get(ctx, conversationID); err == nil {
			return conversationID, nil
		} else if errkind.Of(err) != errkind.NotFound {
			return uuid.Nil, err
		}
	}

	conv, err := p.conversations.Create(ctx, "")
	if err != nil {
		return uuid.Nil, err
	}
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ConversationCreated, ConversationID: conv.ID, Title: conv.Title})
	return conv.ID, nil
}

func (p *ChatPresenter) handleNewConversation(ctx context.Context) {
	conv, err := p.conversations.Create(ctx, "")
	if err != nil {
		p.showError(ctx, "conversation error", err.Error())
		return
	}
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ConversationCreated, ConversationID: conv.ID, Title: conv.Title})
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ActivateConversation, ConversationID: conv.ID})
}

func (p *ChatPresenter) handleSelectConversation(ctx context.Context, conversationID uuid.UUID) {
	if _, err := p.conversations.Get(ctx, conversationID); err != nil {
		p.showError(ctx, "conversation error", err.Error())
		return
	}
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ActivateConversation, ConversationID: conversationID})
}

func (p *ChatPresenter) handleRenameConversation(ctx context.Context, conversationID uuid.UUID, title string) {
	if err := p.conversations.Rename(ctx, conversationID, title); err != nil {
		p.showError(ctx, "conversation error", err.Error())
		return
	}
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ConversationRenamed, ConversationID: conversationID, Title: title})
}

func (p *ChatPresenter) handleChatEvent(ctx context.Context, event eventbus.ChatEvent) {
	switch event.Kind {
	case eventbus.ChatStreamStarted:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.ShowThinking, ConversationID: event.ConversationID, MessageID: event.MessageID})
	case eventbus.ChatTextDelta:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.AppendStreamChunk, ConversationID: event.ConversationID, MessageID: event.MessageID, Text: event.Text})
	case eventbus.ChatThinkingDelta:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.AppendThinking, ConversationID: event.ConversationID, MessageID: event.MessageID, Text: event.Text})
	case eventbus.ChatToolCallStarted:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.ShowToolCall, ConversationID: event.ConversationID, ToolCallID: event.ToolCallID, ToolName: event.ToolName})
	case eventbus.ChatToolCallCompleted:
		p.send(ctx, viewcommand.Command{
			Kind:           viewcommand.UpdateToolCall,
			ConversationID: event.ConversationID,
			ToolCallID:     event.ToolCallID,
			ToolName:       event.ToolName,
			Success:        event.Success,
			Result:         event.Result,
		})
	case eventbus.ChatStreamCompleted:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.FinalizeMessage, ConversationID: event.ConversationID, MessageID: event.MessageID})
		p.send(ctx, viewcommand.Command{Kind: viewcommand.HideThinking, ConversationID: event.ConversationID})
	case eventbus.ChatStreamCancelled:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.StreamCancelled, ConversationID: event.ConversationID, MessageID: event.MessageID})
		p.send(ctx, viewcommand.Command{Kind: viewcommand.HideThinking, ConversationID: event.ConversationID})
	case eventbus.ChatStreamError:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.ShowError, ConversationID: event.ConversationID, ErrMessage: event.Err})
		p.send(ctx, viewcommand.Command{Kind: viewcommand.HideThinking, ConversationID: event.ConversationID})
	}
}

func (p *ChatPresenter) handleConversationEvent(ctx context.Context, event eventbus.ConversationEvent) {
	switch event.Kind {
	case eventbus.ConversationCreated:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.ConversationCreated, ConversationID: event.ConversationID, Title: event.Title})
	case eventbus.ConversationRenamed:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.ConversationRenamed, ConversationID: event.ConversationID, Title: event.Title})
	case eventbus.ConversationDeleted:
		p.send(ctx, viewcommand.Command{Kind: viewcommand.ConversationDeleted, ConversationID: event.ConversationID})
	}
}

func (p *ChatPresenter) showError(ctx context.Context, title, message string) {
	p.send(ctx, viewcommand.Command{Kind: viewcommand.ShowError, ErrMessage: message, Title: title})
}

// send delivers cmd with a bounded wait so a stalled view cannot hang
// the presenter's event loop indefinitely.
func (p *ChatPresenter) send(ctx context.Context, cmd viewcommand.Command) {
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.view.Send(sendCtx, cmd); err != nil {
		log.Warn().Err(err).Str("kind", string(cmd.Kind)).Msg("view command not delivered")
	}
}
