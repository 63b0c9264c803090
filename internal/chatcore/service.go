package chatcore

import (
	"context"

	"github.com/google/uuid"

	"github.com/lucidloop/deskagent/internal/conversation"
	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/eventbus"
	"github.com/lucidloop/deskagent/internal/llm"
	"github.com/lucidloop/deskagent/internal/mcpservice"
	"github.com/lucidloop/deskagent/internal/profile"
)

const defaultMaxToolIterations = 16

// Option configures a Service at construction time.
type Option func(*Service)

// WithMaxToolIterations overrides the default tool-call iteration cap.
func WithMaxToolIterations(n int) Option {
	return func(s *Service) { s.maxToolIterations = n }
}

// Service is the chat streaming core: conversation-id + user text in,
// an ordered event stream onto the bus out.
type Service struct {
	conversations     conversation.Store
	profiles          profile.Service
	mcp               *mcpservice.Service
	bus               *eventbus.Bus
	providers         ProviderResolver
	session           *StreamSession
	maxToolIterations int
}

// ProviderResolver returns the llm.Provider to drive for a given
// provider id, already bound to the correct base URL/credentials. The
// openai-compatible-vs-native dispatch rule (spec.md §6) is applied by
// the resolver's own implementation via llm.Resolve.
type ProviderResolver func(providerID string) (llm.Provider, error)

// New returns a Service wired to its collaborators.
func New(conversations conversation.Store, profiles profile.Service, mcp *mcpservice.Service, bus *eventbus.Bus, providers ProviderResolver, opts ...Option) *Service {
	s := &Service{
		conversations:     conversations,
		profiles:          profiles,
		mcp:               mcp,
		bus:               bus,
		providers:         providers,
		session:           NewStreamSession(),
		maxToolIterations: defaultMaxToolIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage runs the pre-flight checks synchronously and then drives
// the agent loop asynchronously, per spec.md §4.6. It returns once
// StreamStarted has been published, or an error if pre-flight fails.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, text string) error {
	if !s.session.TryStart(conversationID) {
		return errkind.New(errkind.Busy, "a stream is already in progress")
	}

	conv, err := s.loadOrCreateConversation(ctx, conversationID)
	if err != nil {
		s.session.Finish()
		return err
	}

	prof, err := s.profiles.Get(ctx, conv.ProfileID)
	if err != nil {
		s.session.Finish()
		return err
	}

	if err := s.conversations.Append(ctx, conv.ID, conversation.Message{
		Role:    conversation.RoleUser,
		Content: text,
	}); err != nil {
		s.session.Finish()
		return err
	}

	tools := s.mcp.GetLLMTools()
	messageID := uuid.New()

	s.bus.Publish(eventbus.AppEvent{
		Kind: eventbus.KindChat,
		Chat: &eventbus.ChatEvent{
			Kind:           eventbus.ChatStreamStarted,
			ConversationID: conv.ID,
			MessageID:      messageID,
			ModelID:        prof.Model,
		},
	})

	go s.runAgentLoop(ctx, conv.ID, messageID, prof, tools)
	return nil
}

// Cancel flips the session's cancellation flag; the agent loop observes
// it between stream events and before dispatching a tool call.
func (s *Service) Cancel() {
	s.session.Cancel()
}

// IsStreaming reports whether a stream is currently in progress.
func (s *Service) IsStreaming() bool {
	return s.session.IsStreaming()
}

func (s *Service) loadOrCreateConversation(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	conv, err := s.conversations.Get(ctx, id)
	if err == nil {
		return conv, nil
	}
	if errkind.Of(err) != errkind.NotFound {
		return conversation.Conversation{}, err
	}

	def, ok, defErr := s.profiles.Default(ctx)
	if defErr != nil {
		return conversation.Conversation{}, defErr
	}
	if !ok {
		return conversation.Conversation{}, errkind.New(errkind.NotFound, "no default profile available")
	}

	return s.conversations.Create(ctx, def.ID)
}

func (s *Service) publishError(conversationID uuid.UUID, messageID uuid.UUID, err error) {
	s.session.Finish()
	s.bus.Publish(eventbus.AppEvent{
		Kind: eventbus.KindChat,
		Chat: &eventbus.ChatEvent{
			Kind:           eventbus.ChatStreamError,
			ConversationID: conversationID,
			MessageID:      messageID,
			Err:            err.Error(),
		},
	})
}
