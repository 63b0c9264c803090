package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucidloop/deskagent/internal/errkind"
)

// MemoryStore is an in-process Store, suitable as a default for
// single-instance deployments and as the teacher-style lightweight
// double in tests that don't need real persistence.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[uuid.UUID]*Conversation)}
}

// Create starts a new Conversation bound to profileID.
func (s *MemoryStore) Create(ctx context.Context, profileID string) (Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		ProfileID: profileID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return *conv, nil
}

// Get returns a copy of the conversation identified by id.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, errkind.New(errkind.NotFound, "conversation %s", id)
	}
	return *conv, nil
}

// Append adds msg to the conversation and bumps its updated time.
func (s *MemoryStore) Append(ctx context.Context, id uuid.UUID, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return errkind.New(errkind.NotFound, "conversation %s", id)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	return nil
}

// Rename sets the conversation's title.
func (s *MemoryStore) Rename(ctx context.Context, id uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return errkind.New(errkind.NotFound, "conversation %s", id)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	return nil
}

// Delete removes the conversation identified by id.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return errkind.New(errkind.NotFound, "conversation %s", id)
	}
	delete(s.conversations, id)
	return nil
}

// List returns every conversation, in no particular order.
func (s *MemoryStore) List(ctx context.Context) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	return out, nil
}
