// Package profile models the read-only profile service spec.md §1 treats
// as an external collaborator: the active credential+model and default
// profile the chat core needs to open a stream.
package profile

import "context"

// Profile is the minimal shape the chat core consumes to build a
// provider request: which provider/model to call, the system prompt to
// lead the conversation with, and whether "thinking" content should be
// surfaced to the view.
type Profile struct {
	ID            string
	ProviderID    string
	Model         string
	SystemPrompt  string
	ShowThinking  bool
}

// Service is the read-only contract spec.md §6 specifies: the active
// profile and the default one used when a conversation has none yet.
type Service interface {
	Active(ctx context.Context) (Profile, error)
	Default(ctx context.Context) (Profile, bool, error)
	Get(ctx context.Context, id string) (Profile, error)
}

// StaticService is a fixed-profile Service, the common case for a
// single-user desktop install with one configured credential+model.
type StaticService struct {
	profile Profile
}

// NewStaticService returns a Service that always answers with profile.
func NewStaticService(p Profile) *StaticService {
	return &StaticService{profile: p}
}

func (s *StaticService) Active(ctx context.Context) (Profile, error) { return s.profile, nil }

func (s *StaticService) Default(ctx context.Context) (Profile, bool, error) {
	return s.profile, true, nil
}

func (s *StaticService) Get(ctx context.Context, id string) (Profile, error) {
	return s.profile, nil
}
