package llm

import "context"

// Provider is a provider handle the chat core drives: a non-streaming
// call and a streaming one, per spec.md §6's consumed interface.
type Provider interface {
	Request(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	RequestStream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error)
}

// ProviderSpec is the profile-side description of a provider: its id,
// whether it's packaged as OpenAI-compatible, and the base URL to use
// when it is.
type ProviderSpec struct {
	ID               string
	OpenAICompatible bool
	BaseURL          string
}

// nativeProviders dispatch directly under their own id rather than
// through the OpenAI-compatible default.
var nativeProviders = map[string]bool{
	"anthropic": true,
	"groq":      true,
	"mistral":   true,
}

// Resolve implements spec.md §6's provider dispatch rule: a provider
// advertising openai-compatible client packaging is dispatched as
// "openai" with a custom base URL; known providers are dispatched
// natively; everything else defaults to OpenAI-compatible.
func Resolve(spec ProviderSpec) (id string, baseURL string) {
	if spec.OpenAICompatible {
		return "openai", spec.BaseURL
	}
	if nativeProviders[spec.ID] {
		return spec.ID, spec.BaseURL
	}
	return "openai", spec.BaseURL
}
