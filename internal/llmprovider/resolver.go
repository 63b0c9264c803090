package llmprovider

import (
	"os"
	"strings"

	"github.com/lucidloop/deskagent/internal/chatcore"
	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/llm"
)

// envKeyForProvider is where each native/default provider id reads its
// API key from, following the teacher client's own os.Getenv fallback.
var envKeyForProvider = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"groq":      "GROQ_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// Resolver builds a chatcore.ProviderResolver over the concrete
// providers in this package, applying llm.Resolve's openai-compatible
// dispatch rule per profile.
type Resolver struct {
	specs map[string]llm.ProviderSpec
}

// NewResolver returns a Resolver seeded with provider specs keyed by
// profile provider id (not the dispatch id llm.Resolve returns).
func NewResolver(specs map[string]llm.ProviderSpec) *Resolver {
	return &Resolver{specs: specs}
}

// Resolve implements chatcore.ProviderResolver.
func (r *Resolver) Resolve(providerID string) (llm.Provider, error) {
	spec, ok := r.specs[providerID]
	if !ok {
		spec = llm.ProviderSpec{ID: providerID}
	}
	dispatchID, baseURL := llm.Resolve(spec)

	apiKey := apiKeyFor(dispatchID)
	if apiKey == "" {
		return nil, errkind.New(errkind.Auth, "no API key configured for provider %q", dispatchID)
	}

	switch dispatchID {
	case "anthropic":
		return NewAnthropic(apiKey, baseURL), nil
	default:
		return NewOpenAI(apiKey, baseURL), nil
	}
}

func apiKeyFor(dispatchID string) string {
	envKey, ok := envKeyForProvider[dispatchID]
	if !ok {
		envKey = "OPENAI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

var _ chatcore.ProviderResolver = (&Resolver{}).Resolve
