package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOpenAICompatibleUsesCustomBaseURL(t *testing.T) {
	id, base := Resolve(ProviderSpec{ID: "together", OpenAICompatible: true, BaseURL: "https://api.together.xyz/v1"})
	assert.Equal(t, "openai", id)
	assert.Equal(t, "https://api.together.xyz/v1", base)
}

func TestResolveNativeProviders(t *testing.T) {
	for _, name := range []string{"anthropic", "groq", "mistral"} {
		id, _ := Resolve(ProviderSpec{ID: name})
		assert.Equal(t, name, id)
	}
}

func TestResolveUnknownDefaultsToOpenAI(t *testing.T) {
	id, _ := Resolve(ProviderSpec{ID: "some-new-provider"})
	assert.Equal(t, "openai", id)
}
