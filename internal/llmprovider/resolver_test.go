package llmprovider

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidloop/deskagent/internal/errkind"
	"github.com/lucidloop/deskagent/internal/llm"
)

func TestResolveDispatchesKnownNativeProviderToAnthropic(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	r := NewResolver(map[string]llm.ProviderSpec{"anthropic": {ID: "anthropic"}})

	provider, err := r.Resolve("anthropic")
	require.NoError(t, err)
	_, ok := provider.(*Anthropic)
	assert.True(t, ok)
}

func TestResolveDefaultsUnknownProviderToOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "oa-key")
	r := NewResolver(map[string]llm.ProviderSpec{"custom": {ID: "custom"}})

	provider, err := r.Resolve("custom")
	require.NoError(t, err)
	_, ok := provider.(*OpenAI)
	assert.True(t, ok)
}

func TestResolveOpenAICompatibleUsesCustomBaseURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "oa-key")
	r := NewResolver(map[string]llm.ProviderSpec{
		"together": {ID: "together", OpenAICompatible: true, BaseURL: "https://api.together.xyz/v1"},
	})

	provider, err := r.Resolve("together")
	require.NoError(t, err)
	client, ok := provider.(*OpenAI)
	require.True(t, ok)
	assert.Equal(t, "https://api.together.xyz/v1", client.BaseURL)
}

func TestResolveFailsWithoutAPIKey(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	r := NewResolver(nil)

	_, err := r.Resolve("openai")
	require.Error(t, err)
	assert.Equal(t, errkind.Auth, errkind.Of(err))
}
