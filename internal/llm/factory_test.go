package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgen/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	t.Run("anthropic is the default provider", func(t *testing.T) {
		c, err := NewFromConfig(context.Background(), config.LLMConfig{
			APIKey: "k", Model: "claude-test", Timeout: "30s",
		})
		require.NoError(t, err)
		_, ok := c.(*AnthropicClient)
		assert.True(t, ok)
		assert.Equal(t, "claude-test", c.Model())
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), config.LLMConfig{Provider: "openai"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown LLM provider")
	})
}
