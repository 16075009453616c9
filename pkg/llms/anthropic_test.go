package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomieai/concierge-go/pkg/config"
	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

func TestNewAnthropicGenerator(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		gen, err := NewAnthropicGenerator(config.GenerationConfig{
			APIKey:    "test-key",
			ModelID:   "claude-sonnet-4-5",
			MaxTokens: 500,
		})
		require.NoError(t, err)
		assert.NotNil(t, gen)
	})

	t.Run("missing API key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		_, err := NewAnthropicGenerator(config.GenerationConfig{ModelID: "claude-sonnet-4-5"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.InvalidInput))
	})

	t.Run("API key from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		gen, err := NewAnthropicGenerator(config.GenerationConfig{ModelID: "claude-sonnet-4-5"})
		require.NoError(t, err)
		assert.NotNil(t, gen)
	})

	t.Run("unsupported model", func(t *testing.T) {
		_, err := NewAnthropicGenerator(config.GenerationConfig{APIKey: "k", ModelID: "gpt-4"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.InvalidInput))
	})
}

func TestRenderSystemPrompt(t *testing.T) {
	t.Run("all sections in order", func(t *testing.T) {
		prompt := &core.PromptContext{
			Instructions: "You are the resort concierge.",
			ProfileFacts: []string{"Guest name: Claire", "Budget range: premium"},
			Patterns:     []string{"Offer the partner restaurant first"},
			Suggestions:  []string{"La Table du Marché (partner), French"},
		}
		rendered := RenderSystemPrompt(prompt)
		assert.Equal(t, "You are the resort concierge.\n\n"+
			"What we know about this guest:\n"+
			"- Guest name: Claire\n"+
			"- Budget range: premium\n\n"+
			"Approaches that work well:\n"+
			"- Offer the partner restaurant first\n\n"+
			"Current suggestions from the resort catalog:\n"+
			"- La Table du Marché (partner), French", rendered)
	})

	t.Run("empty sections are omitted", func(t *testing.T) {
		prompt := &core.PromptContext{Instructions: "You are the resort concierge."}
		assert.Equal(t, "You are the resort concierge.", RenderSystemPrompt(prompt))
	})
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, errors.GenerationRateLimited, codeForStatus(429))
	assert.Equal(t, errors.GenerationTimeout, codeForStatus(408))
	assert.Equal(t, errors.GenerationTimeout, codeForStatus(504))
	assert.Equal(t, errors.GenerationUnavailable, codeForStatus(500))
	assert.Equal(t, errors.GenerationUnavailable, codeForStatus(503))
	assert.Equal(t, errors.GenerationFailed, codeForStatus(400))
	assert.Equal(t, errors.GenerationFailed, codeForStatus(401))
}
