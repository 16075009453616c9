package llms

import (
	"context"
	goerrors "errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/roomieai/concierge-go/pkg/config"
	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// AnthropicGenerator implements core.Generator against the Anthropic
// Messages API. The assembled context maps onto the API directly: the
// instruction, profile, pattern and suggestion sections become the system
// prompt, the windowed transcript becomes the message list.
type AnthropicGenerator struct {
	client      *anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
}

// NewAnthropicGenerator creates a generator from configuration. The API key
// falls back to ANTHROPIC_API_KEY when the config leaves it empty.
func NewAnthropicGenerator(cfg config.GenerationConfig) (*AnthropicGenerator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}
	if !isValidAnthropicModel(cfg.ModelID) {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported Anthropic model"),
			errors.Fields{"model": cfg.ModelID})
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicGenerator{
		client:      &client,
		model:       anthropic.Model(cfg.ModelID),
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

// isValidAnthropicModel checks if the model is a valid Anthropic model.
func isValidAnthropicModel(model string) bool {
	validPrefixes := []string{
		"claude-3",
		"claude-4",
		"claude-haiku",
		"claude-sonnet",
		"claude-opus",
	}
	for _, prefix := range validPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Generate implements core.Generator.
func (a *AnthropicGenerator) Generate(ctx context.Context, prompt *core.PromptContext) (*core.GenerationResult, error) {
	logger := logging.GetLogger()

	messages := make([]anthropic.MessageParam, 0, len(prompt.History)+1)
	for _, m := range prompt.Messages() {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		System:      []anthropic.TextBlockParam{{Text: RenderSystemPrompt(prompt)}},
		Messages:    messages,
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
	})
	if err != nil {
		return nil, a.wrapAPIError(ctx, err)
	}

	if message == nil {
		return nil, errors.New(errors.GenerationFailed, "received nil response from Anthropic API")
	}
	if len(message.Content) == 0 {
		return nil, errors.New(errors.GenerationFailed, "received empty content from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	usage := &core.TokenInfo{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	return &core.GenerationResult{Content: responseText, Usage: usage}, nil
}

// wrapAPIError maps transport failures onto the generation error taxonomy so
// callers can branch on retryability without knowing the provider.
func (a *AnthropicGenerator) wrapAPIError(ctx context.Context, err error) error {
	logger := logging.GetLogger()

	if cerr := errors.CheckContext(ctx, "generate response"); cerr != nil {
		return cerr
	}

	code := errors.GenerationFailed
	var apiErr *anthropic.Error
	if goerrors.As(err, &apiErr) {
		logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		code = codeForStatus(apiErr.StatusCode)
	}
	return errors.WithFields(
		errors.Wrap(err, code, "failed to generate response"),
		errors.Fields{"model": string(a.model), "max_tokens": a.maxTokens})
}

func codeForStatus(status int) errors.ErrorCode {
	switch {
	case status == 429:
		return errors.GenerationRateLimited
	case status == 408 || status == 504:
		return errors.GenerationTimeout
	case status >= 500:
		return errors.GenerationUnavailable
	default:
		return errors.GenerationFailed
	}
}

// RenderSystemPrompt flattens the non-transcript sections of the assembled
// context into one system prompt, in assembly order. Empty sections are
// omitted entirely.
func RenderSystemPrompt(prompt *core.PromptContext) string {
	var b strings.Builder
	b.WriteString(prompt.Instructions)

	writeSection := func(header string, lines []string) {
		if len(lines) == 0 {
			return
		}
		b.WriteString("\n\n")
		b.WriteString(header)
		for _, line := range lines {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
	}
	writeSection("What we know about this guest:", prompt.ProfileFacts)
	writeSection("Approaches that work well:", prompt.Patterns)
	writeSection("Current suggestions from the resort catalog:", prompt.Suggestions)

	return b.String()
}
