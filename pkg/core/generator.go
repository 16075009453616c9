package core

import "context"

// TokenInfo tracks token usage reported by the generation collaborator.
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerationResult is the opaque output of the generation collaborator.
type GenerationResult struct {
	Content string
	Usage   *TokenInfo
}

// Generator is the external language-model collaborator. The engine treats
// it as a black box: assembled context in, generated text plus usage out.
// Implementations must honor ctx cancellation and deadlines.
type Generator interface {
	Generate(ctx context.Context, prompt *PromptContext) (*GenerationResult, error)
}

// Message is a single entry in the rendered transcript.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptContext is the ordered structure the assembler produces for a single
// turn: static instructions, profile facts, trusted pattern descriptions,
// optional catalog suggestions, the chronological window as alternating
// entries, then the new message.
type PromptContext struct {
	Instructions string
	ProfileFacts []string
	Patterns     []string
	Suggestions  []string
	History      []Message
	NewMessage   string

	Snapshot ContextSnapshot
}

// Messages renders the transcript part of the context: the windowed history
// in causal order followed by the new inbound message.
func (p *PromptContext) Messages() []Message {
	msgs := make([]Message, 0, len(p.History)+1)
	msgs = append(msgs, p.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: p.NewMessage})
	return msgs
}
