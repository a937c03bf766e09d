// Package llm abstracts the chat-completion and embedding providers behind a
// single interface so the reasoning pipeline never touches provider SDKs
// directly. Two adapters are provided: Gemini (google generative-ai-go) and
// Groq (OpenAI-compatible wire format via go-openai).
package llm

import (
	"context"
	"errors"

	"github.com/daredevil-ai/memchat/internal/tools"
)

// ErrExhausted marks rate-limit and payload-too-large provider responses.
// The pipeline translates it into a fixed, user-facing retry message.
var ErrExhausted = errors.New("llm provider rate limited or payload too large")

// Turn is one provider-agnostic entry in the running exchange.
// Role is "user", "assistant", or "tool". Assistant turns that invoked a
// tool carry the call; tool turns carry the observation with ToolName set.
type Turn struct {
	Role     string
	Content  string
	ToolCall *ToolCall
	ToolName string
}

// ToolCall is a normalized tool invocation emitted by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Request is a single completion round.
type Request struct {
	System string
	Turns  []Turn
	// Tools, when non-empty, enables tool-augmented reasoning. Providers
	// translate the definitions into their own schema format.
	Tools []tools.Tool
}

// Completion is the model's answer for one round: either final text, or a
// tool call the caller must execute and feed back as an observation.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// Provider is the chat-completion and embedding contract the pipeline,
// memory store, and document index consume.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}
