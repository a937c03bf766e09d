package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/daredevil-ai/memchat/internal/tools"
)

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	groqChatModel = "llama-3.3-70b-versatile"

	// Groq does not serve an embeddings endpoint, so embeddings go to a
	// separate OpenAI-compatible service.
	defaultEmbeddingBaseURL = "https://api.openai.com/v1"
	defaultEmbeddingModel   = "text-embedding-3-small"
)

// GroqProvider speaks the OpenAI-compatible wire format via go-openai:
// chat completions against Groq's endpoint, embeddings against a separate
// configurable OpenAI-compatible endpoint. Groq-hosted llama models
// sometimes emit tool calls as inline tagged text instead of the structured
// tool_calls field, so text responses are run through the inline
// normalization as a fallback.
type GroqProvider struct {
	chat           *openai.Client
	embed          *openai.Client
	embeddingModel string
}

// NewGroqProvider builds the adapter. embeddingBaseURL and embeddingModel
// fall back to OpenAI's embeddings endpoint and text-embedding-3-small when
// empty; embeddingAPIKey is the key for that endpoint.
func NewGroqProvider(apiKey, embeddingAPIKey, embeddingBaseURL, embeddingModel string) *GroqProvider {
	chatCfg := openai.DefaultConfig(apiKey)
	chatCfg.BaseURL = groqBaseURL

	if embeddingBaseURL == "" {
		embeddingBaseURL = defaultEmbeddingBaseURL
	}
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	embedCfg := openai.DefaultConfig(embeddingAPIKey)
	embedCfg.BaseURL = embeddingBaseURL

	return &GroqProvider{
		chat:           openai.NewClientWithConfig(chatCfg),
		embed:          openai.NewClientWithConfig(embedCfg),
		embeddingModel: embeddingModel,
	}
}

func (p *GroqProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.embed.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, wrapProviderError(fmt.Errorf("embedding request failed: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}
	return resp.Data[0].Embedding, nil
}

func (p *GroqProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.Turns {
		messages = append(messages, turnToOpenAI(turn))
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    groqChatModel,
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.chat.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wrapProviderError(fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{} // tolerate malformed argument JSON
			}
		}
		return &Completion{
			Text:     strings.TrimSpace(msg.Content),
			ToolCall: &ToolCall{Name: tc.Function.Name, Args: args},
		}, nil
	}

	// No structured tool call; check for the inline tagged form.
	call, rest := ExtractInlineToolCall(msg.Content)
	return &Completion{Text: strings.TrimSpace(rest), ToolCall: call}, nil
}

func turnToOpenAI(turn Turn) openai.ChatCompletionMessage {
	switch turn.Role {
	case "assistant":
		msg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: turn.Content,
		}
		if turn.ToolCall != nil {
			argBytes, _ := json.Marshal(turn.ToolCall.Args)
			msg.ToolCalls = []openai.ToolCall{{
				ID:   syntheticCallID(turn.ToolCall.Name),
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      turn.ToolCall.Name,
					Arguments: string(argBytes),
				},
			}}
		}
		return msg
	case "tool":
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    turn.Content,
			Name:       turn.ToolName,
			ToolCallID: syntheticCallID(turn.ToolName),
		}
	default:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: turn.Content,
		}
	}
}

func toOpenAITools(ts []tools.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(ts))
	for _, t := range ts {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// syntheticCallID pairs assistant tool calls with their observations. Our
// generic turns do not carry provider call ids, so a deterministic one is
// derived from the tool name (one in-flight call per round).
func syntheticCallID(name string) string {
	return "call_" + name
}
