package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/daredevil-ai/memchat/internal/tools"
)

const (
	geminiChatModel      = "gemini-1.5-flash-latest"
	geminiEmbeddingModel = "text-embedding-004"
)

// GeminiProvider adapts the google generative-ai-go SDK to the Provider
// interface. Gemini returns tool calls as structured FunctionCall parts, so
// no text normalization is usually needed; the inline-tag fallback is still
// applied in case the model emits one as plain text.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(geminiEmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrapProviderError(fmt.Errorf("gemini embedding request failed: %w", err))
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	model := p.client.GenerativeModel(geminiChatModel)

	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{
			FunctionDeclarations: toFunctionDeclarations(req.Tools),
		}}
	}

	contents := turnsToContents(req.Turns)
	if len(contents) == 0 {
		return nil, fmt.Errorf("no turns to complete")
	}

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]

	resp, err := chat.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, wrapProviderError(fmt.Errorf("gemini SendMessage failed: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			return &Completion{
				Text:     strings.TrimSpace(text.String()),
				ToolCall: &ToolCall{Name: v.Name, Args: v.Args},
			}, nil
		default:
			log.Printf("Gemini response part was not text or function call: %T", part)
		}
	}

	// Normalize any inline tagged tool call left in the text.
	call, rest := ExtractInlineToolCall(text.String())
	return &Completion{Text: strings.TrimSpace(rest), ToolCall: call}, nil
}

func turnsToContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case "assistant":
			parts := []genai.Part{}
			if turn.Content != "" {
				parts = append(parts, genai.Text(turn.Content))
			}
			if turn.ToolCall != nil {
				parts = append(parts, genai.FunctionCall{Name: turn.ToolCall.Name, Args: turn.ToolCall.Args})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     turn.ToolName,
					Response: map[string]any{"content": turn.Content},
				}},
			})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(turn.Content)}})
		}
	}
	return contents
}

func toFunctionDeclarations(ts []tools.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.Parameters),
		})
	}
	return decls
}

// toGenaiSchema converts a JSON Schema object map into the genai.Schema
// tree. Only the subset our tools use is handled.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: toGenaiType(schema["type"])}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			if subMap, ok := sub.(map[string]any); ok {
				out.Properties[name] = toGenaiSchema(subMap)
			}
		}
	}
	switch required := schema["required"].(type) {
	case []string:
		out.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func toGenaiType(t any) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}
