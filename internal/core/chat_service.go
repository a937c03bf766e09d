package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/daredevil-ai/memchat/internal/llm"
	"github.com/daredevil-ai/memchat/internal/memory"
	"github.com/daredevil-ai/memchat/internal/store"
	"github.com/daredevil-ai/memchat/internal/tools"
)

const (
	memoryLimit        = 3
	memoryMinScore     = 0.7
	memorySnippetLimit = 200

	// maxToolRounds bounds the reason/act loop; after that the model is
	// asked for a final answer without tools.
	maxToolRounds = 4

	// historyLimit is how many trailing transcript messages go into the
	// prompt.
	historyLimit = 6

	memorySearchTimeout = 10 * time.Second
	memoryWriteTimeout  = 30 * time.Second

	basePrompt = "You are a helpful assistant. " +
		"When using tools, strictly follow the JSON tool calling format. " +
		"Answer the user's current question directly and accurately."

	rateLimitMessage  = "I'm thinking too hard right now and hit a speed limit. Please wait about 30 seconds and try again."
	apologyMessage    = "I'm sorry, I encountered an error while processing your request. Please try again."
	emptyReplyMessage = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

// ErrConversationNotFound covers both a missing conversation and one owned
// by another user; callers must not be able to tell the difference.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore is the transcript persistence the pipeline needs.
type ConversationStore interface {
	CreateConversation(userID string) (*store.Conversation, error)
	GetConversation(conversationID, userID string) (*store.Conversation, error)
	AppendMessagePair(conversationID, userID, userMsg, assistantMsg string) error
}

// MemoryStore is the long-term memory contract the pipeline consumes.
// Failures are non-fatal: the pipeline degrades to an empty memory set.
type MemoryStore interface {
	Search(ctx context.Context, query, userID string, limit int, minScore float32) ([]memory.Result, error)
	Add(ctx context.Context, userID, userMsg, assistantMsg string) error
}

// ChatService runs the routing and reasoning pipeline:
// classify -> retrieve context -> reason (direct or tool-augmented) ->
// persist -> respond.
type ChatService struct {
	store     ConversationStore
	memory    MemoryStore
	provider  llm.Provider
	docs      tools.DocumentSearcher
	baseTools []tools.Tool
}

func NewChatService(cs ConversationStore, mem MemoryStore, provider llm.Provider, docs tools.DocumentSearcher, baseTools []tools.Tool) *ChatService {
	return &ChatService{
		store:     cs,
		memory:    mem,
		provider:  provider,
		docs:      docs,
		baseTools: baseTools,
	}
}

// HandleMessage processes one chat turn and returns the reply plus the
// conversation id (freshly created when none was supplied). The only error
// it returns is ErrConversationNotFound / store failures on conversation
// creation; downstream failures degrade into user-facing text instead.
func (s *ChatService) HandleMessage(ctx context.Context, userID, conversationID, message string) (string, string, error) {
	conv, err := s.ensureConversation(userID, conversationID)
	if err != nil {
		return "", "", err
	}

	kind := Classify(message)
	log.Printf("Classified query as %s for conversation %s", kind, conv.ID)

	memories := s.retrieveMemories(ctx, kind, userID, message)
	system := buildSystemPrompt(memories)
	turns := append(historyTurns(conv.Messages), llm.Turn{Role: "user", Content: message})

	var reply string
	if kind == KindFactual {
		reply, err = s.reasonDirect(ctx, system, turns)
	} else {
		reply, err = s.reasonWithTools(ctx, system, turns, conv.ID)
	}
	if err != nil {
		if errors.Is(err, llm.ErrExhausted) {
			log.Printf("Provider exhausted for conversation %s: %v", conv.ID, err)
			reply = rateLimitMessage
		} else {
			log.Printf("Error generating reply for conversation %s: %v", conv.ID, err)
			reply = apologyMessage
		}
	}
	if reply == "" {
		reply = emptyReplyMessage
	}

	// The user already has their answer; persistence failures are logged,
	// not surfaced.
	if err := s.store.AppendMessagePair(conv.ID, userID, message, reply); err != nil {
		log.Printf("Failed to persist message pair for conversation %s: %v", conv.ID, err)
	}

	// Best-effort memory write, detached from the request lifetime.
	go func() {
		memCtx, cancel := context.WithTimeout(context.Background(), memoryWriteTimeout)
		defer cancel()
		if err := s.memory.Add(memCtx, userID, message, reply); err != nil {
			log.Printf("Failed to save memory for user %s: %v", userID, err)
		}
	}()

	return reply, conv.ID, nil
}

// ensureConversation creates a conversation when no id was supplied and
// verifies ownership otherwise.
func (s *ChatService) ensureConversation(userID, conversationID string) (*store.Conversation, error) {
	if conversationID == "" {
		conv, err := s.store.CreateConversation(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.store.GetConversation(conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// retrieveMemories queries long-term memory unless the query is factual
// (answerable from model knowledge alone; skipping saves a retrieval round
// trip). Failures degrade to an empty set.
func (s *ChatService) retrieveMemories(ctx context.Context, kind QueryKind, userID, message string) []string {
	if kind == KindFactual {
		log.Printf("Factual query, skipping memory retrieval")
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, memorySearchTimeout)
	defer cancel()

	results, err := s.memory.Search(searchCtx, message, userID, memoryLimit, memoryMinScore)
	if err != nil {
		log.Printf("Memory search failed, proceeding without memories: %v", err)
		return nil
	}

	var snippets []string
	for _, res := range results {
		text := res.Text
		if runes := []rune(text); len(runes) > memorySnippetLimit {
			text = string(runes[:memorySnippetLimit])
		}
		snippets = append(snippets, text)
	}
	return snippets
}

func buildSystemPrompt(memories []string) string {
	if len(memories) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nCONTEXT FROM PREVIOUS CONVERSATIONS:\n")
	for _, m := range memories {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	b.WriteString("\nUse this context ONLY if relevant to the current question. ")
	b.WriteString("DO NOT repeat old answers. Always prioritize answering the user's current question.")
	return b.String()
}

func historyTurns(messages []store.Message) []llm.Turn {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	turns := make([]llm.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, llm.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// reasonDirect is the tool-free invocation used for factual queries.
func (s *ChatService) reasonDirect(ctx context.Context, system string, turns []llm.Turn) (string, error) {
	completion, err := s.provider.Complete(ctx, llm.Request{System: system, Turns: turns})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

// reasonWithTools runs the reason/act loop: the model may emit a tool call,
// which is executed and fed back as an observation before the next round.
func (s *ChatService) reasonWithTools(ctx context.Context, system string, turns []llm.Turn, conversationID string) (string, error) {
	registry := tools.NewRegistry(s.baseTools...)
	registry.Register(tools.NewDocumentSearchTool(s.docs, conversationID))
	toolSet := registry.List()

	for round := 0; round < maxToolRounds; round++ {
		completion, err := s.provider.Complete(ctx, llm.Request{System: system, Turns: turns, Tools: toolSet})
		if err != nil {
			return "", err
		}
		if completion.ToolCall == nil {
			return completion.Text, nil
		}

		call := completion.ToolCall
		log.Printf("Executing tool %s for conversation %s", call.Name, conversationID)
		observation := registry.Execute(ctx, call.Name, call.Args)

		turns = append(turns,
			llm.Turn{Role: "assistant", Content: completion.Text, ToolCall: call},
			llm.Turn{Role: "tool", Content: observation, ToolName: call.Name},
		)
	}

	// Round limit reached: ask for a final answer without tools.
	completion, err := s.provider.Complete(ctx, llm.Request{System: system, Turns: turns})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}
