// Package memory is the long-term, per-user memory store. Exchanges are
// distilled to short memory sentences by the language model, embedded, and
// kept in an embedded chromem-go vector database with one collection per
// user, so retrieval can never cross user boundaries.
package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"

	"github.com/daredevil-ai/memchat/internal/llm"
)

const distillSystemPrompt = "You maintain a long-term memory of facts about a user. " +
	"Given one exchange between the user and an assistant, write a single short sentence " +
	"in the third person recording anything worth remembering about the user " +
	"(preferences, facts about them, ongoing plans). " +
	"If the exchange contains nothing worth remembering, reply with exactly NONE. " +
	"Reply with only the memory sentence or NONE, nothing else."

// rawFallbackLimit bounds the raw exchange stored when distillation fails.
const rawFallbackLimit = 300

// Result is one retrieved memory snippet with its similarity score.
type Result struct {
	Text  string
	Score float32
}

type Store struct {
	db       *chromem.DB
	provider llm.Provider
}

func NewStore(provider llm.Provider) *Store {
	return &Store{
		db:       chromem.NewDB(),
		provider: provider,
	}
}

func (s *Store) collection(userID string) (*chromem.Collection, error) {
	// One collection per user keeps retrieval scoped by construction.
	return s.db.GetOrCreateCollection(fmt.Sprintf("user_%s", userID), nil, nil)
}

// Search embeds the query and returns up to limit memories for this user
// scoring at or above minScore, best first.
func (s *Store) Search(ctx context.Context, query, userID string, limit int, minScore float32) ([]Result, error) {
	col, err := s.collection(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory collection: %w", err)
	}

	n := limit
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	embedding, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed memory query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memory query failed: %w", err)
	}

	var memories []Result
	for _, res := range results {
		if res.Similarity < minScore {
			continue
		}
		memories = append(memories, Result{Text: res.Content, Score: res.Similarity})
	}
	return memories, nil
}

// Add distills the exchange into a memory sentence, embeds it, and stores
// it under the user's collection. A distillation failure falls back to
// storing the truncated raw exchange; a NONE verdict stores nothing.
func (s *Store) Add(ctx context.Context, userID, userMsg, assistantMsg string) error {
	text := s.distill(ctx, userMsg, assistantMsg)
	if text == "" {
		return nil // Nothing worth remembering.
	}

	embedding, err := s.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed memory: %w", err)
	}

	col, err := s.collection(userID)
	if err != nil {
		return fmt.Errorf("failed to open memory collection: %w", err)
	}

	doc := chromem.Document{
		ID:        uuid.NewString(),
		Content:   text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id":    userID,
			"created_at": time.Now().Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

func (s *Store) distill(ctx context.Context, userMsg, assistantMsg string) string {
	exchange := fmt.Sprintf("User: %s\nAssistant: %s", userMsg, assistantMsg)

	completion, err := s.provider.Complete(ctx, llm.Request{
		System: distillSystemPrompt,
		Turns:  []llm.Turn{{Role: "user", Content: exchange}},
	})
	if err != nil {
		log.Printf("Memory distillation failed, storing raw exchange: %v", err)
		if runes := []rune(exchange); len(runes) > rawFallbackLimit {
			exchange = string(runes[:rawFallbackLimit])
		}
		return exchange
	}

	text := completion.Text
	if text == "" || text == "NONE" {
		return ""
	}
	return text
}
