// Package docindex is the in-memory, per-conversation vector index of
// uploaded document chunks. Entries live for 30 minutes; expiry is enforced
// lazily at the start of every operation, not by a background timer.
package docindex

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTTL is how long an uploaded document stays searchable.
	DefaultTTL = 30 * time.Minute

	chunkSize    = 1000
	chunkOverlap = 200

	// searchTopK is how many chunks a search returns at most.
	searchTopK = 3

	// embedConcurrency bounds parallel embedding calls during ingest.
	embedConcurrency = 4
)

// Embedder turns text into a vector. Satisfied by llm.Provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Status describes the current index entry for a conversation.
type Status struct {
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type entry struct {
	collection *chromem.Collection
	filename   string
	chunkCount int
	expiresAt  time.Time
}

// Index maps conversation ids to their document entry. Safe for concurrent
// sweep-and-insert; a new upload for the same conversation replaces the old
// entry wholesale (last writer wins).
type Index struct {
	mu       sync.Mutex
	entries  map[string]*entry
	embedder Embedder
	ttl      time.Duration
	now      func() time.Time
}

func NewIndex(embedder Embedder) *Index {
	return &Index{
		entries:  make(map[string]*entry),
		embedder: embedder,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
}

// newIndexWithClock is the test constructor with injectable time.
func newIndexWithClock(embedder Embedder, ttl time.Duration, now func() time.Time) *Index {
	idx := NewIndex(embedder)
	idx.ttl = ttl
	idx.now = now
	return idx
}

// sweep evicts expired entries. Callers must hold the lock.
func (i *Index) sweep() {
	cutoff := i.now()
	for convID, e := range i.entries {
		if cutoff.After(e.expiresAt) {
			log.Printf("Evicting expired document index for conversation %s (%s)", convID, e.filename)
			delete(i.entries, convID)
		}
	}
}

// Ingest extracts, chunks, embeds, and indexes a file for a conversation.
// Any existing entry for the conversation is replaced, never merged.
func (i *Index) Ingest(ctx context.Context, conversationID, filename string, data []byte) (*Status, error) {
	i.mu.Lock()
	i.sweep()
	i.mu.Unlock()

	text, err := ExtractText(filename, data)
	if err != nil {
		return nil, err
	}

	chunks := ChunkText(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("file %q appears to be empty", filename)
	}

	embeddings, err := i.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document chunks: %w", err)
	}

	// Each entry gets its own single-collection database so replacement and
	// eviction are just dropping the reference.
	db := chromem.NewDB()
	col, err := db.CreateCollection("chunks", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create document collection: %w", err)
	}
	for n, chunk := range chunks {
		doc := chromem.Document{
			ID:        strconv.Itoa(n),
			Content:   chunk,
			Embedding: embeddings[n],
			Metadata: map[string]string{
				"filename": filename,
				"chunk":    strconv.Itoa(n),
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to index chunk %d: %w", n, err)
		}
	}

	e := &entry{
		collection: col,
		filename:   filename,
		chunkCount: len(chunks),
		expiresAt:  i.now().Add(i.ttl),
	}

	i.mu.Lock()
	i.entries[conversationID] = e
	i.mu.Unlock()

	return &Status{Filename: e.filename, ChunkCount: e.chunkCount, ExpiresAt: e.expiresAt}, nil
}

func (i *Index) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	embeddings := make([][]float32, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for n, chunk := range chunks {
		g.Go(func() error {
			vec, err := i.embedder.Embed(gCtx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", n, err)
			}
			embeddings[n] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Search returns the top chunks for the query formatted as excerpts, or
// ("", false) when the conversation has no live index or nothing relevant.
func (i *Index) Search(ctx context.Context, query, conversationID string) (string, bool) {
	i.mu.Lock()
	i.sweep()
	e, ok := i.entries[conversationID]
	i.mu.Unlock()
	if !ok {
		return "", false
	}

	embedding, err := i.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("Document search embedding failed for conversation %s: %v", conversationID, err)
		return "", false
	}

	n := searchTopK
	if count := e.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return "", false
	}

	results, err := e.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		log.Printf("Document search failed for conversation %s: %v", conversationID, err)
		return "", false
	}
	if len(results) == 0 {
		return "", false
	}

	var excerpts []string
	for pos, res := range results {
		excerpts = append(excerpts, fmt.Sprintf("[Excerpt %d from %s]:\n%s", pos+1, e.filename, res.Content))
	}
	return joinExcerpts(excerpts), true
}

// Status reports the live entry for a conversation, if any.
func (i *Index) Status(conversationID string) (*Status, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sweep()

	e, ok := i.entries[conversationID]
	if !ok {
		return nil, false
	}
	return &Status{Filename: e.filename, ChunkCount: e.chunkCount, ExpiresAt: e.expiresAt}, true
}

func joinExcerpts(excerpts []string) string {
	out := ""
	for n, ex := range excerpts {
		if n > 0 {
			out += "\n\n"
		}
		out += ex
	}
	return out
}
