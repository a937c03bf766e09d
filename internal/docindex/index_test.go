package docindex

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder embeds text as a normalized bag-of-words vector over a small
// vocabulary so related texts land near each other.
type wordEmbedder struct{}

var testVocabulary = []string{"revenue", "profit", "cats", "dogs", "weather"}

func (wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(testVocabulary)+1)
	var norm float64
	for i, word := range testVocabulary {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[len(testVocabulary)] = 1
		norm = 1
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestIndex() (*Index, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	return newIndexWithClock(wordEmbedder{}, DefaultTTL, clock.Now), clock
}

func TestIngestAndSearch(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()

	status, err := idx.Ingest(ctx, "conv-1", "report.txt", []byte("The annual revenue was 42 million dollars."))
	require.NoError(t, err)
	assert.Equal(t, "report.txt", status.Filename)
	assert.Equal(t, 1, status.ChunkCount)

	excerpts, ok := idx.Search(ctx, "what was the revenue?", "conv-1")
	require.True(t, ok)
	assert.Contains(t, excerpts, "[Excerpt 1 from report.txt]:")
	assert.Contains(t, excerpts, "42 million")
}

func TestSearchAfterTTLReturnsNothing(t *testing.T) {
	idx, clock := newTestIndex()
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "conv-1", "report.txt", []byte("The revenue was high."))
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)

	_, ok := idx.Search(ctx, "revenue", "conv-1")
	assert.False(t, ok, "expired entries must be unreachable")

	_, ok = idx.Status("conv-1")
	assert.False(t, ok)
}

func TestIngestReplacesWholesale(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "conv-1", "first.txt", []byte("All about cats."))
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "conv-1", "second.txt", []byte("All about the weather."))
	require.NoError(t, err)

	status, ok := idx.Status("conv-1")
	require.True(t, ok)
	assert.Equal(t, "second.txt", status.Filename)

	excerpts, ok := idx.Search(ctx, "weather", "conv-1")
	require.True(t, ok)
	assert.Contains(t, excerpts, "second.txt")
	assert.NotContains(t, excerpts, "cats")
}

func TestIngestUnsupportedType(t *testing.T) {
	idx, _ := newTestIndex()

	_, err := idx.Ingest(context.Background(), "conv-1", "image.png", []byte("binary"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, ok := idx.Status("conv-1")
	assert.False(t, ok, "a rejected upload must not leave state behind")
}

func TestSearchUnknownConversation(t *testing.T) {
	idx, _ := newTestIndex()
	_, ok := idx.Search(context.Background(), "anything", "conv-404")
	assert.False(t, ok)
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("a", 950) + strings.Repeat("b", 950)
	chunks := ChunkText(text, 1000, 200)
	require.Len(t, chunks, 3)
	assert.Len(t, []rune(chunks[0]), 1000)

	// The overlap region appears in consecutive chunks, so content near a
	// boundary is retrievable from at least one chunk.
	tail := chunks[0][len(chunks[0])-200:]
	assert.True(t, strings.HasPrefix(chunks[1], tail))
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("short text", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])

	assert.Nil(t, ChunkText("   ", 1000, 200))
}

func TestExtractTextByExtension(t *testing.T) {
	text, err := ExtractText("notes.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = ExtractText("archive.zip", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
