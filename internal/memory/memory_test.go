package memory

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daredevil-ai/memchat/internal/llm"
)

// fakeProvider embeds text as a normalized bag-of-words vector over a small
// vocabulary, so related texts score high and unrelated ones low.
type fakeProvider struct {
	distillText string
	distillErr  error
}

var vocabulary = []string{"coffee", "tea", "paris", "golang", "weather", "music"}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(vocabulary)+1)
	var norm float64
	for i, word := range vocabulary {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[len(vocabulary)] = 1 // texts with no vocabulary words are orthogonal to everything
		norm = 1
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	if f.distillErr != nil {
		return nil, f.distillErr
	}
	return &llm.Completion{Text: f.distillText}, nil
}

func TestAddAndSearch(t *testing.T) {
	provider := &fakeProvider{distillText: "User likes coffee in the morning"}
	s := NewStore(provider)
	ctx := context.Background()

	err := s.Add(ctx, "user-1", "I really like coffee", "Noted!")
	require.NoError(t, err)

	results, err := s.Search(ctx, "what do I drink? coffee?", "user-1", 3, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "User likes coffee in the morning", results[0].Text)
	assert.Greater(t, results[0].Score, float32(0.5))
}

func TestSearchScopedToUser(t *testing.T) {
	provider := &fakeProvider{distillText: "User likes coffee"}
	s := NewStore(provider)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "user-1", "I like coffee", "ok"))

	results, err := s.Search(ctx, "coffee", "user-2", 3, 0.0)
	require.NoError(t, err)
	assert.Empty(t, results, "another user's memories must be invisible")
}

func TestSearchFiltersLowScores(t *testing.T) {
	provider := &fakeProvider{distillText: "User likes tea"}
	s := NewStore(provider)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "user-1", "I like tea", "ok"))

	results, err := s.Search(ctx, "tell me about golang", "user-1", 3, 0.7)
	require.NoError(t, err)
	assert.Empty(t, results, "unrelated memories score below the threshold")
}

func TestSearchEmptyStore(t *testing.T) {
	s := NewStore(&fakeProvider{})
	results, err := s.Search(context.Background(), "anything", "user-1", 3, 0.7)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddNoneStoresNothing(t *testing.T) {
	provider := &fakeProvider{distillText: "NONE"}
	s := NewStore(provider)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "user-1", "hello", "hi"))

	results, err := s.Search(ctx, "hello", "user-1", 3, 0.0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddDistillFailureTruncatesRawByRunes(t *testing.T) {
	provider := &fakeProvider{distillErr: errors.New("model unavailable")}
	s := NewStore(provider)
	ctx := context.Background()

	// Three bytes per rune; a byte-based cut would leave a torn rune at the
	// end of the stored fallback.
	require.NoError(t, s.Add(ctx, "user-1", strings.Repeat("日", 400), "great"))

	results, err := s.Search(ctx, "unrelated", "user-1", 3, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, utf8.ValidString(results[0].Text), "stored memory must be valid UTF-8")
	assert.Len(t, []rune(results[0].Text), rawFallbackLimit)
}

func TestAddDistillFailureFallsBackToRaw(t *testing.T) {
	provider := &fakeProvider{distillErr: errors.New("model unavailable")}
	s := NewStore(provider)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "user-1", "I am learning golang", "great"))

	results, err := s.Search(ctx, "golang", "user-1", 3, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "golang")
}
