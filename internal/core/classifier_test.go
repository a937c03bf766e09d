package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  QueryKind
	}{
		{"What is the capital of France?", KindFactual},
		{"Define entropy", KindFactual},
		{"Explain how does a compiler work", KindFactual},
		{"Who is Marie Curie", KindFactual},
		{"hey, how are you doing?", KindConversational},
		{"remember my favorite color is blue", KindConversational},
		{"What's the weather like?", KindRealtime},
		{"latest football results please", KindRealtime},
		{"bitcoin price", KindRealtime},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.query), "query: %s", c.query)
	}
}

func TestClassifyRealtimeBeatsFactual(t *testing.T) {
	// Matching both sets must never be treated as purely factual.
	assert.Equal(t, KindRealtime, Classify("What is the weather today?"))
	assert.Equal(t, KindRealtime, Classify("What is the latest Go release?"))
}

func TestClassifyCaseInsensitive(t *testing.T) {
	assert.Equal(t, KindFactual, Classify("WHAT IS love"))
	assert.Equal(t, KindRealtime, Classify("WEATHER in Berlin"))
}
