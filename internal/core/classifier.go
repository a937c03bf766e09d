package core

import "strings"

// QueryKind routes a message through the pipeline: it decides whether
// long-term memory is consulted and whether tools are offered to the model.
type QueryKind int

const (
	// KindConversational gets memory retrieval and tool-augmented reasoning.
	KindConversational QueryKind = iota
	// KindFactual is answerable from model knowledge alone: memory retrieval
	// is skipped and the model runs tool-free.
	KindFactual
	// KindRealtime needs live data: memory retrieval and tools both stay on.
	KindRealtime
)

func (k QueryKind) String() string {
	switch k {
	case KindFactual:
		return "factual"
	case KindRealtime:
		return "realtime"
	default:
		return "conversational"
	}
}

// The classifier is a rule table, not a model: two static keyword sets with
// a deterministic tie-break, kept swappable for a learned classifier later.
var (
	realtimeKeywords = []string{
		"today", "latest", "weather", "price", "score",
		"current", "now", "news", "stock", "happening",
	}
	factualKeywords = []string{
		"what is", "define", "explain", "tell me about", "who is", "how does",
	}
)

// Classify performs a case-insensitive substring match against both keyword
// sets. A realtime match always wins: such queries are never treated as
// purely factual, no matter what else matches.
func Classify(query string) QueryKind {
	lower := strings.ToLower(query)

	for _, kw := range realtimeKeywords {
		if strings.Contains(lower, kw) {
			return KindRealtime
		}
	}
	for _, kw := range factualKeywords {
		if strings.Contains(lower, kw) {
			return KindFactual
		}
	}
	return KindConversational
}
