package tools

import (
	"context"
	"fmt"
)

// DocumentSearcher is the slice of the ephemeral document index the tool
// needs. Search returns formatted excerpts and whether anything was found.
type DocumentSearcher interface {
	Search(ctx context.Context, query, conversationID string) (string, bool)
}

// NewDocumentSearchTool searches the documents uploaded to one conversation.
// The tool is bound per request, since the conversation id is not something
// the model should supply.
func NewDocumentSearchTool(index DocumentSearcher, conversationID string) Tool {
	return Tool{
		Name:        "search_documents",
		Description: "Search the documents the user uploaded to this conversation. Use this when the question is about an uploaded file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for in the uploaded documents",
				},
			},
			"required": []string{"query"},
		},
		Run: func(ctx context.Context, args map[string]any) string {
			query := StringArg(args, "query")
			if query == "" {
				return "Error: search_documents requires a 'query' argument."
			}
			excerpts, ok := index.Search(ctx, query, conversationID)
			if !ok {
				return "No documents are available for this conversation. They may have expired (uploads are kept for 30 minutes) or nothing relevant was found."
			}
			return fmt.Sprintf("Relevant excerpts from the uploaded document:\n\n%s", excerpts)
		},
	}
}
