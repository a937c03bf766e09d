package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const defaultWikipediaEndpoint = "https://en.wikipedia.org/api/rest_v1/page/summary/"

type wikipediaSummary struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

// NewWikipediaTool fetches an article summary from the Wikipedia REST API.
// Disambiguation pages and missing pages are distinct, reported outcomes
// rather than generic errors, so the model can refine its query.
func NewWikipediaTool(client *http.Client, endpoint string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = defaultWikipediaEndpoint
	}
	return Tool{
		Name:        "wikipedia_summary",
		Description: "Look up an encyclopedia summary for a topic, person, or place on Wikipedia.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "The topic to look up, e.g. 'Alan Turing'",
				},
			},
			"required": []string{"topic"},
		},
		Run: func(ctx context.Context, args map[string]any) string {
			topic := StringArg(args, "topic")
			if topic == "" {
				return "Error: wikipedia_summary requires a 'topic' argument."
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+url.PathEscape(topic), nil)
			if err != nil {
				return fmt.Sprintf("Error: could not build Wikipedia request: %v", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Sprintf("Error: Wikipedia lookup failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return fmt.Sprintf("No Wikipedia page found for '%s'. Try a different or more specific topic.", topic)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Sprintf("Error: Wikipedia returned status %d.", resp.StatusCode)
			}

			var summary wikipediaSummary
			if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
				return fmt.Sprintf("Error: could not parse Wikipedia response: %v", err)
			}

			if summary.Type == "disambiguation" {
				return fmt.Sprintf("'%s' is ambiguous on Wikipedia and may refer to several things. Ask the user to be more specific.", topic)
			}
			if summary.Extract == "" {
				return fmt.Sprintf("The Wikipedia page for '%s' has no summary text.", topic)
			}
			return fmt.Sprintf("%s: %s", summary.Title, summary.Extract)
		},
	}
}
