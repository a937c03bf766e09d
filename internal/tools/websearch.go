package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultSearchEndpoint = "https://api.duckduckgo.com/"

const maxSearchResults = 3

// duckDuckGoResponse is the subset of the Instant Answer API we use.
type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// NewWebSearchTool queries the DuckDuckGo Instant Answer API and renders the
// top results as source + snippet lines. endpoint overrides the API base URL
// for tests; pass "" for the real service.
func NewWebSearchTool(client *http.Client, endpoint string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	return Tool{
		Name:        "web_search",
		Description: "Search the web for current information. Use this for questions about recent events, live data, or anything not in your training data.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		Run: func(ctx context.Context, args map[string]any) string {
			query := StringArg(args, "query")
			if query == "" {
				return "Error: web_search requires a 'query' argument."
			}

			reqURL := endpoint + "?" + url.Values{
				"q":           {query},
				"format":      {"json"},
				"no_redirect": {"1"},
				"no_html":     {"1"},
			}.Encode()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return fmt.Sprintf("Error: could not build search request: %v", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Sprintf("Error: web search failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Sprintf("Error: web search returned status %d.", resp.StatusCode)
			}

			var body duckDuckGoResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Sprintf("Error: could not parse search response: %v", err)
			}

			var results []string
			if body.AbstractText != "" {
				results = append(results, fmt.Sprintf("Source: %s\nSnippet: %s", body.AbstractURL, body.AbstractText))
			}
			for _, topic := range body.RelatedTopics {
				if len(results) >= maxSearchResults {
					break
				}
				if topic.Text == "" {
					continue
				}
				results = append(results, fmt.Sprintf("Source: %s\nSnippet: %s", topic.FirstURL, topic.Text))
			}

			if len(results) == 0 {
				return fmt.Sprintf("No web results found for '%s'.", query)
			}
			return strings.Join(results, "\n\n")
		},
	}
}
