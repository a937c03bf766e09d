package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Some providers (notably Groq-hosted llama models) occasionally emit tool
// calls as inline tagged text instead of the structured tool_calls field:
//
//	<function=get_current_time {"timezone": "UTC"}>
//
// inlineToolCallPattern extracts the function name and the optional JSON
// argument blob from that form.
var inlineToolCallPattern = regexp.MustCompile(`<function=([a-zA-Z0-9_\-]+)\s*(\{[\s\S]*?\})?>`)

// ExtractInlineToolCall normalizes an inline tagged tool call out of model
// text. Returns the call and the text with the tag stripped, or (nil, text)
// when no tag is present. Absent or malformed argument JSON is tolerated by
// substituting an empty argument set.
func ExtractInlineToolCall(text string) (*ToolCall, string) {
	match := inlineToolCallPattern.FindStringSubmatch(text)
	if match == nil {
		return nil, text
	}

	args := map[string]any{}
	if match[2] != "" {
		if err := json.Unmarshal([]byte(match[2]), &args); err != nil {
			args = map[string]any{}
		}
	}

	stripped := strings.TrimSpace(inlineToolCallPattern.ReplaceAllString(text, ""))
	return &ToolCall{Name: match[1], Args: args}, stripped
}
