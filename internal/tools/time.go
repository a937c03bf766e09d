package tools

import (
	"context"
	"time"
)

// NewCurrentTimeTool reports the server's wall-clock time. The clock is
// injectable for tests; pass nil for time.Now.
func NewCurrentTimeTool(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Name:        "get_current_time",
		Description: "Get the current real-time date and time",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Run: func(ctx context.Context, args map[string]any) string {
			return now().Format("2006-01-02 15:04:05")
		},
	}
}
