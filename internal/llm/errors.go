package llm

import (
	"fmt"
	"strings"
)

// exhaustionMarkers are the substrings providers use to signal rate limiting
// or oversized payloads. Matched case-insensitively against the error text.
var exhaustionMarkers = []string{
	"rate_limit_exceeded",
	"rate limit",
	"resource_exhausted",
	"request too large",
	"status 429",
	"status code: 429",
	"status 413",
	"status code: 413",
}

// wrapProviderError maps rate-limit and payload-size failures onto
// ErrExhausted so callers can errors.Is on them without knowing the provider.
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range exhaustionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrExhausted, err)
		}
	}
	return err
}
