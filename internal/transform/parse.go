package transform

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripCodeFence removes a surrounding markdown code fence from a model
// response, if present. Models frequently wrap JSON output in ```json
// fences despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 8 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// decodeJSON parses a model response into target, tolerating code fences
// and stray prose before the first brace.
func decodeJSON(response string, target any) error {
	s := stripCodeFence(response)

	if err := json.Unmarshal([]byte(s), target); err == nil {
		return nil
	}

	// Fall back to the outermost JSON object in the response.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), target); err != nil {
		return fmt.Errorf("parse response JSON: %w", err)
	}
	return nil
}
