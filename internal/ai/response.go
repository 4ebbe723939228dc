// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON payload of a model reply. Replies wrapped in
// a ```json fence (or a bare ``` fence) are unwrapped; anything else is
// returned trimmed.
func ExtractJSON(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

// DecodeJSON unmarshals the JSON payload of a model reply into v.
func DecodeJSON(text string, v any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("parsing AI response JSON: %w", err)
	}
	return nil
}
