package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datafarmer/datafarmer/internal/generation"
	"google.golang.org/genai"
)

// decodeSchema converts an OpenAPI-style JSON schema document into a
// genai.Schema. Lower-case type names ("object", "string") are accepted.
func decodeSchema(raw json.RawMessage) (*genai.Schema, error) {
	var schema genai.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("%w: invalid response schema: %w", generation.ErrInvalidConfig, err)
	}
	normalizeTypes(&schema)
	return &schema, nil
}

func normalizeTypes(s *genai.Schema) {
	if s == nil {
		return
	}
	s.Type = genai.Type(strings.ToUpper(string(s.Type)))
	normalizeTypes(s.Items)
	for _, prop := range s.Properties {
		normalizeTypes(prop)
	}
	for _, sub := range s.AnyOf {
		normalizeTypes(sub)
	}
}
