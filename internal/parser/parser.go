// Package parser extracts structured JSON payloads from free-form model output.
//
// Models asked for JSON usually wrap it in a fenced markdown block, often
// after some prose. ExtractJSON takes the last such block and decodes it.
// Parse errors are always distinct from transport errors: they wrap ErrParse.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrParse is the parent of every error returned by this package.
	ErrParse = errors.New("failed to parse model output")

	// ErrNoJSON is returned when the text contains no fenced block.
	ErrNoJSON = fmt.Errorf("%w: no fenced JSON block found", ErrParse)

	// ErrInvalidJSON is returned when the selected block is not valid JSON.
	ErrInvalidJSON = fmt.Errorf("%w: invalid JSON", ErrParse)
)

// fencedBlock matches ```json ... ``` and bare ``` ... ``` blocks.
var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// LastBlock returns the trimmed contents of the last fenced block in text.
func LastBlock(text string) (string, error) {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", ErrNoJSON
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), nil
}

// ExtractJSON decodes the last fenced block of text into a JSON object.
func ExtractJSON(text string) (map[string]any, error) {
	var out map[string]any
	if err := ExtractInto(text, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractInto decodes the last fenced block of text into v.
func ExtractInto(text string, v any) error {
	block, err := LastBlock(text)
	if err != nil {
		return err
	}
	return decode(block, v)
}

func decode(block string, v any) error {
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

// ExtractJSONLenient behaves like ExtractJSON but runs Repair on the payload
// when strict decoding fails. Without a fenced block it repairs the text from
// its first opening brace. The result is best effort.
func ExtractJSONLenient(text string) (map[string]any, error) {
	out, err := ExtractJSON(text)
	if err == nil {
		return out, nil
	}

	var candidate string
	switch {
	case errors.Is(err, ErrNoJSON):
		start := strings.IndexByte(text, '{')
		if start < 0 {
			return nil, err
		}
		candidate = text[start:]
	default:
		// LastBlock cannot fail here: the strict pass found a block.
		candidate, _ = LastBlock(text)
	}

	out = nil
	if err := decode(Repair(candidate), &out); err != nil {
		return nil, err
	}
	return out, nil
}
