package parser_test

import (
	"encoding/json"
	"testing"

	"github.com/datafarmer/datafarmer/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    map[string]any
		wantErr error
	}{
		{
			name: "json fence",
			text: "Here you go:\n```json\n{\n  \"text\": \"this is a test\"\n}\n```\n",
			want: map[string]any{"text": "this is a test"},
		},
		{
			name: "bare fence",
			text: "```\n{\"score\": 3}\n```",
			want: map[string]any{"score": float64(3)},
		},
		{
			name: "last block wins",
			text: "draft:\n```json\n{\"v\": 1}\n```\nfinal:\n```json\n{\"v\": 2}\n```",
			want: map[string]any{"v": float64(2)},
		},
		{
			name:    "no block",
			text:    `{"v": 1}`,
			wantErr: parser.ErrNoJSON,
		},
		{
			name:    "invalid block",
			text:    "```json\n{v: 1}\n```",
			wantErr: parser.ErrInvalidJSON,
		},
		{
			name:    "array is not an object",
			text:    "```json\n[1, 2]\n```",
			wantErr: parser.ErrInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parser.ExtractJSON(tt.text)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, parser.ErrParse)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractInto(t *testing.T) {
	t.Parallel()

	var label struct {
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Tags       []string `json:"tags"`
	}
	text := "```json\n{\"label\": \"cat\", \"confidence\": 0.9, \"tags\": [\"animal\", \"pet\"]}\n```"

	require.NoError(t, parser.ExtractInto(text, &label))
	assert.Equal(t, "cat", label.Label)
	assert.InDelta(t, 0.9, label.Confidence, 1e-9)
	assert.Equal(t, []string{"animal", "pet"}, label.Tags)

	var items []int
	require.NoError(t, parser.ExtractInto("```\n[1,2,3]\n```", &items))
	assert.Equal(t, []int{1, 2, 3}, items)
}

func TestLastBlock(t *testing.T) {
	t.Parallel()

	block, err := parser.LastBlock("a\n```json\n  {\"x\": 1}  \n```\nb")
	require.NoError(t, err)
	assert.Equal(t, `{"x": 1}`, block)

	_, err = parser.LastBlock("nothing here")
	assert.ErrorIs(t, err, parser.ErrNoJSON)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "valid json untouched", input: `{"a": [1, 2], "b": "x"}`, want: `{"a":[1,2],"b":"x"}`},
		{name: "unquoted keys", input: `{name: "cat", age_years: 3}`, want: `{"name":"cat","age_years":3}`},
		{name: "single quotes", input: `{'name': 'it\'s "here"'}`, want: `{"name":"it's \"here\""}`},
		{name: "trailing commas", input: `{"a": [1, 2,], "b": 3,}`, want: `{"a":[1,2],"b":3}`},
		{name: "unclosed object", input: `{"a": {"b": [1, 2`, want: `{"a":{"b":[1,2]}}`},
		{name: "unclosed string", input: `{"a": "hello`, want: `{"a":"hello"}`},
		{name: "python literals", input: `{"ok": True, "bad": False, "none": None}`, want: `{"ok":true,"bad":false,"none":null}`},
		{name: "json literals kept", input: `{"ok": true, "n": null}`, want: `{"ok":true,"n":null}`},
		{name: "exponent numbers", input: `{"n": 1e5}`, want: `{"n":100000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repaired := parser.Repair(tt.input)
			require.True(t, json.Valid([]byte(repaired)), "repaired output is not valid JSON: %s", repaired)
			assert.JSONEq(t, tt.want, repaired)
		})
	}
}

func TestExtractJSONLenient(t *testing.T) {
	t.Parallel()

	t.Run("strict input", func(t *testing.T) {
		t.Parallel()
		got, err := parser.ExtractJSONLenient("```json\n{\"a\": 1}\n```")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": float64(1)}, got)
	})

	t.Run("repairs fenced block", func(t *testing.T) {
		t.Parallel()
		got, err := parser.ExtractJSONLenient("```json\n{label: 'dog', tags: ['a', 'b',],}\n```")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"label": "dog", "tags": []any{"a", "b"}}, got)
	})

	t.Run("repairs unfenced truncated output", func(t *testing.T) {
		t.Parallel()
		got, err := parser.ExtractJSONLenient(`Sure! {"label": "dog", "score": 0.5`)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"label": "dog", "score": 0.5}, got)
	})

	t.Run("nothing to repair", func(t *testing.T) {
		t.Parallel()
		_, err := parser.ExtractJSONLenient("no json at all")
		assert.ErrorIs(t, err, parser.ErrNoJSON)
	})
}
