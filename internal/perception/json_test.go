package perception

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindJSONCandidates(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		got := findJSONCandidates(`{"a": 1}`)
		assert.Equal(t, []string{`{"a": 1}`}, got)
	})

	t.Run("object inside prose and fences", func(t *testing.T) {
		got := findJSONCandidates("Here you go:\n```json\n{\"event_category\": \"movie\"}\n```")
		require.Len(t, got, 1)
		assert.Equal(t, `{"event_category": "movie"}`, got[0])
	})

	t.Run("nested braces", func(t *testing.T) {
		got := findJSONCandidates(`{"fields": {"director": {"value": "x"}}}`)
		require.Len(t, got, 1)
		assert.Equal(t, `{"fields": {"director": {"value": "x"}}}`, got[0])
	})

	t.Run("braces inside strings are ignored", func(t *testing.T) {
		got := findJSONCandidates(`{"value": "a { weird } title"}`)
		require.Len(t, got, 1)
	})

	t.Run("no object", func(t *testing.T) {
		assert.Empty(t, findJSONCandidates("plain refusal text"))
	})
}

func TestExtractJSON(t *testing.T) {
	type verdict struct {
		Category string `json:"event_category"`
	}

	t.Run("valid", func(t *testing.T) {
		var v verdict
		err := ExtractJSON(`noise {"event_category": "movie"} noise`, &v)
		require.NoError(t, err)
		assert.Equal(t, "movie", v.Category)
	})

	t.Run("malformed yields ErrNoJSON", func(t *testing.T) {
		var v verdict
		err := ExtractJSON(`{"event_category": `, &v)
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("empty yields ErrNoJSON", func(t *testing.T) {
		var v verdict
		assert.ErrorIs(t, ExtractJSON("", &v), ErrNoJSON)
	})
}
