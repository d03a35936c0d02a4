package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/config"
	"curator/internal/event"
)

func testConfig() *config.Config {
	return &config.Config{
		Ontology: config.OntologyConfig{Labels: []string{"movie", "book_club"}},
		Templates: map[string]config.FieldTemplate{
			"movie": {RequiredOnPublish: []string{"title", "dates", "times", "venue", "director", "duration"}},
		},
	}
}

func completeMovie() *event.Event {
	return &event.Event{
		Title:       "PAVEMENTS",
		Venue:       "afs",
		Description: "doc",
		URL:         "https://example.com/p",
		Dates:       []string{"2025-06-26"},
		Times:       []string{"3:45 PM"},
		Fields:      map[string]string{"director": "Alex Ross Perry", "duration": "128 min"},
	}
}

func TestValidate_CategoryTemplate(t *testing.T) {
	v := New(testConfig())

	t.Run("complete event passes", func(t *testing.T) {
		assert.Nil(t, v.Validate(completeMovie(), "movie"))
	})

	t.Run("every missing field is enumerated", func(t *testing.T) {
		ev := completeMovie()
		delete(ev.Fields, "director")
		delete(ev.Fields, "duration")

		verr := v.Validate(ev, "movie")
		require.NotNil(t, verr)
		assert.ElementsMatch(t, []string{"director", "duration"}, verr.Missing,
			"all missing fields must be listed, not just the first")
		assert.Equal(t, "PAVEMENTS", verr.Title)
		assert.Equal(t, "https://example.com/p", verr.URL)
		assert.Contains(t, verr.Error(), "director")
		assert.Contains(t, verr.Error(), "duration")
	})

	t.Run("single missing field", func(t *testing.T) {
		ev := completeMovie()
		delete(ev.Fields, "duration")

		verr := v.Validate(ev, "movie")
		require.NotNil(t, verr)
		assert.Equal(t, []string{"duration"}, verr.Missing)
	})
}

func TestValidate_UniversalRequirement(t *testing.T) {
	v := New(testConfig())

	ev := completeMovie()
	// No rating or one_liner_summary: fails the universal minimum applied
	// when no concrete category resolved.
	for _, category := range []string{"", "unknown"} {
		verr := v.Validate(ev, category)
		require.NotNil(t, verr, "category %q", category)
		assert.ElementsMatch(t, []string{"rating", "one_liner_summary"}, verr.Missing)
	}

	ev.Fields["rating"] = "NR"
	ev.Fields["one_liner_summary"] = "Pavement doc."
	assert.Nil(t, v.Validate(ev, "unknown"))
}

func TestValidate_StructuralInvariants(t *testing.T) {
	v := New(testConfig())

	t.Run("dates and times must align", func(t *testing.T) {
		ev := completeMovie()
		ev.Times = nil

		verr := v.Validate(ev, "movie")
		require.NotNil(t, verr)
		require.NotEmpty(t, verr.Structural)
		assert.Contains(t, verr.Structural[0], "1 dates but 0 times")
	})

	t.Run("dates must be YYYY-MM-DD", func(t *testing.T) {
		ev := completeMovie()
		ev.Dates = []string{"06/26/2025"}

		verr := v.Validate(ev, "movie")
		require.NotNil(t, verr)
		assert.Contains(t, verr.Structural[0], "not YYYY-MM-DD")
	})

	t.Run("field names must be snake_case", func(t *testing.T) {
		ev := completeMovie()
		ev.Fields["RunTime"] = "128 min"

		verr := v.Validate(ev, "movie")
		require.NotNil(t, verr)
		require.Len(t, verr.Structural, 1)
		assert.Contains(t, verr.Structural[0], "snake_case")
	})

	t.Run("structural checks run even without a category", func(t *testing.T) {
		ev := completeMovie()
		ev.Dates = []string{"bad"}

		verr := v.Validate(ev, "")
		require.NotNil(t, verr)
		assert.NotEmpty(t, verr.Structural)
	})
}
