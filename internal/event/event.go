// Package event defines the typed event record flowing through the
// enrichment pipeline. The scraping collaborator hands records in as JSON;
// the pipeline only ever adds fields, never overwrites a populated one.
package event

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Core field names shared by every category.
const (
	FieldTitle       = "title"
	FieldDates       = "dates"
	FieldTimes       = "times"
	FieldVenue       = "venue"
	FieldDescription = "description"
	FieldURL         = "url"
)

// Event is a single normalized event record.
// Category-specific fields (director, rating, one_liner_summary, ...) live
// in Fields, keyed by their snake_case template names.
type Event struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Dates       []string `json:"dates"`
	Times       []string `json:"times"`
	Venue       string   `json:"venue"`
	Description string   `json:"description"`
	URL         string   `json:"url"`

	Category string            `json:"event_category,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`

	Meta       []EnrichmentMeta `json:"enrichment_meta,omitempty"`
	Incomplete *Incompleteness  `json:"incomplete,omitempty"`
}

// Incompleteness marks an event that failed validation in non-fail-fast
// mode. It names every missing required field and structural violation.
type Incompleteness struct {
	MissingFields []string `json:"missing_fields,omitempty"`
	Structural    []string `json:"structural,omitempty"`
}

// New constructs an event and validates its structural shape.
func New(title, venue, description, url string, dates, times []string) (*Event, error) {
	ev := &Event{
		ID:          uuid.NewString(),
		Title:       title,
		Venue:       venue,
		Description: description,
		URL:         url,
		Dates:       dates,
		Times:       times,
	}
	if err := ev.CheckShape(); err != nil {
		return nil, err
	}
	return ev, nil
}

// CheckShape validates construction-time invariants: a title must be
// present and dates/times must be pairwise aligned.
func (e *Event) CheckShape() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("event: title is required")
	}
	if len(e.Dates) != len(e.Times) {
		return fmt.Errorf("event %q: %d dates but %d times", e.Title, len(e.Dates), len(e.Times))
	}
	return nil
}

// Field returns the value of the named scalar field. Core sequence fields
// (dates, times) are not addressable as scalars.
func (e *Event) Field(name string) (string, bool) {
	switch name {
	case FieldTitle:
		return e.Title, true
	case FieldVenue:
		return e.Venue, true
	case FieldDescription:
		return e.Description, true
	case FieldURL:
		return e.URL, true
	case FieldDates, FieldTimes:
		return "", false
	}
	v, ok := e.Fields[name]
	return v, ok
}

// FieldEmpty reports whether the named field is missing or blank.
func (e *Event) FieldEmpty(name string) bool {
	switch name {
	case FieldDates:
		return len(e.Dates) == 0
	case FieldTimes:
		return len(e.Times) == 0
	}
	v, _ := e.Field(name)
	return strings.TrimSpace(v) == ""
}

// SetField stores value under name if and only if the field is currently
// empty. It reports whether the value was written. Core sequence fields
// are owned by the scraper and never writable here.
func (e *Event) SetField(name, value string) bool {
	if name == FieldDates || name == FieldTimes {
		return false
	}
	if !e.FieldEmpty(name) {
		return false
	}
	switch name {
	case FieldTitle:
		e.Title = value
	case FieldVenue:
		e.Venue = value
	case FieldDescription:
		e.Description = value
	case FieldURL:
		e.URL = value
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[name] = value
	}
	return true
}

// SourceText returns the event's own text, the only corpus substring
// evidence is checked against: title, description, venue, and any
// pre-existing category fields, in a deterministic order.
func (e *Event) SourceText() string {
	parts := []string{e.Title, e.Description, e.Venue}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, e.Fields[name])
	}
	return strings.Join(parts, "\n")
}

// AppendMeta attaches a provenance entry. Entries from distinct steps
// coexist; nothing is merged or replaced.
func (e *Event) AppendMeta(m EnrichmentMeta) {
	e.Meta = append(e.Meta, m)
}

// MetaForStep returns the most recent meta entry for the given step.
func (e *Event) MetaForStep(step MetaStep) (EnrichmentMeta, bool) {
	for i := len(e.Meta) - 1; i >= 0; i-- {
		if e.Meta[i].Step == step {
			return e.Meta[i], true
		}
	}
	return EnrichmentMeta{}, false
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	out := *e
	out.Dates = append([]string(nil), e.Dates...)
	out.Times = append([]string(nil), e.Times...)
	if e.Fields != nil {
		out.Fields = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}
	out.Meta = append([]EnrichmentMeta(nil), e.Meta...)
	if e.Incomplete != nil {
		inc := *e.Incomplete
		inc.MissingFields = append([]string(nil), e.Incomplete.MissingFields...)
		inc.Structural = append([]string(nil), e.Incomplete.Structural...)
		out.Incomplete = &inc
	}
	return &out
}
