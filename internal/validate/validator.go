// Package validate enforces required-field completeness and structural
// invariants before an event is considered publishable.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"curator/internal/classify"
	"curator/internal/config"
	"curator/internal/event"
)

// universalRequired is the minimal field set applied when no concrete
// category resolved (classification abstained with no assumed fallback).
var universalRequired = []string{
	"title", "dates", "times", "venue",
	"rating", "one_liner_summary", "description", "url",
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidationError reports every problem found on one event, not just the
// first, so the caller can act on a single error.
type ValidationError struct {
	Title      string
	URL        string
	Missing    []string // required fields still empty
	Structural []string // invariant violations
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Structural) > 0 {
		parts = append(parts, fmt.Sprintf("structural violations: %s", strings.Join(e.Structural, "; ")))
	}
	return fmt.Sprintf("event %q (%s): %s", e.Title, e.URL, strings.Join(parts, "; "))
}

// Validator checks events against category templates and structural rules.
type Validator struct {
	cfg *config.Config
}

// New builds a validator over the loaded configuration.
func New(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns a *ValidationError enumerating all missing required
// fields and structural violations, or nil when the event is publishable.
// Whether a violation aborts the event is the caller's fail_fast decision.
func (v *Validator) Validate(ev *event.Event, category string) *ValidationError {
	verr := &ValidationError{Title: ev.Title, URL: ev.URL}

	// Structural invariants hold regardless of category.
	if len(ev.Dates) != len(ev.Times) {
		verr.Structural = append(verr.Structural,
			fmt.Sprintf("%d dates but %d times", len(ev.Dates), len(ev.Times)))
	}
	for _, d := range ev.Dates {
		if !dateRe.MatchString(d) {
			verr.Structural = append(verr.Structural, fmt.Sprintf("date %q is not YYYY-MM-DD", d))
		}
	}
	for name := range ev.Fields {
		if !config.IsSnakeCase(name) {
			verr.Structural = append(verr.Structural, fmt.Sprintf("field name %q is not snake_case", name))
		}
	}

	for _, field := range v.required(category) {
		if ev.FieldEmpty(field) {
			verr.Missing = append(verr.Missing, field)
		}
	}

	if len(verr.Missing) == 0 && len(verr.Structural) == 0 {
		return nil
	}
	return verr
}

// required returns the field set the event must satisfy: the category's
// template when a concrete label resolved, the universal minimum otherwise.
func (v *Validator) required(category string) []string {
	if category != "" && category != classify.LabelUnknown && v.cfg.HasLabel(category) {
		if tmpl, ok := v.cfg.Templates[category]; ok {
			return tmpl.RequiredOnPublish
		}
	}
	return universalRequired
}
