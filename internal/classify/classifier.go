// Package classify assigns an ontology label to an event with a single,
// low-temperature LLM call under a strict JSON contract. Ambiguity is
// abstention, never a retry trigger.
package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"curator/internal/event"
	"curator/internal/perception"
)

// LabelUnknown is the classifier's explicit non-answer. It is always a
// legal verdict, whether or not the configured ontology lists it, and it is
// never a publishable category.
const LabelUnknown = "unknown"

// Verdict is the outcome of one classification call.
type Verdict struct {
	// Category is the assigned ontology label, LabelUnknown, or "" when
	// the model produced no usable verdict.
	Category string

	// Abstained reports model uncertainty: the model declined to commit,
	// named a label outside the ontology, or returned unusable output.
	Abstained bool

	// FailureReason distinguishes infrastructure problems from genuine
	// model uncertainty. Empty for clean verdicts and plain abstentions.
	FailureReason string
}

// Classifier assigns ontology labels via an injected LLM capability.
type Classifier struct {
	llm    perception.LLMClient
	labels []string
	method string
	logger *zap.Logger
}

// New builds a classifier over the allowed label set. method names the
// provider/model pair recorded in provenance metadata.
func New(llm perception.LLMClient, labels []string, method string, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: llm, labels: labels, method: method, logger: logger}
}

// Method returns the provenance method string for this classifier.
func (c *Classifier) Method() string { return c.method }

// classifyResponse is the strict wire contract. Pointer fields distinguish
// a missing key from a zero value; either missing key is a schema violation.
type classifyResponse struct {
	EventCategory *string `json:"event_category"`
	Abstained     *bool   `json:"abstained"`
}

// Classify sends one request and returns one verdict. A transport failure
// returns an error (the caller records it and moves on); schema-violating
// output is treated as abstention with FailureReason set, not as an error.
func (c *Classifier) Classify(ctx context.Context, ev *event.Event) (Verdict, error) {
	raw, err := c.llm.CompleteWithSystem(ctx, c.systemPrompt(), c.userPrompt(ev))
	if err != nil {
		return Verdict{}, err
	}

	var resp classifyResponse
	if err := perception.ExtractJSON(raw, &resp); err != nil || resp.EventCategory == nil || resp.Abstained == nil {
		c.logger.Warn("classifier returned malformed output",
			zap.String("title", ev.Title),
			zap.String("venue", ev.Venue))
		return Verdict{Abstained: true, FailureReason: event.ReasonMalformedResponse}, nil
	}

	category := strings.TrimSpace(*resp.EventCategory)
	if category != LabelUnknown && !c.allowed(category) {
		// Out-of-ontology label: clamp to unknown and treat as abstention.
		c.logger.Debug("classifier label outside ontology",
			zap.String("title", ev.Title),
			zap.String("label", category))
		return Verdict{Category: LabelUnknown, Abstained: true}, nil
	}

	abstained := *resp.Abstained || category == LabelUnknown
	c.logger.Debug("classified event",
		zap.String("title", ev.Title),
		zap.String("category", category),
		zap.Bool("abstained", abstained))
	return Verdict{Category: category, Abstained: abstained}, nil
}

func (c *Classifier) allowed(label string) bool {
	for _, l := range c.labels {
		if l == label {
			return true
		}
	}
	return false
}

func (c *Classifier) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify cultural event listings into exactly one category.\n")
	b.WriteString("Allowed categories: ")
	b.WriteString(strings.Join(append(append([]string{}, c.labels...), LabelUnknown), ", "))
	b.WriteString(".\n")
	b.WriteString("If you are not certain, use \"" + LabelUnknown + "\" and set abstained to true.\n")
	b.WriteString("Respond with ONLY a JSON object, no prose:\n")
	b.WriteString(`{"event_category": "<category>", "abstained": <bool>}`)
	return b.String()
}

func (c *Classifier) userPrompt(ev *event.Event) string {
	return fmt.Sprintf("Title: %s\nVenue: %s\nDescription: %s", ev.Title, ev.Venue, ev.Description)
}
