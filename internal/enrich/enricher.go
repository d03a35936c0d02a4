// Package enrich fills a category's missing required fields with
// evidence-gated LLM output. A value is accepted only when it is verifiably
// quoted from the event's own text or backed by citations the venue policy
// allows; everything else is rejected and the field stays missing.
package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"curator/internal/event"
	"curator/internal/perception"
)

// Evidence kinds a returned field may carry.
const (
	EvidenceSubstring = "substring"
	EvidenceCitation  = "citation"
)

// AcceptedField is a field value that passed the evidence gate.
type AcceptedField struct {
	Value     string
	Source    string // event.SourceLLMSubstring or event.SourceLLMCitation
	Citations []string
}

// Result is the outcome of one enrichment call.
type Result struct {
	// Accepted maps field name to its gated value.
	Accepted map[string]AcceptedField

	// Rejected names requested fields the model answered but the evidence
	// gate refused. Fields the model did not answer appear in neither map.
	Rejected []string

	// FailureReason is set when the whole response was unusable
	// (schema violation); every requested field is then rejected.
	FailureReason string
}

// Enricher fills missing fields via an injected LLM capability.
type Enricher struct {
	llm    perception.LLMClient
	method string
	logger *zap.Logger
}

// New builds an enricher. method names the provider/model pair recorded in
// provenance metadata.
func New(llm perception.LLMClient, method string, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{llm: llm, method: method, logger: logger}
}

// Method returns the provenance method string for this enricher.
func (e *Enricher) Method() string { return e.method }

// enrichResponse is the strict wire contract for enrichment output.
type enrichResponse struct {
	Fields map[string]fieldResponse `json:"fields"`
}

type fieldResponse struct {
	Value     string   `json:"value"`
	Evidence  string   `json:"evidence"`
	Citations []string `json:"citations"`
}

// Enrich requests values for exactly the missing fields and gates each
// returned value on its evidence. When missing is empty it returns
// immediately without touching the LLM. Already-populated fields are never
// part of the request, so they can never be overwritten.
func (e *Enricher) Enrich(ctx context.Context, ev *event.Event, category string, missing []string, allowCitations bool) (Result, error) {
	if len(missing) == 0 {
		return Result{}, nil
	}

	raw, err := e.llm.CompleteWithSystem(ctx, e.systemPrompt(category, missing, allowCitations), e.userPrompt(ev))
	if err != nil {
		return Result{}, err
	}

	var resp enrichResponse
	if err := perception.ExtractJSON(raw, &resp); err != nil || resp.Fields == nil {
		e.logger.Warn("enricher returned malformed output",
			zap.String("title", ev.Title),
			zap.String("category", category))
		return Result{
			Rejected:      append([]string(nil), missing...),
			FailureReason: event.ReasonMalformedResponse,
		}, nil
	}

	requested := make(map[string]bool, len(missing))
	for _, f := range missing {
		requested[f] = true
	}

	sourceText := ev.SourceText()
	result := Result{Accepted: make(map[string]AcceptedField)}

	// Deterministic order for logging and telemetry.
	names := make([]string, 0, len(resp.Fields))
	for name := range resp.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fr := resp.Fields[name]
		if !requested[name] {
			// Unsolicited field: the event already carries it or it was
			// never part of this category's template. Dropped outright.
			e.logger.Debug("dropping unsolicited enrichment field",
				zap.String("title", ev.Title),
				zap.String("field", name))
			continue
		}

		accepted, source := e.gate(fr, sourceText, allowCitations)
		if !accepted {
			result.Rejected = append(result.Rejected, name)
			e.logger.Debug("rejected enrichment field",
				zap.String("title", ev.Title),
				zap.String("field", name),
				zap.String("evidence", fr.Evidence))
			continue
		}

		result.Accepted[name] = AcceptedField{
			Value:     fr.Value,
			Source:    source,
			Citations: fr.Citations,
		}
	}

	e.logger.Debug("enrichment call finished",
		zap.String("title", ev.Title),
		zap.Int("requested", len(missing)),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("rejected", len(result.Rejected)))
	return result, nil
}

// gate applies the evidence acceptance rule, no exceptions.
func (e *Enricher) gate(fr fieldResponse, sourceText string, allowCitations bool) (bool, string) {
	if strings.TrimSpace(fr.Value) == "" {
		return false, ""
	}
	switch fr.Evidence {
	case EvidenceSubstring:
		if strings.Contains(sourceText, fr.Value) {
			return true, event.SourceLLMSubstring
		}
	case EvidenceCitation:
		if len(fr.Citations) > 0 && allowCitations {
			return true, event.SourceLLMCitation
		}
	}
	return false, ""
}

func (e *Enricher) systemPrompt(category string, missing []string, allowCitations bool) string {
	var b strings.Builder
	b.WriteString("You extract missing fields for a cultural event listing.\n")
	fmt.Fprintf(&b, "The event's category is %q. Provide values ONLY for these fields: %s.\n",
		category, strings.Join(missing, ", "))
	b.WriteString("Each value must either be an exact contiguous quote from the provided event text ")
	b.WriteString(`(evidence "substring")`)
	if allowCitations {
		b.WriteString(` or be backed by source URLs (evidence "citation" with non-empty citations)`)
	}
	b.WriteString(".\nNever invent values. Omit any field you cannot support with evidence.\n")
	b.WriteString("Respond with ONLY a JSON object, no prose:\n")
	b.WriteString(`{"fields": {"<field>": {"value": "<string>", "evidence": "substring"|"citation", "citations": ["<url>"]}}}`)
	return b.String()
}

func (e *Enricher) userPrompt(ev *event.Event) string {
	return "Event text:\n" + ev.SourceText() + "\nURL: " + ev.URL
}
