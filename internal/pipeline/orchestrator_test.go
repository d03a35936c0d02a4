package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/classify"
	"curator/internal/config"
	"curator/internal/event"
	"curator/internal/perception"
	"curator/internal/telemetry"
	"curator/internal/validate"
)

// scriptedLLM routes calls to canned classification/enrichment responses
// and counts them separately.
type scriptedLLM struct {
	classifyResponse string
	classifyErr      error
	enrichResponse   string
	enrichErr        error

	classifyCalls int
	enrichCalls   int
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptedLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if strings.Contains(system, "classify") {
		s.classifyCalls++
		return s.classifyResponse, s.classifyErr
	}
	s.enrichCalls++
	return s.enrichResponse, s.enrichErr
}

func boolPtr(b bool) *bool { return &b }

func testConfig(failFast bool) *config.Config {
	return &config.Config{
		LLM:      config.LLMConfig{Provider: "gemini", Model: "test"},
		Ontology: config.OntologyConfig{Labels: []string{"movie", "book_club", "other"}},
		Venues: map[string]config.VenueConfig{
			"afs": {
				Classification: config.ClassificationPolicy{
					Enabled:              boolPtr(false),
					AssumedEventCategory: "movie",
				},
				Enrichment: config.EnrichmentPolicy{Enabled: boolPtr(true), AllowCitations: false},
			},
			"paramount": {
				Classification: config.ClassificationPolicy{Enabled: boolPtr(true)},
				Enrichment:     config.EnrichmentPolicy{Enabled: boolPtr(true), AllowCitations: true},
			},
		},
		Templates: map[string]config.FieldTemplate{
			"movie": {RequiredOnPublish: []string{"title", "dates", "times", "venue", "director", "duration"}},
		},
		Validation: config.ValidationConfig{FailFast: failFast},
		Batch:      config.BatchConfig{Concurrency: 1},
	}
}

func pavements() *event.Event {
	return &event.Event{
		ID:          "ev-pavements",
		Title:       "PAVEMENTS",
		Venue:       "afs",
		Description: "A hybrid documentary by Alex Ross Perry about the band Pavement. 128 min.",
		URL:         "https://example.com/pavements",
		Dates:       []string{"2025-06-26"},
		Times:       []string{"3:45 PM"},
	}
}

func newTestOrchestrator(cfg *config.Config, llm perception.LLMClient) (*Orchestrator, *telemetry.Counters) {
	counters := telemetry.NewCounters()
	return New(cfg, llm, counters, nil, nil), counters
}

func TestPolicyShortCircuit(t *testing.T) {
	llm := &scriptedLLM{enrichResponse: `{"fields": {}}`}
	o, _ := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	out := o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, "movie", ev.Category, "assumed category applies")
	assert.Equal(t, 0, llm.classifyCalls, "classification disabled means no call")

	m, ok := ev.MetaForStep(event.StepClassification)
	require.True(t, ok)
	assert.Equal(t, event.StatusSkipped, m.Status)
	assert.Equal(t, event.ReasonAssumedByPolicy, m.PolicyReason)

	assert.Equal(t, StatusCompletedIncomplete, out.Status, "director and duration still missing")
}

func TestScenarioA_PartialEnrichmentFailFast(t *testing.T) {
	// director comes back as a verbatim quote; duration is never answered.
	llm := &scriptedLLM{enrichResponse: `{"fields": {
		"director": {"value": "Alex Ross Perry", "evidence": "substring", "citations": []}
	}}`}
	o, counters := newTestOrchestrator(testConfig(true), llm)

	ev := pavements()
	out := o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, 1, llm.enrichCalls, "one call requesting both missing fields")
	assert.Equal(t, "Alex Ross Perry", ev.Fields["director"])
	assert.True(t, ev.FieldEmpty("duration"))

	require.Equal(t, StatusFailed, out.Status)
	var verr *validate.ValidationError
	require.True(t, errors.As(out.Err, &verr))
	assert.Equal(t, []string{"duration"}, verr.Missing, "the error names exactly the missing field")
	assert.Contains(t, verr.Error(), "PAVEMENTS")
	assert.Contains(t, verr.Error(), "https://example.com/pavements")

	m, ok := ev.MetaForStep(event.StepEnrichment)
	require.True(t, ok)
	assert.Equal(t, event.SourceLLMSubstring, m.FieldSources["director"])
	assert.Equal(t, event.SourceInput, m.FieldSources["title"], "pre-existing fields tagged input")

	snap := counters.Snapshot()
	assert.Equal(t, 1, snap.FieldsAccepted)
	assert.Equal(t, 1, snap.MissingRequiredCount)
	assert.Equal(t, 1, snap.EventsFailed)
}

func TestScenarioB_AbstentionSkipsEnrichment(t *testing.T) {
	llm := &scriptedLLM{classifyResponse: `{"event_category": "unknown", "abstained": true}`}
	cfg := testConfig(false)
	o, counters := newTestOrchestrator(cfg, llm)

	ev := pavements()
	ev.Venue = "paramount"
	out := o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, 1, llm.classifyCalls)
	assert.Equal(t, 0, llm.enrichCalls, "no concrete category, so enrichment never runs")

	m, ok := ev.MetaForStep(event.StepEnrichment)
	require.True(t, ok)
	assert.Equal(t, event.StatusSkipped, m.Status)
	assert.Equal(t, event.ReasonNoCategory, m.PolicyReason)

	assert.Equal(t, StatusCompletedIncomplete, out.Status, "universal requirement applies")
	assert.Equal(t, 1, counters.Snapshot().Abstentions)
}

func TestEvidenceInvariant(t *testing.T) {
	// Every accepted llm_substring value must be a substring of the event's
	// own text; "129 min" is not present and must be rejected.
	llm := &scriptedLLM{enrichResponse: `{"fields": {
		"director": {"value": "Alex Ross Perry", "evidence": "substring", "citations": []},
		"duration": {"value": "129 min", "evidence": "substring", "citations": []}
	}}`}
	o, counters := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	o.EnrichEvent(context.Background(), ev)

	m, _ := ev.MetaForStep(event.StepEnrichment)
	source := ev.SourceText()
	for field, src := range m.FieldSources {
		if src == event.SourceLLMSubstring {
			value, _ := ev.Field(field)
			assert.Contains(t, source, value, "field %s", field)
		}
	}
	assert.True(t, ev.FieldEmpty("duration"))

	snap := counters.Snapshot()
	assert.Equal(t, 1, snap.FieldsAccepted)
	assert.Equal(t, 1, snap.FieldsRejected)
}

func TestScenarioC_CitationRejection(t *testing.T) {
	llm := &scriptedLLM{
		classifyResponse: `{"event_category": "movie", "abstained": false}`,
		enrichResponse: `{"fields": {
			"duration": {"value": "128 min", "evidence": "citation", "citations": []}
		}}`,
	}
	o, counters := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	ev.Venue = "paramount"
	ev.Fields = map[string]string{"director": "Alex Ross Perry"}
	o.EnrichEvent(context.Background(), ev)

	assert.True(t, ev.FieldEmpty("duration"), "empty citations means rejection")
	assert.Equal(t, 1, counters.Snapshot().FieldsRejected)
}

func TestZeroCallIdempotence(t *testing.T) {
	llm := &scriptedLLM{enrichResponse: `{"fields": {}}`}
	o, _ := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	ev.Fields = map[string]string{"director": "Alex Ross Perry", "duration": "128 min"}

	before := ev.Clone()
	out1 := o.EnrichEvent(context.Background(), ev)
	out2 := o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, 0, llm.enrichCalls, "nothing missing, so zero enrichment calls")
	assert.Equal(t, StatusCompleted, out1.Status)
	assert.Equal(t, StatusCompleted, out2.Status)

	assert.Equal(t, before.Title, ev.Title)
	assert.Equal(t, before.Fields, ev.Fields)
	assert.Equal(t, before.Dates, ev.Dates)
	assert.Equal(t, before.Times, ev.Times)
}

func TestClassificationTransportFailureContinues(t *testing.T) {
	llm := &scriptedLLM{
		classifyErr: &perception.InvocationError{Provider: "test", Err: errors.New("timeout")},
	}
	o, counters := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	ev.Venue = "paramount"
	out := o.EnrichEvent(context.Background(), ev)

	m, ok := ev.MetaForStep(event.StepClassification)
	require.True(t, ok)
	assert.Equal(t, event.StatusFailed, m.Status)
	assert.True(t, m.Abstained)
	assert.Equal(t, event.ReasonLLMError, m.FailureReason)

	// Processing continued to validation instead of aborting.
	assert.Equal(t, StatusCompletedIncomplete, out.Status)
	snap := counters.Snapshot()
	assert.Equal(t, 1, snap.LLMFailures)
	assert.Equal(t, 0, snap.Abstentions, "infra failure is not model uncertainty")
}

func TestMalformedClassificationIsAbstention(t *testing.T) {
	llm := &scriptedLLM{classifyResponse: "probably a movie?"}
	o, counters := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	ev.Venue = "paramount"
	o.EnrichEvent(context.Background(), ev)

	m, _ := ev.MetaForStep(event.StepClassification)
	assert.True(t, m.Abstained)
	assert.Equal(t, event.ReasonMalformedResponse, m.FailureReason)
	assert.Equal(t, 0, llm.enrichCalls)
	assert.Equal(t, 1, counters.Snapshot().Abstentions)
}

func TestUnknownVenueAborts(t *testing.T) {
	llm := &scriptedLLM{}
	o, counters := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	ev.Venue = "nowhere"
	out := o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, StatusAborted, out.Status)
	require.Error(t, out.Err)
	assert.Equal(t, 0, llm.classifyCalls)
	assert.Equal(t, 0, llm.enrichCalls)
	assert.Equal(t, 1, counters.Snapshot().EventsFailed)
}

func TestFailFastDisabled_AnnotatesIncomplete(t *testing.T) {
	llm := &scriptedLLM{enrichResponse: `{"fields": {}}`}
	o, counters := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	out := o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, StatusCompletedIncomplete, out.Status)
	assert.NoError(t, out.Err)
	require.NotNil(t, ev.Incomplete)
	assert.ElementsMatch(t, []string{"director", "duration"}, ev.Incomplete.MissingFields)
	assert.Equal(t, 1, counters.Snapshot().EventsIncomplete)
	assert.Equal(t, 2, counters.Snapshot().MissingRequiredCount)
}

func TestMetaEntriesCoexist(t *testing.T) {
	llm := &scriptedLLM{enrichResponse: `{"fields": {}}`}
	o, _ := newTestOrchestrator(testConfig(false), llm)

	ev := pavements()
	o.EnrichEvent(context.Background(), ev)

	require.Len(t, ev.Meta, 2, "classification and enrichment meta are independent entries")
	assert.Equal(t, event.StepClassification, ev.Meta[0].Step)
	assert.Equal(t, event.StepEnrichment, ev.Meta[1].Step)
}

func TestEnrichmentSkippedWhenDisabled(t *testing.T) {
	cfg := testConfig(false)
	cfg.Venues["afs"] = config.VenueConfig{
		Classification: config.ClassificationPolicy{Enabled: boolPtr(false), AssumedEventCategory: "movie"},
		Enrichment:     config.EnrichmentPolicy{Enabled: boolPtr(false)},
	}
	llm := &scriptedLLM{}
	o, _ := newTestOrchestrator(cfg, llm)

	ev := pavements()
	o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, 0, llm.enrichCalls)
	m, _ := ev.MetaForStep(event.StepEnrichment)
	assert.Equal(t, event.StatusSkipped, m.Status)
	assert.Equal(t, event.ReasonPolicyDisabled, m.PolicyReason)
}

func TestUnknownIsNeverPublishable(t *testing.T) {
	// Even if the ontology listed "unknown", an unknown verdict must not
	// trigger template enrichment.
	cfg := testConfig(false)
	cfg.Ontology.Labels = append(cfg.Ontology.Labels, classify.LabelUnknown)
	llm := &scriptedLLM{classifyResponse: `{"event_category": "unknown", "abstained": true}`}
	o, _ := newTestOrchestrator(cfg, llm)

	ev := pavements()
	ev.Venue = "paramount"
	o.EnrichEvent(context.Background(), ev)

	assert.Equal(t, 0, llm.enrichCalls)
}
