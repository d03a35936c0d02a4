package event

// MetaStatus is the terminal status of a pipeline step for one event.
type MetaStatus string

const (
	StatusCompleted MetaStatus = "completed"
	StatusSkipped   MetaStatus = "skipped"
	StatusFailed    MetaStatus = "failed"
)

// MetaStep names the pipeline step a meta entry belongs to.
type MetaStep string

const (
	StepClassification MetaStep = "classification"
	StepEnrichment     MetaStep = "enrichment"
)

// Field provenance sources.
const (
	SourceInput        = "input"         // field arrived from the scraper
	SourceLLMSubstring = "llm_substring" // value quoted verbatim from event text
	SourceLLMCitation  = "llm_citation"  // value backed by external citations
)

// Failure reasons. Abstention (model uncertainty) is tracked separately
// from infrastructure failure so diagnostics stay distinguishable.
const (
	ReasonAssumedByPolicy   = "assumed_by_policy"
	ReasonPolicyDisabled    = "disabled_by_policy"
	ReasonNoCategory        = "no_category_resolved"
	ReasonLLMError          = "llm_error"
	ReasonMalformedResponse = "malformed_response"
)

// EnrichmentMeta records what one pipeline step did to an event.
// One entry is created per step per run; entries are append-only.
type EnrichmentMeta struct {
	Status        MetaStatus          `json:"status"`
	Step          MetaStep            `json:"step"`
	Method        string              `json:"method,omitempty"`
	Abstained     bool                `json:"abstained"`
	PolicyReason  string              `json:"policy_reason,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	FieldSources  map[string]string   `json:"field_sources,omitempty"`
	Citations     map[string][]string `json:"citations,omitempty"`
}
