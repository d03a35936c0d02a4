// Package telemetry accumulates batch-scoped counters. A Counters value is
// created at batch start, passed explicitly through the pipeline, and read
// as a snapshot at batch end; nothing persists across batches.
package telemetry

import "sync"

// Counters is the only shared mutable state in a batch run. Increments are
// mutex-atomic so a parallelized orchestrator can share one instance.
type Counters struct {
	mu sync.Mutex

	totalClassifications   int
	classificationsByLabel map[string]int
	abstentions            int
	llmFailures            int
	fieldsAccepted         int
	fieldsRejected         int
	missingRequiredCount   int
	eventsFailed           int
	eventsIncomplete       int
}

// Snapshot is a read-only copy of the counters at a point in time.
type Snapshot struct {
	TotalClassifications   int            `json:"total_classifications"`
	ClassificationsByLabel map[string]int `json:"classifications_by_label,omitempty"`
	Abstentions            int            `json:"abstentions"`
	LLMFailures            int            `json:"llm_failures"`
	FieldsAccepted         int            `json:"fields_accepted"`
	FieldsRejected         int            `json:"fields_rejected"`
	MissingRequiredCount   int            `json:"missing_required_count"`
	EventsFailed           int            `json:"events_failed"`
	EventsIncomplete       int            `json:"events_incomplete"`
}

// NewCounters creates zeroed counters for one batch run.
func NewCounters() *Counters {
	return &Counters{classificationsByLabel: make(map[string]int)}
}

// RecordClassification counts a classification verdict for label.
func (c *Counters) RecordClassification(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalClassifications++
	if label != "" {
		c.classificationsByLabel[label]++
	}
}

// RecordAbstention counts a model abstention (genuine uncertainty).
func (c *Counters) RecordAbstention() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abstentions++
}

// RecordLLMFailure counts an infrastructure failure, kept separate from
// abstentions so diagnostics stay distinguishable.
func (c *Counters) RecordLLMFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmFailures++
}

// RecordFieldsAccepted counts n evidence-gated field acceptances.
func (c *Counters) RecordFieldsAccepted(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fieldsAccepted += n
}

// RecordFieldsRejected counts n evidence-gate rejections.
func (c *Counters) RecordFieldsRejected(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fieldsRejected += n
}

// RecordMissingRequired counts n required fields still missing at validation.
func (c *Counters) RecordMissingRequired(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missingRequiredCount += n
}

// RecordEventFailed counts an event that terminated in a failed state.
func (c *Counters) RecordEventFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsFailed++
}

// RecordEventIncomplete counts an event returned with an incompleteness marker.
func (c *Counters) RecordEventIncomplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsIncomplete++
}

// Snapshot returns a read-only copy of the current counts.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byLabel := make(map[string]int, len(c.classificationsByLabel))
	for k, v := range c.classificationsByLabel {
		byLabel[k] = v
	}
	return Snapshot{
		TotalClassifications:   c.totalClassifications,
		ClassificationsByLabel: byLabel,
		Abstentions:            c.abstentions,
		LLMFailures:            c.llmFailures,
		FieldsAccepted:         c.fieldsAccepted,
		FieldsRejected:         c.fieldsRejected,
		MissingRequiredCount:   c.missingRequiredCount,
		EventsFailed:           c.eventsFailed,
		EventsIncomplete:       c.eventsIncomplete,
	}
}
