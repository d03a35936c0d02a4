// Package pipeline sequences policy resolution, classification, enrichment,
// validation, and telemetry for each event, and runs batches with per-event
// isolation: one event's failure never aborts the others.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"curator/internal/classify"
	"curator/internal/config"
	"curator/internal/enrich"
	"curator/internal/event"
	"curator/internal/perception"
	"curator/internal/policy"
	"curator/internal/store"
	"curator/internal/telemetry"
	"curator/internal/validate"
)

// Status is the terminal state of one event's run.
type Status string

const (
	StatusCompleted           Status = "completed"
	StatusCompletedIncomplete Status = "completed_incomplete"
	StatusFailed              Status = "failed"
	StatusAborted             Status = "aborted"
)

// Outcome is the result of processing one event.
type Outcome struct {
	Event  *event.Event
	Status Status
	Err    error
}

// Orchestrator runs the per-event state machine. All collaborators are
// read-only during a batch except the telemetry counters.
type Orchestrator struct {
	cfg        *config.Config
	resolver   *policy.Resolver
	classifier *classify.Classifier
	enricher   *enrich.Enricher
	validator  *validate.Validator
	counters   *telemetry.Counters
	audit      *store.AuditStore
	logger     *zap.Logger
}

// New wires an orchestrator from the loaded configuration and an LLM
// capability. audit may be nil to disable the audit trail.
func New(cfg *config.Config, llm perception.LLMClient, counters *telemetry.Counters, audit *store.AuditStore, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	method := fmt.Sprintf("%s:%s", cfg.LLM.Provider, cfg.LLM.Model)
	return &Orchestrator{
		cfg:        cfg,
		resolver:   policy.NewResolver(cfg),
		classifier: classify.New(llm, cfg.Ontology.Labels, method, logger),
		enricher:   enrich.New(llm, method, logger),
		validator:  validate.New(cfg),
		counters:   counters,
		audit:      audit,
		logger:     logger,
	}
}

// EnrichEvent runs one event through the full state machine and returns its
// terminal outcome. The event is mutated in place: fields are only ever
// added, never overwritten.
func (o *Orchestrator) EnrichEvent(ctx context.Context, ev *event.Event) Outcome {
	// 1. Resolve policy. Fatal for this event, no silent defaulting.
	pol, err := o.resolver.Resolve(ev.Venue)
	if err != nil {
		o.logger.Error("policy resolution failed",
			zap.String("title", ev.Title),
			zap.String("venue", ev.Venue),
			zap.Error(err))
		o.counters.RecordEventFailed()
		return Outcome{Event: ev, Status: StatusAborted, Err: err}
	}

	// 2. Classification.
	category := o.classifyStep(ctx, ev, pol)

	// 3. Enrichment.
	o.enrichStep(ctx, ev, pol, category)

	// 4. Validation, then telemetry.
	return o.validateStep(ev, category)
}

// classifyStep resolves the event's category per policy and attaches the
// classification meta entry. It returns the resolved category, "" when none.
func (o *Orchestrator) classifyStep(ctx context.Context, ev *event.Event, pol policy.Policy) string {
	if !pol.ClassificationEnabled {
		// Policy short-circuit: the venue dictates the category.
		if pol.AssumedCategory != "" {
			ev.Category = pol.AssumedCategory
		}
		ev.AppendMeta(event.EnrichmentMeta{
			Status:       event.StatusSkipped,
			Step:         event.StepClassification,
			Method:       event.ReasonAssumedByPolicy,
			PolicyReason: event.ReasonAssumedByPolicy,
		})
		return pol.AssumedCategory
	}

	verdict, err := o.classifier.Classify(ctx, ev)
	if err != nil {
		// Transport failure: recorded, never retried, processing continues.
		o.logger.Warn("classification call failed",
			zap.String("title", ev.Title),
			zap.Error(err))
		o.counters.RecordLLMFailure()
		ev.AppendMeta(event.EnrichmentMeta{
			Status:        event.StatusFailed,
			Step:          event.StepClassification,
			Method:        o.classifier.Method(),
			Abstained:     true,
			FailureReason: event.ReasonLLMError,
		})
		return ""
	}

	if verdict.FailureReason != "" {
		// Schema-violating output: abstention, not a pipeline error.
		o.counters.RecordAbstention()
		ev.AppendMeta(event.EnrichmentMeta{
			Status:        event.StatusFailed,
			Step:          event.StepClassification,
			Method:        o.classifier.Method(),
			Abstained:     true,
			FailureReason: verdict.FailureReason,
		})
		return ""
	}

	o.counters.RecordClassification(verdict.Category)
	if verdict.Abstained {
		o.counters.RecordAbstention()
	}
	if verdict.Category != "" {
		ev.Category = verdict.Category
	}
	ev.AppendMeta(event.EnrichmentMeta{
		Status:    event.StatusCompleted,
		Step:      event.StepClassification,
		Method:    o.classifier.Method(),
		Abstained: verdict.Abstained,
	})
	return verdict.Category
}

// enrichStep fills missing required fields when policy and a concrete
// category allow it, and attaches the enrichment meta entry.
func (o *Orchestrator) enrichStep(ctx context.Context, ev *event.Event, pol policy.Policy, category string) {
	concrete := category != "" && category != classify.LabelUnknown

	if !pol.EnrichmentEnabled || !concrete {
		reason := event.ReasonPolicyDisabled
		if pol.EnrichmentEnabled {
			reason = event.ReasonNoCategory
		}
		ev.AppendMeta(event.EnrichmentMeta{
			Status:       event.StatusSkipped,
			Step:         event.StepEnrichment,
			PolicyReason: reason,
		})
		return
	}

	missing, present := o.splitTemplate(ev, category)

	res, err := o.enricher.Enrich(ctx, ev, category, missing, pol.AllowCitations)
	if err != nil {
		o.logger.Warn("enrichment call failed",
			zap.String("title", ev.Title),
			zap.Error(err))
		o.counters.RecordLLMFailure()
		ev.AppendMeta(event.EnrichmentMeta{
			Status:        event.StatusFailed,
			Step:          event.StepEnrichment,
			Method:        o.enricher.Method(),
			FailureReason: event.ReasonLLMError,
		})
		return
	}

	// Provenance covers both what the model filled and what the scraper
	// already supplied.
	fieldSources := make(map[string]string, len(res.Accepted)+len(present))
	citations := make(map[string][]string)
	for _, f := range present {
		fieldSources[f] = event.SourceInput
	}
	for name, af := range res.Accepted {
		if ev.SetField(name, af.Value) {
			fieldSources[name] = af.Source
			if len(af.Citations) > 0 {
				citations[name] = af.Citations
			}
		}
	}

	o.counters.RecordFieldsAccepted(len(res.Accepted))
	o.counters.RecordFieldsRejected(len(res.Rejected))

	status := event.StatusCompleted
	if res.FailureReason != "" {
		status = event.StatusFailed
	}
	ev.AppendMeta(event.EnrichmentMeta{
		Status:        status,
		Step:          event.StepEnrichment,
		Method:        o.enricher.Method(),
		FailureReason: res.FailureReason,
		FieldSources:  fieldSources,
		Citations:     citations,
	})
}

// splitTemplate partitions the category's required_on_publish fields into
// those still missing (to request) and those already populated (never sent
// to the model, tagged as input provenance).
func (o *Orchestrator) splitTemplate(ev *event.Event, category string) (missing, present []string) {
	tmpl, ok := o.cfg.Templates[category]
	if !ok {
		return nil, nil
	}
	for _, field := range tmpl.RequiredOnPublish {
		if ev.FieldEmpty(field) {
			missing = append(missing, field)
		} else {
			present = append(present, field)
		}
	}
	return missing, present
}

// validateStep enforces publish requirements. Per fail_fast the violation
// either fails the event or is recorded as an incompleteness marker.
func (o *Orchestrator) validateStep(ev *event.Event, category string) Outcome {
	verr := o.validator.Validate(ev, category)
	if verr == nil {
		return Outcome{Event: ev, Status: StatusCompleted}
	}

	o.counters.RecordMissingRequired(len(verr.Missing))

	if o.cfg.Validation.FailFast {
		o.counters.RecordEventFailed()
		o.logger.Error("validation failed",
			zap.String("title", ev.Title),
			zap.String("url", ev.URL),
			zap.Strings("missing", verr.Missing),
			zap.Strings("structural", verr.Structural))
		return Outcome{Event: ev, Status: StatusFailed, Err: verr}
	}

	o.counters.RecordEventIncomplete()
	ev.Incomplete = &event.Incompleteness{
		MissingFields: verr.Missing,
		Structural:    verr.Structural,
	}
	o.logger.Warn("event is incomplete",
		zap.String("title", ev.Title),
		zap.Strings("missing", verr.Missing))
	return Outcome{Event: ev, Status: StatusCompletedIncomplete}
}
