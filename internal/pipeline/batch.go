package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"curator/internal/event"
	"curator/internal/store"
	"curator/internal/telemetry"
)

// BatchResult is the outcome of one batch run.
type BatchResult struct {
	RunID    string
	Outcomes []Outcome
	Snapshot telemetry.Snapshot
}

// Failed returns the number of failed or aborted events.
func (r *BatchResult) Failed() int {
	n := 0
	for _, out := range r.Outcomes {
		if out.Status == StatusFailed || out.Status == StatusAborted {
			n++
		}
	}
	return n
}

// Incomplete returns the number of completed-incomplete events.
func (r *BatchResult) Incomplete() int {
	n := 0
	for _, out := range r.Outcomes {
		if out.Status == StatusCompletedIncomplete {
			n++
		}
	}
	return n
}

// RunBatch processes events with bounded concurrency. Each event's own
// steps stay strictly sequential; events are isolated from each other, so
// the returned error only ever reflects audit-store bookkeeping, never a
// single event's failure.
func (o *Orchestrator) RunBatch(ctx context.Context, events []*event.Event) (*BatchResult, error) {
	runID := uuid.NewString()
	startedAt := time.Now()

	if o.audit != nil {
		if err := o.audit.BeginRun(runID, startedAt); err != nil {
			return nil, err
		}
	}

	o.logger.Info("batch started",
		zap.String("run_id", runID),
		zap.Int("events", len(events)),
		zap.Int("concurrency", o.concurrency()))

	outcomes := make([]Outcome, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())
	for i, ev := range events {
		g.Go(func() error {
			if gctx.Err() != nil {
				// Cancellation leaves already-enriched events intact and
				// marks unstarted ones aborted.
				outcomes[i] = Outcome{Event: ev, Status: StatusAborted, Err: gctx.Err()}
				return nil
			}
			outcomes[i] = o.EnrichEvent(gctx, ev)
			return nil
		})
	}
	// Workers always return nil; Wait only propagates context plumbing.
	_ = g.Wait()

	result := &BatchResult{
		RunID:    runID,
		Outcomes: outcomes,
		Snapshot: o.counters.Snapshot(),
	}

	if o.audit != nil {
		for _, out := range outcomes {
			if err := o.audit.RecordEvent(runID, auditRecord(out)); err != nil {
				o.logger.Warn("failed to record audit event", zap.Error(err))
			}
		}
		if err := o.audit.FinishRun(runID, time.Now(), result.Snapshot); err != nil {
			o.logger.Warn("failed to finish audit run", zap.Error(err))
		}
	}

	o.logger.Info("batch finished",
		zap.String("run_id", runID),
		zap.Int("failed", result.Failed()),
		zap.Int("incomplete", result.Incomplete()),
		zap.Int("fields_accepted", result.Snapshot.FieldsAccepted),
		zap.Int("fields_rejected", result.Snapshot.FieldsRejected))
	return result, nil
}

func (o *Orchestrator) concurrency() int {
	if o.cfg.Batch.Concurrency > 1 {
		return o.cfg.Batch.Concurrency
	}
	return 1
}

// auditRecord flattens an outcome into its audit row.
func auditRecord(out Outcome) store.EventRecord {
	ev := out.Event
	rec := store.EventRecord{
		EventID:  ev.ID,
		Title:    ev.Title,
		Venue:    ev.Venue,
		URL:      ev.URL,
		Category: ev.Category,
		Status:   string(out.Status),
	}
	if m, ok := ev.MetaForStep(event.StepEnrichment); ok {
		rec.FieldSources = m.FieldSources
		rec.Citations = m.Citations
		if m.FailureReason != "" {
			rec.FailureReason = m.FailureReason
		}
	}
	if m, ok := ev.MetaForStep(event.StepClassification); ok && rec.FailureReason == "" {
		rec.FailureReason = m.FailureReason
	}
	if ev.Incomplete != nil {
		rec.MissingFields = ev.Incomplete.MissingFields
	}
	return rec
}
