// Package store persists the audit trail of enrichment runs: one row per
// run with its telemetry snapshot, one row per processed event with its
// outcome and field provenance. The engine works without it; it exists so
// provenance survives the process.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"curator/internal/telemetry"
)

// AuditStore is a SQLite-backed audit log. Thread-safe.
type AuditStore struct {
	db *sql.DB
	mu sync.Mutex
}

// EventRecord is the per-event audit row.
type EventRecord struct {
	EventID       string
	Title         string
	Venue         string
	URL           string
	Category      string
	Status        string
	FailureReason string
	FieldSources  map[string]string
	Citations     map[string][]string
	MissingFields []string
}

// RunSummary is a stored run with its final telemetry.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Events     int
	Telemetry  telemetry.Snapshot
}

// Open opens (or creates) the audit database at path.
func Open(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}

	s := &AuditStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return s, nil
}

func (s *AuditStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		telemetry TEXT
	);

	CREATE TABLE IF NOT EXISTS run_events (
		run_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		title TEXT NOT NULL,
		venue TEXT,
		url TEXT,
		category TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		field_sources TEXT,
		citations TEXT,
		missing_fields TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, event_id)
	);

	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_run_events_status ON run_events(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun registers a run before any event is processed.
func (s *AuditStore) BeginRun(runID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final telemetry snapshot for a run.
func (s *AuditStore) FinishRun(runID string, finishedAt time.Time, snap telemetry.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	telemetryJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}
	_, err = s.db.Exec(`UPDATE runs SET finished_at = ?, telemetry = ? WHERE id = ?`,
		finishedAt.UTC(), string(telemetryJSON), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecordEvent stores one event's outcome under a run.
func (s *AuditStore) RecordEvent(runID string, rec EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := json.Marshal(rec.FieldSources)
	if err != nil {
		return fmt.Errorf("failed to marshal field sources: %w", err)
	}
	citations, err := json.Marshal(rec.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	missing, err := json.Marshal(rec.MissingFields)
	if err != nil {
		return fmt.Errorf("failed to marshal missing fields: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO run_events
			(run_id, event_id, title, venue, url, category, status, failure_reason, field_sources, citations, missing_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.EventID, rec.Title, rec.Venue, rec.URL, rec.Category,
		rec.Status, rec.FailureReason, string(sources), string(citations), string(missing))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *AuditStore) ListRuns(limit int) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT r.id, r.started_at, r.finished_at, COALESCE(r.telemetry, '{}'),
			(SELECT COUNT(*) FROM run_events e WHERE e.run_id = r.id)
		FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var telemetryJSON string
		// finished_at is scanned as NullTime and coalesced here rather than
		// in SQL: the sqlite driver only converts to time.Time when the
		// column's declared type is known, which an expression loses.
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.StartedAt, &finishedAt, &telemetryJSON, &run.Events); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time
		} else {
			run.FinishedAt = run.StartedAt
		}
		if err := json.Unmarshal([]byte(telemetryJSON), &run.Telemetry); err != nil {
			return nil, fmt.Errorf("failed to parse telemetry for run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// EventsForRun returns the stored outcomes of a run's events.
func (s *AuditStore) EventsForRun(runID string) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT event_id, title, venue, url, category, status, failure_reason, field_sources, citations, missing_fields
		FROM run_events WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var rec EventRecord
		var sources, citations, missing string
		if err := rows.Scan(&rec.EventID, &rec.Title, &rec.Venue, &rec.URL, &rec.Category,
			&rec.Status, &rec.FailureReason, &sources, &citations, &missing); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &rec.FieldSources); err != nil {
			return nil, fmt.Errorf("failed to parse field sources: %w", err)
		}
		if err := json.Unmarshal([]byte(citations), &rec.Citations); err != nil {
			return nil, fmt.Errorf("failed to parse citations: %w", err)
		}
		if err := json.Unmarshal([]byte(missing), &rec.MissingFields); err != nil {
			return nil, fmt.Errorf("failed to parse missing fields: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
