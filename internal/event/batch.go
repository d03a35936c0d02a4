package event

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// LoadBatch reads a JSON array of events from path, assigns IDs to records
// that arrived without one, and validates each record's shape.
func LoadBatch(path string) ([]*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var events []*Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}

	for i, ev := range events {
		if ev == nil {
			return nil, fmt.Errorf("event %d: null record", i)
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if err := ev.CheckShape(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return events, nil
}

// WriteBatch writes events as an indented JSON array to path.
func WriteBatch(path string, events []*Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	return nil
}
