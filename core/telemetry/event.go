package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Outcome describes how an observed operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Event is a structured record of one stage of certificate management
// (directory discovery, challenge validation, renewal sweep, eviction, ...).
type Event struct {
	ID        string         `json:"id"`
	Component string         `json:"component"`
	Stage     string         `json:"stage"`
	Outcome   Outcome        `json:"outcome"`
	Duration  time.Duration  `json:"duration_ms"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent creates an Event with an auto-generated ID and timestamp.
func NewEvent(component, stage string, outcome Outcome, duration time.Duration, metadata map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Component: component,
		Stage:     stage,
		Outcome:   outcome,
		Duration:  duration,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}
