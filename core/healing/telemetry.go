package healing

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a telemetry event emitted by the engine.
type EventKind int

const (
	EventAttemptStarted EventKind = iota
	EventLocatorFailed
	EventUIDriftDetected
	EventExecutorFailed
	EventHealingSuccess
	EventRetryScheduled
	EventFallbackConsidered
	EventFallbackApplied
	EventReplanApplied
	EventDependencyRestarted
	EventRecoveryFailed
)

func (k EventKind) String() string {
	switch k {
	case EventAttemptStarted:
		return "attempt_started"
	case EventLocatorFailed:
		return "locator_failed"
	case EventUIDriftDetected:
		return "ui_drift_detected"
	case EventExecutorFailed:
		return "executor_failed"
	case EventHealingSuccess:
		return "healing_success"
	case EventRetryScheduled:
		return "retry_scheduled"
	case EventFallbackConsidered:
		return "fallback_considered"
	case EventFallbackApplied:
		return "fallback_applied"
	case EventReplanApplied:
		return "replan_applied"
	case EventDependencyRestarted:
		return "dependency_restarted"
	case EventRecoveryFailed:
		return "recovery_failed"
	default:
		return "unknown"
	}
}

// MarshalText lets event kinds serialize by name in JSON/YAML exports.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// HealingEvent is one timestamped entry in the telemetry ledger.
type HealingEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      EventKind      `json:"kind"`
	Details   map[string]any `json:"details"`
}

// HealingTelemetry is the append-only ledger of engine decisions and
// outcomes. Events are never mutated or removed once recorded.
type HealingTelemetry struct {
	events []HealingEvent
}

// NewHealingTelemetry creates an empty ledger.
func NewHealingTelemetry() *HealingTelemetry {
	return &HealingTelemetry{}
}

// Record appends a timestamped event. It never fails.
func (t *HealingTelemetry) Record(kind EventKind, details map[string]any) {
	t.events = append(t.events, HealingEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Details:   cloneMetadata(details),
	})
}

// Events returns the full ordered event list. Each call yields an
// independent copy, so repeated calls without intervening recording are
// identical and callers cannot corrupt the ledger.
func (t *HealingTelemetry) Events() []HealingEvent {
	events := make([]HealingEvent, len(t.events))
	for i, event := range t.events {
		event.Details = cloneMetadata(event.Details)
		events[i] = event
	}
	return events
}

// Len returns the number of recorded events.
func (t *HealingTelemetry) Len() int {
	return len(t.events)
}

// CountKind returns how many events of the given kind have been recorded.
func (t *HealingTelemetry) CountKind(kind EventKind) int {
	count := 0
	for _, event := range t.events {
		if event.Kind == kind {
			count++
		}
	}
	return count
}

// TelemetrySummary is the exported snapshot shape consumed by reporting:
// the full event sequence plus dependency restart counts.
type TelemetrySummary struct {
	Events             []HealingEvent `json:"events"`
	DependencyRestarts map[string]int `json:"dependency_restarts"`
}
