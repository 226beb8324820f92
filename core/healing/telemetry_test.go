package healing

import (
	"reflect"
	"testing"
)

func TestEventKind_Strings(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventAttemptStarted, "attempt_started"},
		{EventLocatorFailed, "locator_failed"},
		{EventUIDriftDetected, "ui_drift_detected"},
		{EventExecutorFailed, "executor_failed"},
		{EventHealingSuccess, "healing_success"},
		{EventRetryScheduled, "retry_scheduled"},
		{EventFallbackConsidered, "fallback_considered"},
		{EventFallbackApplied, "fallback_applied"},
		{EventReplanApplied, "replan_applied"},
		{EventDependencyRestarted, "dependency_restarted"},
		{EventRecoveryFailed, "recovery_failed"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestHealingTelemetry_RecordAppendsInOrder(t *testing.T) {
	telemetry := NewHealingTelemetry()

	telemetry.Record(EventAttemptStarted, map[string]any{"attempt": 1})
	telemetry.Record(EventLocatorFailed, map[string]any{"attempt": 1})
	telemetry.Record(EventAttemptStarted, map[string]any{"attempt": 2})

	events := telemetry.Events()
	if len(events) != 3 {
		t.Fatalf("Events len = %d, want 3", len(events))
	}
	wantKinds := []EventKind{EventAttemptStarted, EventLocatorFailed, EventAttemptStarted}
	for i, kind := range wantKinds {
		if events[i].Kind != kind {
			t.Errorf("events[%d].Kind = %v, want %v", i, events[i].Kind, kind)
		}
		if events[i].ID == "" {
			t.Errorf("events[%d].ID is empty", i)
		}
		if events[i].Timestamp.IsZero() {
			t.Errorf("events[%d].Timestamp is zero", i)
		}
	}
}

func TestHealingTelemetry_EventsIdempotent(t *testing.T) {
	telemetry := NewHealingTelemetry()
	telemetry.Record(EventHealingSuccess, map[string]any{"scenario_id": "s", "attempt": 2})
	telemetry.Record(EventRecoveryFailed, map[string]any{"scenario_id": "s"})

	first := telemetry.Events()
	second := telemetry.Events()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Events() calls differ:\nfirst  = %#v\nsecond = %#v", first, second)
	}
}

func TestHealingTelemetry_EventsAreCopies(t *testing.T) {
	telemetry := NewHealingTelemetry()
	telemetry.Record(EventAttemptStarted, map[string]any{"attempt": 1})

	events := telemetry.Events()
	events[0].Details["attempt"] = 99

	if got := telemetry.Events()[0].Details["attempt"]; got != 1 {
		t.Errorf("ledger detail mutated through Events() copy: attempt = %v, want 1", got)
	}
}

func TestHealingTelemetry_CountKind(t *testing.T) {
	telemetry := NewHealingTelemetry()
	telemetry.Record(EventAttemptStarted, nil)
	telemetry.Record(EventAttemptStarted, nil)
	telemetry.Record(EventHealingSuccess, nil)

	if got := telemetry.CountKind(EventAttemptStarted); got != 2 {
		t.Errorf("CountKind(attempt_started) = %d, want 2", got)
	}
	if got := telemetry.CountKind(EventExecutorFailed); got != 0 {
		t.Errorf("CountKind(executor_failed) = %d, want 0", got)
	}
}
