package healing

import (
	"testing"
)

func TestContextStateManager_InitializesReservedSectionOnce(t *testing.T) {
	shared := map[string]any{"workflow": "checkout"}
	manager := NewContextStateManager(shared)

	section, ok := shared[ContextKey].(map[string]any)
	if !ok {
		t.Fatalf("reserved section missing from shared context: %#v", shared)
	}
	if _, ok := section["audit_log"]; !ok {
		t.Error("audit_log not initialized")
	}
	if _, ok := section["telemetry"]; !ok {
		t.Error("telemetry not initialized")
	}

	// Populate, then re-wrap; the existing section must survive.
	manager.AppendAuditLog(map[string]any{"event": "healing_success", "scenario_id": "s"})
	rewrapped := NewContextStateManager(shared)
	if got := len(rewrapped.AuditLog()); got != 1 {
		t.Errorf("audit log after re-wrap len = %d, want 1", got)
	}
}

func TestContextStateManager_AppendAuditLogStampsTimestamp(t *testing.T) {
	manager := NewContextStateManager(nil)

	manager.AppendAuditLog(map[string]any{"event": "locator_failed", "scenario_id": "s"})

	log := manager.AuditLog()
	if len(log) != 1 {
		t.Fatalf("AuditLog len = %d, want 1", len(log))
	}
	if _, ok := log[0]["timestamp"]; !ok {
		t.Error("appended entry lacks timestamp")
	}
}

func TestContextStateManager_AppendAuditLogKeepsExistingTimestamp(t *testing.T) {
	manager := NewContextStateManager(nil)

	manager.AppendAuditLog(map[string]any{"event": "retry_scheduled", "timestamp": "fixed"})

	if got := manager.AuditLog()[0]["timestamp"]; got != "fixed" {
		t.Errorf("timestamp = %v, want caller-provided value", got)
	}
}

func TestContextStateManager_AppendAuditLogCopiesEntry(t *testing.T) {
	manager := NewContextStateManager(nil)
	entry := map[string]any{"event": "replan_applied", "attempt": 2}

	manager.AppendAuditLog(entry)
	entry["attempt"] = 99

	if got := manager.AuditLog()[0]["attempt"]; got != 2 {
		t.Errorf("stored entry mutated through caller map: attempt = %v, want 2", got)
	}
}

func TestContextStateManager_SetTelemetryOverwrites(t *testing.T) {
	manager := NewContextStateManager(nil)

	manager.SetTelemetry(TelemetrySummary{DependencyRestarts: map[string]int{"db": 1}})
	manager.SetTelemetry(TelemetrySummary{DependencyRestarts: map[string]int{"db": 3}})

	if got := manager.Telemetry().DependencyRestarts["db"]; got != 3 {
		t.Errorf("telemetry snapshot not overwritten: db restarts = %d, want 3", got)
	}
}
