package healing

import (
	"time"
)

// ContextKey is the reserved key in the shared run context holding the
// engine's audit log and latest telemetry snapshot.
const ContextKey = "self_healing"

// ContextStateManager owns the shared mutable run context. It is created
// once per run, passed by reference to the engine and to report consumers,
// and only ever appended to; the engine never replaces it.
//
// The audit log is a narrative, human-readable mirror of telemetry. The
// duplication is intentional: telemetry is structured and enumerable, the
// audit log is free-form history for people.
type ContextStateManager struct {
	context map[string]any
}

// NewContextStateManager wraps the given context map, initializing the
// reserved section exactly once. A nil map starts a fresh context.
func NewContextStateManager(context map[string]any) *ContextStateManager {
	if context == nil {
		context = make(map[string]any)
	}
	if _, ok := context[ContextKey]; !ok {
		context[ContextKey] = map[string]any{
			"audit_log": []map[string]any{},
			"telemetry": TelemetrySummary{},
		}
	}
	return &ContextStateManager{context: context}
}

// Context returns the shared context map.
func (m *ContextStateManager) Context() map[string]any {
	return m.context
}

// AppendAuditLog appends an entry to the audit log, stamping a timestamp
// if the entry lacks one.
func (m *ContextStateManager) AppendAuditLog(entry map[string]any) {
	payload := cloneMetadata(entry)
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	section := m.section()
	log, _ := section["audit_log"].([]map[string]any)
	section["audit_log"] = append(log, payload)
}

// AuditLog returns the ordered audit entries recorded so far.
func (m *ContextStateManager) AuditLog() []map[string]any {
	log, _ := m.section()["audit_log"].([]map[string]any)
	return log
}

// SetTelemetry overwrites the latest-snapshot field with a full telemetry
// summary. Callers read this field for current state and the audit log for
// the history of decisions.
func (m *ContextStateManager) SetTelemetry(summary TelemetrySummary) {
	m.section()["telemetry"] = summary
}

// Telemetry returns the latest telemetry snapshot.
func (m *ContextStateManager) Telemetry() TelemetrySummary {
	summary, _ := m.section()["telemetry"].(TelemetrySummary)
	return summary
}

func (m *ContextStateManager) section() map[string]any {
	section, ok := m.context[ContextKey].(map[string]any)
	if !ok {
		section = map[string]any{
			"audit_log": []map[string]any{},
			"telemetry": TelemetrySummary{},
		}
		m.context[ContextKey] = section
	}
	return section
}
