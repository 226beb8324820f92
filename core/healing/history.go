package healing

import (
	"time"
)

const (
	defaultHistoryCapacity = 50
	defaultDriftWindow     = 3
	defaultDriftTolerance  = 0.05
)

// Status classifies a recorded attempt outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// HistoryEntry is a single recorded outcome for a scenario. Entries are
// owned by the ActionHistory that recorded them.
type HistoryEntry struct {
	Status      Status
	Measurement *float64
	Metadata    map[string]any
	Timestamp   time.Time
}

// ActionHistory tracks past outcomes per scenario in bounded ring buffers
// and supplies the drift verdicts consumed by the engine.
type ActionHistory struct {
	capacity  int
	window    int
	tolerance float64
	records   map[string]*ringBuffer[HistoryEntry]
}

// HistoryOptions tunes an ActionHistory. Zero values select the defaults
// (capacity 50, drift window 3, drift tolerance 0.05).
type HistoryOptions struct {
	Capacity       int
	DriftWindow    int
	DriftTolerance float64
}

// NewActionHistory creates a history with default options.
func NewActionHistory() *ActionHistory {
	return NewActionHistoryWithOptions(HistoryOptions{})
}

// NewActionHistoryWithOptions creates a history with explicit tuning.
func NewActionHistoryWithOptions(opts HistoryOptions) *ActionHistory {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	window := opts.DriftWindow
	if window <= 0 {
		window = defaultDriftWindow
	}
	tolerance := opts.DriftTolerance
	if tolerance <= 0 {
		tolerance = defaultDriftTolerance
	}
	return &ActionHistory{
		capacity:  capacity,
		window:    window,
		tolerance: tolerance,
		records:   make(map[string]*ringBuffer[HistoryEntry]),
	}
}

// RecordOutcome appends an outcome for the scenario, evicting the oldest
// entry once the buffer is at capacity. Non-numeric measurements are stored
// as absent; recording never fails.
func (h *ActionHistory) RecordOutcome(scenarioID string, status Status, measurement any, metadata map[string]any) {
	buf, ok := h.records[scenarioID]
	if !ok {
		buf = newRingBuffer[HistoryEntry](h.capacity)
		h.records[scenarioID] = buf
	}
	buf.push(HistoryEntry{
		Status:      status,
		Measurement: coerceMeasurement(measurement),
		Metadata:    cloneMetadata(metadata),
		Timestamp:   time.Now().UTC(),
	})
}

// RecentMeasurements returns up to limit of the scenario's most recent
// numeric measurements in chronological order. Entries without a numeric
// measurement are skipped.
func (h *ActionHistory) RecentMeasurements(scenarioID string, limit int) []float64 {
	buf, ok := h.records[scenarioID]
	if !ok || limit <= 0 {
		return nil
	}
	entries := buf.all()
	var reversed []float64
	for i := len(entries) - 1; i >= 0 && len(reversed) < limit; i-- {
		if entries[i].Measurement != nil {
			reversed = append(reversed, *entries[i].Measurement)
		}
	}
	measurements := make([]float64, len(reversed))
	for i, v := range reversed {
		measurements[len(reversed)-1-i] = v
	}
	return measurements
}

// Len returns the number of entries currently stored for the scenario.
func (h *ActionHistory) Len(scenarioID string) int {
	buf, ok := h.records[scenarioID]
	if !ok {
		return 0
	}
	return buf.len()
}

// Entries returns a copy of the scenario's entries in chronological order.
func (h *ActionHistory) Entries(scenarioID string) []HistoryEntry {
	buf, ok := h.records[scenarioID]
	if !ok {
		return nil
	}
	return buf.all()
}

// DetectUIDrift reports whether the measurement exceeds the recent baseline
// for the scenario using the history's configured window and tolerance.
//
// The baseline is the mean of the window-1 most recent numeric measurements.
// A zero baseline compares the measurement against the tolerance directly.
// This is a deliberate simplification: a moving-average threshold detector,
// not a statistical test. The verdict is advisory; the engine logs it and
// keeps going.
func (h *ActionHistory) DetectUIDrift(scenarioID string, measurement any) bool {
	return h.DetectUIDriftWindow(scenarioID, measurement, h.window, h.tolerance)
}

// DetectUIDriftWindow is DetectUIDrift with an explicit window and tolerance.
func (h *ActionHistory) DetectUIDriftWindow(scenarioID string, measurement any, window int, tolerance float64) bool {
	value := coerceMeasurement(measurement)
	if value == nil || window < 2 {
		return false
	}

	recent := h.RecentMeasurements(scenarioID, window-1)
	if len(recent) < window-1 {
		return false
	}

	var sum float64
	for _, v := range recent {
		sum += v
	}
	baseline := sum / float64(len(recent))
	if baseline == 0 {
		return *value > tolerance
	}
	return *value > baseline+tolerance
}

// coerceMeasurement converts loosely-typed measurement values to *float64,
// returning nil for anything non-numeric.
func coerceMeasurement(measurement any) *float64 {
	switch v := measurement.(type) {
	case nil:
		return nil
	case *float64:
		if v == nil {
			return nil
		}
		value := *v
		return &value
	case float64:
		return &v
	case float32:
		value := float64(v)
		return &value
	case int:
		value := float64(v)
		return &value
	case int32:
		value := float64(v)
		return &value
	case int64:
		value := float64(v)
		return &value
	default:
		return nil
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	cloned := make(map[string]any, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
