package healing

import (
	"testing"
)

func recordMeasurements(h *ActionHistory, scenarioID string, values ...float64) {
	for _, v := range values {
		h.RecordOutcome(scenarioID, StatusSuccess, v, nil)
	}
}

func TestActionHistory_CapacityEvictsOldestFirst(t *testing.T) {
	h := NewActionHistoryWithOptions(HistoryOptions{Capacity: 3})

	for i := 0; i < 5; i++ {
		h.RecordOutcome("scenario", StatusSuccess, float64(i), nil)
	}

	if got := h.Len("scenario"); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	got := h.RecentMeasurements("scenario", 10)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("RecentMeasurements len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RecentMeasurements[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestActionHistory_RecentMeasurementsSkipsAbsent(t *testing.T) {
	h := NewActionHistory()

	h.RecordOutcome("scenario", StatusSuccess, 0.1, nil)
	h.RecordOutcome("scenario", StatusFailure, nil, map[string]any{"stage": "locator"})
	h.RecordOutcome("scenario", StatusSuccess, 0.2, nil)
	h.RecordOutcome("scenario", StatusFailure, "not-a-number", nil)

	got := h.RecentMeasurements("scenario", 5)
	want := []float64{0.1, 0.2}
	if len(got) != len(want) {
		t.Fatalf("RecentMeasurements = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RecentMeasurements[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestActionHistory_RecentMeasurementsUnknownScenario(t *testing.T) {
	h := NewActionHistory()
	if got := h.RecentMeasurements("missing", 3); len(got) != 0 {
		t.Errorf("RecentMeasurements on empty scenario = %v, want empty", got)
	}
}

func TestActionHistory_RecordOutcomeCopiesMetadata(t *testing.T) {
	h := NewActionHistory()
	metadata := map[string]any{"stage": "executor"}
	h.RecordOutcome("scenario", StatusSuccess, 1.0, metadata)

	metadata["stage"] = "mutated"

	entries := h.Entries("scenario")
	if len(entries) != 1 {
		t.Fatalf("Entries len = %d, want 1", len(entries))
	}
	if got := entries[0].Metadata["stage"]; got != "executor" {
		t.Errorf("stored metadata stage = %v, want executor", got)
	}
}

func TestDetectUIDrift_InsufficientHistory(t *testing.T) {
	h := NewActionHistory()

	// window-1 = 2 prior measurements required; provide just one.
	recordMeasurements(h, "scenario", 0.02)

	if h.DetectUIDrift("scenario", 10.0) {
		t.Error("drift detected with insufficient history")
	}
}

func TestDetectUIDrift_AbsentOrNonNumericMeasurement(t *testing.T) {
	h := NewActionHistory()
	recordMeasurements(h, "scenario", 0.02, 0.03)

	if h.DetectUIDrift("scenario", nil) {
		t.Error("drift detected for absent measurement")
	}
	if h.DetectUIDrift("scenario", "wild") {
		t.Error("drift detected for non-numeric measurement")
	}
}

func TestDetectUIDrift_ThresholdAgainstBaseline(t *testing.T) {
	h := NewActionHistory()
	recordMeasurements(h, "scenario", 0.02, 0.03)

	// baseline = mean(0.02, 0.03) = 0.025; threshold = 0.075.
	if !h.DetectUIDrift("scenario", 0.15) {
		t.Error("0.15 should exceed baseline+tolerance 0.075")
	}
	if h.DetectUIDrift("scenario", 0.05) {
		t.Error("0.05 should stay within baseline+tolerance 0.075")
	}
}

func TestDetectUIDrift_ZeroBaselineComparesTolerance(t *testing.T) {
	h := NewActionHistory()
	recordMeasurements(h, "scenario", 0, 0)

	if !h.DetectUIDrift("scenario", 0.06) {
		t.Error("0.06 should exceed tolerance 0.05 over a zero baseline")
	}
	if h.DetectUIDrift("scenario", 0.04) {
		t.Error("0.04 should stay within tolerance 0.05 over a zero baseline")
	}
}

func TestDetectUIDrift_WindowBelowTwo(t *testing.T) {
	h := NewActionHistory()
	recordMeasurements(h, "scenario", 0.02, 0.03)

	if h.DetectUIDriftWindow("scenario", 5.0, 1, 0.05) {
		t.Error("drift detected with window < 2")
	}
}

func TestCoerceMeasurement(t *testing.T) {
	value := 1.5
	tests := []struct {
		name  string
		input any
		want  *float64
	}{
		{"nil", nil, nil},
		{"float64", 1.5, &value},
		{"float32", float32(1.5), &value},
		{"int", 1, floatPtr(1)},
		{"int64", int64(2), floatPtr(2)},
		{"pointer", &value, &value},
		{"nil pointer", (*float64)(nil), nil},
		{"string", "0.5", nil},
		{"bool", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coerceMeasurement(tt.input)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("coerceMeasurement(%v) = %v, want nil", tt.input, *got)
			case tt.want != nil && got == nil:
				t.Errorf("coerceMeasurement(%v) = nil, want %v", tt.input, *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("coerceMeasurement(%v) = %v, want %v", tt.input, *got, *tt.want)
			}
		})
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
