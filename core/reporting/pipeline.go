// Package reporting collects verification findings into report entries,
// renders them as JSON or HTML, and optionally archives runs to SQLite.
package reporting

import (
	"fmt"

	"github.com/mindmarionette/marionette/core/visual"
)

// ReportEntry is one aggregated finding attributed to an agent.
type ReportEntry struct {
	Agent                  string   `json:"agent"`
	ScreenID               string   `json:"screen_id"`
	Status                 string   `json:"status"`
	DiffRatio              float64  `json:"diff_ratio"`
	Sensitivity            float64  `json:"sensitivity"`
	Screenshot             string   `json:"screenshot"`
	RemediationSuggestions []string `json:"remediation_suggestions"`
}

// Pipeline aggregates visual findings and mirrors them into the shared run
// context under report.visual_findings, where report consumers expect them.
type Pipeline struct {
	entries []ReportEntry
}

// NewPipeline creates an empty reporting pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Entries returns the collected report entries in arrival order.
func (p *Pipeline) Entries() []ReportEntry {
	return append([]ReportEntry(nil), p.entries...)
}

// AppendResult ingests an agent result: a single visual.Result or a slice
// of them. Anything else is a pipeline wiring mistake and is rejected.
func (p *Pipeline) AppendResult(agentName string, result any, context map[string]any) error {
	switch v := result.(type) {
	case visual.Result:
		p.appendSingle(agentName, v, context)
	case *visual.Result:
		if v != nil {
			p.appendSingle(agentName, *v, context)
		}
	case []visual.Result:
		for _, item := range v {
			p.appendSingle(agentName, item, context)
		}
	default:
		return fmt.Errorf("visual reporting pipeline expects visual results, got %T", result)
	}
	return nil
}

func (p *Pipeline) appendSingle(agentName string, result visual.Result, context map[string]any) {
	screenshot := result.DiffPath
	if screenshot == "" {
		screenshot = result.BaselinePath
	}
	entry := ReportEntry{
		Agent:                  agentName,
		ScreenID:               result.ScreenID,
		Status:                 result.Status,
		DiffRatio:              result.DiffRatio,
		Sensitivity:            result.Sensitivity,
		Screenshot:             screenshot,
		RemediationSuggestions: append([]string(nil), result.RemediationSuggestions...),
	}
	p.entries = append(p.entries, entry)
	mirrorIntoContext(entry, context)
}

func mirrorIntoContext(entry ReportEntry, context map[string]any) {
	if context == nil {
		return
	}
	report, ok := context["report"].(map[string]any)
	if !ok {
		report = map[string]any{}
		context["report"] = report
	}
	findings, _ := report["visual_findings"].([]map[string]any)
	report["visual_findings"] = append(findings, map[string]any{
		"agent":                   entry.Agent,
		"screen_id":               entry.ScreenID,
		"status":                  entry.Status,
		"diff_ratio":              entry.DiffRatio,
		"sensitivity":             entry.Sensitivity,
		"screenshot":              entry.Screenshot,
		"remediation_suggestions": entry.RemediationSuggestions,
	})
}
