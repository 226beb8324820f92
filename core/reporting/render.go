package reporting

import (
	"encoding/json"
	"html/template"
	"io"
	"time"

	"github.com/mindmarionette/marionette/core/healing"
)

// Report is the renderable aggregate of a run: findings plus the engine's
// telemetry snapshot.
type Report struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Entries     []ReportEntry            `json:"entries"`
	Telemetry   healing.TelemetrySummary `json:"telemetry"`
}

// BuildReport assembles a report from the pipeline and a telemetry summary.
func (p *Pipeline) BuildReport(telemetry healing.TelemetrySummary) Report {
	return Report{
		GeneratedAt: time.Now().UTC(),
		Entries:     p.Entries(),
		Telemetry:   telemetry,
	}
}

// RenderJSON writes the report as indented JSON.
func (r Report) RenderJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>Marionette Run Report</title></head>
<body>
<h1>Marionette Run Report</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<h2>Visual Findings</h2>
<table border="1">
<tr><th>Agent</th><th>Screen</th><th>Status</th><th>Diff</th><th>Sensitivity</th><th>Screenshot</th></tr>
{{range .Entries}}<tr>
<td>{{.Agent}}</td><td>{{.ScreenID}}</td><td>{{.Status}}</td>
<td>{{printf "%.3f" .DiffRatio}}</td><td>{{printf "%.3f" .Sensitivity}}</td><td>{{.Screenshot}}</td>
</tr>
{{end}}</table>
<h2>Healing Events</h2>
<table border="1">
<tr><th>Timestamp</th><th>Kind</th></tr>
{{range .Telemetry.Events}}<tr><td>{{.Timestamp.Format "15:04:05.000"}}</td><td>{{.Kind}}</td></tr>
{{end}}</table>
<h2>Dependency Restarts</h2>
<table border="1">
<tr><th>Dependency</th><th>Restarts</th></tr>
{{range $name, $count := .Telemetry.DependencyRestarts}}<tr><td>{{$name}}</td><td>{{$count}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// RenderHTML writes the report as a standalone HTML page.
func (r Report) RenderHTML(w io.Writer) error {
	return htmlReport.Execute(w, r)
}
