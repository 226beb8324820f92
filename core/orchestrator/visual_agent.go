package orchestrator

import (
	"fmt"

	"github.com/mindmarionette/marionette/core/visual"
)

// ScreenCapture is one screen's pixels within a visual scenario. A nil
// SensitivityOverride defers to the agent, then to the core's default.
type ScreenCapture struct {
	ScreenID            string
	Pixels              visual.Pixels
	SensitivityOverride *float64
	Metadata            map[string]any
}

// VisualScenario names an ordered set of screens to verify.
type VisualScenario struct {
	Name    string
	Screens []ScreenCapture
}

// VisualTestingAgent verifies each screen in a scenario against its stored
// baseline and records artifacts into the shared context.
type VisualTestingAgent struct {
	BaseAgent
	core               *visual.Core
	defaultSensitivity *float64
}

// NewVisualTestingAgent creates the agent. A nil defaultSensitivity defers
// to the core's default.
func NewVisualTestingAgent(core *visual.Core, name string, defaultSensitivity *float64) *VisualTestingAgent {
	if name == "" {
		name = "visual-testing"
	}
	return &VisualTestingAgent{
		BaseAgent:          NewBaseAgent(name, nil),
		core:               core,
		defaultSensitivity: defaultSensitivity,
	}
}

// Execute verifies every screen and returns the collected results.
func (a *VisualTestingAgent) Execute(scenario any, context map[string]any) (any, error) {
	visualScenario, ok := scenario.(VisualScenario)
	if !ok {
		return nil, fmt.Errorf("visual testing agent expects a VisualScenario, got %T", scenario)
	}

	results := make([]visual.Result, 0, len(visualScenario.Screens))
	for _, screen := range visualScenario.Screens {
		result, err := a.core.Verify(screen.ScreenID, screen.Pixels, a.resolveSensitivity(screen))
		if err != nil {
			return nil, fmt.Errorf("verify screen %s: %w", screen.ScreenID, err)
		}
		results = append(results, result)
		a.recordArtifact(screen, result, context)
	}
	return results, nil
}

func (a *VisualTestingAgent) resolveSensitivity(screen ScreenCapture) float64 {
	if screen.SensitivityOverride != nil {
		return *screen.SensitivityOverride
	}
	if a.defaultSensitivity != nil {
		return *a.defaultSensitivity
	}
	return visual.UseDefaultSensitivity
}

func (a *VisualTestingAgent) recordArtifact(screen ScreenCapture, result visual.Result, context map[string]any) {
	screenshot := result.DiffPath
	if screenshot == "" {
		screenshot = result.BaselinePath
	}
	artifacts, ok := context["visual_artifacts"].(map[string]any)
	if !ok {
		artifacts = map[string]any{}
		context["visual_artifacts"] = artifacts
	}
	records, _ := artifacts[screen.ScreenID].([]map[string]any)
	var scenarioName any
	if screen.Metadata != nil {
		scenarioName = screen.Metadata["scenario"]
	}
	artifacts[screen.ScreenID] = append(records, map[string]any{
		"scenario":   scenarioName,
		"screenshot": screenshot,
		"status":     result.Status,
	})
}
