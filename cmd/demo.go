package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindmarionette/marionette/core/config"
	"github.com/mindmarionette/marionette/core/healing"
	"github.com/mindmarionette/marionette/core/orchestrator"
	"github.com/mindmarionette/marionette/core/reporting"
	"github.com/mindmarionette/marionette/core/visual"
)

var (
	demoConfigPath string
	demoFailUntil  int
	demoArchive    bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a simulated self-healing scenario end to end",
	Long: `Runs a locate-then-act scenario against a simulated UI whose locator
fails until a configurable attempt, exercising retries, fallback
strategies, dependency restarts, drift detection, visual verification,
and reporting.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoConfigPath, "config", "marionette.yaml", "config file path")
	demoCmd.Flags().IntVar(&demoFailUntil, "fail-until", 2, "locator fails on attempts before this one")
	demoCmd.Flags().BoolVar(&demoArchive, "archive", false, "archive the run report to SQLite")
	rootCmd.AddCommand(demoCmd)
}

// simulatedLocator fails deterministically until a configured attempt,
// unless a fallback strategy has set force_success.
type simulatedLocator struct {
	succeedAt int
}

func (l *simulatedLocator) Locate(request healing.HealingRequest, attempt int, _ map[string]any) (healing.LocatorResult, error) {
	force, _ := request.Metadata["force_success"].(bool)
	if attempt < l.succeedAt && !force {
		return healing.LocatorResult{}, fmt.Errorf("locator failed to find %v (attempt %d)", request.Target, attempt)
	}
	selector, _ := request.Metadata["selector"].(string)
	if selector == "" {
		selector = fmt.Sprintf("#%v", request.Target)
	}
	measurement := 0.02 + 0.01*float64(attempt)
	return healing.LocatorResult{
		Plan: map[string]any{
			"locator":     "css",
			"selector":    selector,
			"attempt":     attempt,
			"scenario_id": request.ScenarioID,
		},
		Metadata:    map[string]any{"locator_type": "css", "attempt": attempt},
		Measurement: &measurement,
	}, nil
}

type simulatedExecutor struct {
	executions int
}

func (e *simulatedExecutor) Execute(plan any, _ map[string]any) (any, error) {
	e.executions++
	planMap, _ := plan.(map[string]any)
	return map[string]any{
		"status":   "executed",
		"selector": planMap["selector"],
		"attempt":  planMap["attempt"],
	}, nil
}

// relaxSelectorStrategy widens the CSS selector one step per application.
func relaxSelectorStrategy() healing.FallbackStrategy {
	return healing.FallbackStrategy{
		Name: "relax_selector",
		Handler: func(request healing.HealingRequest, _ *healing.ActionHistory, _ map[string]any) (healing.HealingRequest, bool) {
			metadata := map[string]any{}
			for k, v := range request.Metadata {
				metadata[k] = v
			}
			selector, _ := metadata["selector"].(string)
			switch {
			case selector == "" || selector[0] == '#':
				metadata["selector"] = fmt.Sprintf(".%v", request.Target)
			case selector[0] == '.':
				metadata["selector"] = fmt.Sprintf("%v", request.Target)
			default:
				metadata["selector"] = "*"
			}
			return request.WithMetadata(metadata), true
		},
	}
}

// forceSuccessStrategy flips the simulated locator into its success path.
func forceSuccessStrategy() healing.FallbackStrategy {
	return healing.FallbackStrategy{
		Name: "force_success",
		Handler: func(request healing.HealingRequest, _ *healing.ActionHistory, _ map[string]any) (healing.HealingRequest, bool) {
			metadata := map[string]any{"force_success": true}
			for k, v := range request.Metadata {
				metadata[k] = v
			}
			return request.WithMetadata(metadata), true
		},
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	manager := config.NewManager(demoConfigPath, logger)
	if err := manager.Load(); err != nil {
		return err
	}
	cfg := manager.Get()

	policy, err := cfg.RetryPolicy()
	if err != nil {
		return err
	}

	sharedContext := map[string]any{}
	contextMgr := healing.NewContextStateManager(sharedContext)
	engine, err := healing.NewSelfHealingEngine(
		&simulatedLocator{succeedAt: demoFailUntil},
		&simulatedExecutor{},
		healing.EngineOptions{
			ContextManager: contextMgr,
			Policy:         &policy,
			History:        healing.NewActionHistoryWithOptions(cfg.HistoryOptions()),
			Logger:         logger,
			DelayFunc:      healing.Sleeper(cmd.Context()),
			DependencyRestarters: map[string]healing.RestartFunc{
				"browser-driver": func() error {
					logger.Info("restarting browser driver")
					return nil
				},
			},
		},
	)
	if err != nil {
		return err
	}

	request := healing.HealingRequest{
		ScenarioID: "demo-login",
		Target:     "login-button",
		Metadata:   map[string]any{},
		FallbackStrategies: []healing.FallbackStrategy{
			relaxSelectorStrategy(),
			forceSuccessStrategy(),
		},
		Dependencies: []string{"browser-driver", "session-db"},
	}

	result, err := engine.Run(request)
	var healingErr *healing.SelfHealingError
	switch {
	case errors.As(err, &healingErr):
		logger.Warn("scenario exhausted recovery", "scenario", healingErr.ScenarioID, "error", healingErr.LastErr)
	case err != nil:
		return err
	default:
		logger.Info("scenario recovered", "result", result)
	}

	printRunSummary(engine)

	if err := runVisualChecks(cmd.Context(), cfg, engine, sharedContext, logger); err != nil {
		return err
	}
	return nil
}

// runVisualChecks verifies a pair of synthetic screens and, when requested,
// archives the combined report.
func runVisualChecks(_ context.Context, cfg *config.Config, engine *healing.SelfHealingEngine, sharedContext map[string]any, logger *slog.Logger) error {
	core, err := visual.NewCore(visual.Options{
		StorageDir:         cfg.Visual.StorageDir,
		DefaultSensitivity: cfg.Visual.DefaultSensitivity,
		BaselineCacheSize:  cfg.Visual.BaselineCacheSize,
	})
	if err != nil {
		return err
	}

	pipeline := reporting.NewPipeline()
	agent := orchestrator.NewVisualTestingAgent(core, "", nil)
	orch := orchestrator.NewWorkflowOrchestrator([]orchestrator.Agent{agent}, pipeline, nil)

	scenario := orchestrator.VisualScenario{
		Name: "demo-visual",
		Screens: []orchestrator.ScreenCapture{
			{ScreenID: "login", Pixels: visual.Pixels{{10, 20, 30}, {40, 50, 60}}},
			{ScreenID: "dashboard", Pixels: visual.Pixels{{100, 110}, {120, 130}}},
		},
	}
	if _, err := orch.RunScenario(scenario, sharedContext); err != nil {
		return err
	}

	report := pipeline.BuildReport(engine.TelemetrySummary())
	if !demoArchive {
		return report.RenderJSON(os.Stdout)
	}

	archive, err := reporting.OpenArchive(cfg.Reporting.ArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	runID, err := archive.SaveRun("demo-login", report)
	if err != nil {
		return err
	}
	logger.Info("run archived", "run_id", runID, "path", cfg.Reporting.ArchivePath)
	return nil
}

func printRunSummary(engine *healing.SelfHealingEngine) {
	summary := engine.TelemetrySummary()
	fmt.Println("--- healing events ---")
	for _, event := range summary.Events {
		fmt.Printf("%s  %-22s %v\n", event.Timestamp.Format("15:04:05.000"), event.Kind, event.Details)
	}
	fmt.Println("--- dependency restarts ---")
	for name, count := range summary.DependencyRestarts {
		fmt.Printf("%-20s %d\n", name, count)
	}
	fmt.Println("--- audit log ---")
	for _, entry := range engine.ContextManager().AuditLog() {
		fmt.Printf("%v\n", entry)
	}
}
