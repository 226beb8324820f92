package orchestrator

import (
	"fmt"
	"log/slog"
)

// Hook names supported by the orchestrator.
const (
	HookBeforeAgent = "before_agent"
	HookAfterAgent  = "after_agent"
)

// HookPayload is handed to every hook invocation.
type HookPayload struct {
	Agent    Agent
	Scenario any
	Context  map[string]any
	Result   any
}

// Hook observes agent execution. Hooks must not mutate the scenario.
type Hook func(HookPayload)

// ResultSink receives each agent's non-nil result; the reporting pipeline
// is the usual implementation.
type ResultSink interface {
	AppendResult(agentName string, result any, context map[string]any) error
}

// WorkflowOrchestrator runs scenarios by driving registered agents in
// order and feeding their results to the sink.
type WorkflowOrchestrator struct {
	agents []Agent
	sink   ResultSink
	hooks  map[string][]Hook
	logger *slog.Logger
}

// NewWorkflowOrchestrator creates an orchestrator over the given agents.
func NewWorkflowOrchestrator(agents []Agent, sink ResultSink, logger *slog.Logger) *WorkflowOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowOrchestrator{
		agents: append([]Agent(nil), agents...),
		sink:   sink,
		hooks: map[string][]Hook{
			HookBeforeAgent: {},
			HookAfterAgent:  {},
		},
		logger: logger,
	}
}

// RegisterHook attaches a hook to one of the supported hook points.
func (o *WorkflowOrchestrator) RegisterHook(name string, hook Hook) error {
	if _, ok := o.hooks[name]; !ok {
		return fmt.Errorf("unsupported hook %q", name)
	}
	o.hooks[name] = append(o.hooks[name], hook)
	return nil
}

func (o *WorkflowOrchestrator) emit(name string, payload HookPayload) {
	for _, hook := range o.hooks[name] {
		hook(payload)
	}
}

// RunScenario drives every agent over the scenario, returning the shared
// context. Teardown always runs, even when an agent's Execute fails; an
// execution or sink error stops the remaining agents.
func (o *WorkflowOrchestrator) RunScenario(scenario any, context map[string]any) (map[string]any, error) {
	if context == nil {
		context = map[string]any{}
	}
	for _, agent := range o.agents {
		result, err := o.runAgent(agent, scenario, context)
		if err != nil {
			return context, err
		}
		if result == nil {
			continue
		}
		if o.sink != nil {
			if err := o.sink.AppendResult(agent.Name(), result, context); err != nil {
				return context, fmt.Errorf("report results for agent %s: %w", agent.Name(), err)
			}
		}
	}
	return context, nil
}

func (o *WorkflowOrchestrator) runAgent(agent Agent, scenario any, context map[string]any) (result any, err error) {
	agent.Prepare(context)
	o.emit(HookBeforeAgent, HookPayload{Agent: agent, Scenario: scenario, Context: context})
	defer func() {
		agent.Teardown(context)
		o.emit(HookAfterAgent, HookPayload{Agent: agent, Scenario: scenario, Context: context, Result: result})
	}()

	o.logger.Debug("running agent", "agent", agent.Name())
	result, err = agent.Execute(scenario, context)
	if err != nil {
		o.logger.Warn("agent execution failed", "agent", agent.Name(), "error", err)
		return nil, fmt.Errorf("agent %s: %w", agent.Name(), err)
	}
	return result, nil
}
