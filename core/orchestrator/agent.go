// Package orchestrator coordinates registered agents over a shared run
// context and routes their results into a reporting sink.
package orchestrator

// Agent is the minimal behaviour the orchestrator expects. Prepare and
// Teardown bracket every execution; Teardown runs even when Execute fails.
type Agent interface {
	Name() string
	Prepare(context map[string]any)
	Execute(scenario any, context map[string]any) (any, error)
	Teardown(context map[string]any)
}

// BaseAgent carries the bookkeeping shared by concrete agents: it records
// its lifecycle status under the context's agent_state section.
type BaseAgent struct {
	name     string
	metadata map[string]any
}

// NewBaseAgent creates the embedded base for a concrete agent.
func NewBaseAgent(name string, metadata map[string]any) BaseAgent {
	return BaseAgent{name: name, metadata: metadata}
}

func (a BaseAgent) Name() string {
	return a.name
}

// Prepare marks the agent prepared in the shared context.
func (a BaseAgent) Prepare(context map[string]any) {
	states := agentState(context)
	states[a.name] = map[string]any{
		"status":   "prepared",
		"metadata": a.metadata,
	}
}

// Teardown marks the agent completed in the shared context.
func (a BaseAgent) Teardown(context map[string]any) {
	states := agentState(context)
	state, ok := states[a.name].(map[string]any)
	if !ok {
		state = map[string]any{}
		states[a.name] = state
	}
	state["status"] = "completed"
}

func agentState(context map[string]any) map[string]any {
	states, ok := context["agent_state"].(map[string]any)
	if !ok {
		states = map[string]any{}
		context["agent_state"] = states
	}
	return states
}
