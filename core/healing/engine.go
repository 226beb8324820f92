// Package healing implements the self-healing recovery engine: a bounded
// retry/fallback state machine around an external locator and executor,
// with drift detection over recorded history, an append-only telemetry
// ledger, an audit-log mirror in the shared run context, and coordinated
// dependency restarts.
//
// The engine runs a single recovery synchronously in the calling goroutine
// and none of its collaborators are internally synchronized. Confine an
// engine (and the history/telemetry/context it was built with) to one run
// at a time; concurrent scenarios each get their own engine.
package healing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MetadataKeyHealingPlans is the reserved request-metadata key under which
// the engine appends generic replan markers.
const MetadataKeyHealingPlans = "healing_plans"

// HealingRequest describes one recovery job. It is treated as an immutable
// value: fallback strategies and the engine's replan step produce new
// requests via WithMetadata rather than mutating in place, so the original
// request (and its scenario ID) survives for the terminal error.
type HealingRequest struct {
	ScenarioID         string
	Target             any
	Metadata           map[string]any
	FallbackStrategies []FallbackStrategy
	Dependencies       []string
}

// WithMetadata returns a copy of the request carrying the given metadata
// map. The map is cloned so no two requests alias the same storage.
func (r HealingRequest) WithMetadata(metadata map[string]any) HealingRequest {
	next := r
	next.Metadata = cloneMetadata(metadata)
	return next
}

// LocatorResult is the outcome of a locator pass prior to executing an
// action. Plan is opaque to the engine and handed unchanged to the
// executor; Measurement feeds drift detection when present.
type LocatorResult struct {
	Plan        any
	Metadata    map[string]any
	Measurement *float64
}

// Locator resolves a request into an executable plan. Implementations must
// tolerate being retried and may read, but not corrupt, the shared context.
type Locator interface {
	Locate(request HealingRequest, attempt int, context map[string]any) (LocatorResult, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(request HealingRequest, attempt int, context map[string]any) (LocatorResult, error)

func (f LocatorFunc) Locate(request HealingRequest, attempt int, context map[string]any) (LocatorResult, error) {
	return f(request, attempt, context)
}

// Executor performs a located plan.
type Executor interface {
	Execute(plan any, context map[string]any) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(plan any, context map[string]any) (any, error)

func (f ExecutorFunc) Execute(plan any, context map[string]any) (any, error) {
	return f(plan, context)
}

// FallbackFunc inspects a failed request and proposes a replacement. It
// must be pure apart from reading history and context. Returning ok=false
// keeps the current request unchanged.
type FallbackFunc func(request HealingRequest, history *ActionHistory, context map[string]any) (HealingRequest, bool)

// FallbackStrategy is a named request mutation consumed between failed
// attempts, at most one per retry, in FIFO order.
type FallbackStrategy struct {
	Name    string
	Handler FallbackFunc
}

// Apply runs the strategy's handler, falling back to the original request
// when the handler declines to change it.
func (s FallbackStrategy) Apply(request HealingRequest, history *ActionHistory, context map[string]any) HealingRequest {
	if s.Handler == nil {
		return request
	}
	updated, ok := s.Handler(request, history, context)
	if !ok {
		return request
	}
	return updated
}

// SelfHealingError is the terminal failure returned once every permitted
// attempt is exhausted. It carries the original request's scenario ID and
// the last underlying error, which may be nil if only pre-execution
// conditions failed.
type SelfHealingError struct {
	ScenarioID string
	LastErr    error
}

func (e *SelfHealingError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("self-healing exhausted for %q: %v", e.ScenarioID, e.LastErr)
	}
	return fmt.Sprintf("self-healing exhausted for %q", e.ScenarioID)
}

func (e *SelfHealingError) Unwrap() error {
	return e.LastErr
}

// DelayFunc is invoked with each scheduled retry delay. The engine never
// sleeps on its own; installing a DelayFunc is how a caller honors delays.
type DelayFunc func(delay time.Duration)

// Sleeper returns a DelayFunc that sleeps for the scheduled delay, waking
// early if the context is cancelled. Cancellation does not abort the run;
// a single Run call is atomic from the caller's perspective.
func Sleeper(ctx context.Context) DelayFunc {
	return func(delay time.Duration) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// EngineOptions configures a SelfHealingEngine. Nil fields select defaults.
type EngineOptions struct {
	ContextManager       *ContextStateManager
	Policy               *RetryPolicy
	History              *ActionHistory
	Telemetry            *HealingTelemetry
	DependencyRestarters map[string]RestartFunc
	Logger               *slog.Logger
	DelayFunc            DelayFunc
}

// SelfHealingEngine composes locator, executor, policy, history, telemetry,
// context, and dependency coordination into the retry/fallback loop.
type SelfHealingEngine struct {
	locator      Locator
	executor     Executor
	contextMgr   *ContextStateManager
	policy       RetryPolicy
	history      *ActionHistory
	telemetry    *HealingTelemetry
	dependencies *DependencyManager
	logger       *slog.Logger
	delayFn      DelayFunc
}

// NewSelfHealingEngine validates the configuration and builds an engine.
func NewSelfHealingEngine(locator Locator, executor Executor, opts EngineOptions) (*SelfHealingEngine, error) {
	if locator == nil {
		return nil, errors.New("self-healing engine requires a locator")
	}
	if executor == nil {
		return nil, errors.New("self-healing engine requires an executor")
	}
	policy := DefaultRetryPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	contextMgr := opts.ContextManager
	if contextMgr == nil {
		contextMgr = NewContextStateManager(nil)
	}
	history := opts.History
	if history == nil {
		history = NewActionHistory()
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		telemetry = NewHealingTelemetry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SelfHealingEngine{
		locator:      locator,
		executor:     executor,
		contextMgr:   contextMgr,
		policy:       policy,
		history:      history,
		telemetry:    telemetry,
		dependencies: NewDependencyManager(opts.DependencyRestarters),
		logger:       logger,
		delayFn:      opts.DelayFunc,
	}, nil
}

// Telemetry returns the engine's event ledger.
func (e *SelfHealingEngine) Telemetry() *HealingTelemetry {
	return e.telemetry
}

// History returns the engine's action history.
func (e *SelfHealingEngine) History() *ActionHistory {
	return e.history
}

// ContextManager returns the shared run context manager.
func (e *SelfHealingEngine) ContextManager() *ContextStateManager {
	return e.contextMgr
}

// Context returns the shared run context map.
func (e *SelfHealingEngine) Context() map[string]any {
	return e.contextMgr.Context()
}

// Policy returns the engine's retry policy.
func (e *SelfHealingEngine) Policy() RetryPolicy {
	return e.policy
}

// Dependencies returns the engine's dependency coordinator.
func (e *SelfHealingEngine) Dependencies() *DependencyManager {
	return e.dependencies
}

// TelemetrySummary assembles the exportable snapshot of events and
// dependency restart counts.
func (e *SelfHealingEngine) TelemetrySummary() TelemetrySummary {
	return TelemetrySummary{
		Events:             e.telemetry.Events(),
		DependencyRestarts: e.dependencies.Counts(),
	}
}

// Run executes the recovery loop for the request until the executor
// succeeds or attempts are exhausted. All recoverable failures are absorbed
// inside the loop; only the terminal outcome crosses this boundary. Every
// telemetry event and audit entry recorded along the way remains, including
// from attempts superseded by a later success.
//
// A dependency restart error is the one exception: it aborts the run
// immediately without being folded into the retry path.
func (e *SelfHealingEngine) Run(request HealingRequest) (any, error) {
	fallbackQueue := append([]FallbackStrategy(nil), request.FallbackStrategies...)
	current := request
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		e.telemetry.Record(EventAttemptStarted, map[string]any{
			"scenario_id": current.ScenarioID,
			"attempt":     attempt,
		})
		e.logger.Debug("healing attempt started",
			"scenario", current.ScenarioID,
			"attempt", attempt,
		)

		located, err := e.locator.Locate(current, attempt, e.contextMgr.Context())
		if err != nil {
			lastErr = err
			e.recordStageFailure(current, attempt, stageLocator, nil, err)
			if !e.policy.ShouldRetry(attempt) {
				break
			}
			current, err = e.prepareNextRequest(current, request, attempt, &fallbackQueue)
			if err != nil {
				return nil, err
			}
			e.updateContextTelemetry()
			continue
		}

		measurement := located.Measurement
		metadata := cloneMetadata(located.Metadata)
		if e.history.DetectUIDrift(current.ScenarioID, measurement) {
			e.recordDrift(current, attempt, measurement)
		}

		result, err := e.executor.Execute(located.Plan, e.contextMgr.Context())
		if err != nil {
			lastErr = err
			e.recordStageFailure(current, attempt, stageExecutor, measurement, err)
			if !e.policy.ShouldRetry(attempt) {
				break
			}
			current, err = e.prepareNextRequest(current, request, attempt, &fallbackQueue)
			if err != nil {
				return nil, err
			}
			e.updateContextTelemetry()
			continue
		}

		successMetadata := cloneMetadata(metadata)
		successMetadata["stage"] = stageExecutor
		successMetadata["attempt"] = attempt
		e.history.RecordOutcome(current.ScenarioID, StatusSuccess, measurement, successMetadata)
		e.telemetry.Record(EventHealingSuccess, map[string]any{
			"scenario_id": current.ScenarioID,
			"attempt":     attempt,
		})
		e.contextMgr.AppendAuditLog(map[string]any{
			"event":       EventHealingSuccess.String(),
			"scenario_id": current.ScenarioID,
			"attempt":     attempt,
		})
		e.logger.Info("healing succeeded",
			"scenario", current.ScenarioID,
			"attempt", attempt,
		)
		e.updateContextTelemetry()
		return result, nil
	}

	var lastErrText any
	if lastErr != nil {
		lastErrText = lastErr.Error()
	}
	e.telemetry.Record(EventRecoveryFailed, map[string]any{
		"scenario_id": request.ScenarioID,
		"attempts":    e.policy.MaxAttempts,
		"error":       lastErrText,
	})
	e.contextMgr.AppendAuditLog(map[string]any{
		"event":       EventRecoveryFailed.String(),
		"scenario_id": request.ScenarioID,
		"attempts":    e.policy.MaxAttempts,
		"error":       lastErrText,
	})
	e.logger.Warn("recovery failed",
		"scenario", request.ScenarioID,
		"attempts", e.policy.MaxAttempts,
		"error", lastErr,
	)
	e.updateContextTelemetry()
	return nil, &SelfHealingError{ScenarioID: request.ScenarioID, LastErr: lastErr}
}

const (
	stageLocator  = "locator"
	stageExecutor = "executor"
)

// recordStageFailure logs a locator or executor failure into telemetry,
// history, and the audit log. Locator failures carry no measurement.
func (e *SelfHealingEngine) recordStageFailure(request HealingRequest, attempt int, stage string, measurement *float64, err error) {
	kind := EventLocatorFailed
	if stage == stageExecutor {
		kind = EventExecutorFailed
	}
	e.telemetry.Record(kind, map[string]any{
		"scenario_id": request.ScenarioID,
		"attempt":     attempt,
		"error":       err.Error(),
	})
	e.history.RecordOutcome(request.ScenarioID, StatusFailure, measurement, map[string]any{
		"stage":   stage,
		"attempt": attempt,
	})
	e.contextMgr.AppendAuditLog(map[string]any{
		"event":       kind.String(),
		"scenario_id": request.ScenarioID,
		"attempt":     attempt,
		"error":       err.Error(),
	})
	e.logger.Warn("healing stage failed",
		"scenario", request.ScenarioID,
		"stage", stage,
		"attempt", attempt,
		"error", err,
	)
}

// recordDrift logs an advisory drift verdict. Drift never blocks execution
// or forces a retry.
func (e *SelfHealingEngine) recordDrift(request HealingRequest, attempt int, measurement *float64) {
	var value any
	if measurement != nil {
		value = *measurement
	}
	e.telemetry.Record(EventUIDriftDetected, map[string]any{
		"scenario_id": request.ScenarioID,
		"attempt":     attempt,
		"measurement": value,
	})
	e.contextMgr.AppendAuditLog(map[string]any{
		"event":       EventUIDriftDetected.String(),
		"scenario_id": request.ScenarioID,
		"attempt":     attempt,
		"measurement": value,
	})
	e.logger.Warn("ui drift detected",
		"scenario", request.ScenarioID,
		"attempt", attempt,
		"measurement", value,
	)
}

// prepareNextRequest restarts the original request's dependencies, surfaces
// the scheduled delay, and mutates the request via the next fallback strategy
// or, once the queue is drained, a generic replan marker. The dependency list
// always comes from the original request so a fallback mutation cannot change
// which dependencies get reset.
func (e *SelfHealingEngine) prepareNextRequest(request, original HealingRequest, attempt int, fallbackQueue *[]FallbackStrategy) (HealingRequest, error) {
	nextAttempt := attempt + 1
	if err := e.restartDependencies(original, nextAttempt); err != nil {
		return HealingRequest{}, err
	}

	if delay, ok := e.policy.DelayFor(nextAttempt); ok {
		e.telemetry.Record(EventRetryScheduled, map[string]any{
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"delay":       delay,
		})
		e.contextMgr.AppendAuditLog(map[string]any{
			"event":       EventRetryScheduled.String(),
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"delay":       delay.String(),
		})
		if e.delayFn != nil {
			e.delayFn(delay)
		}
	}

	if len(*fallbackQueue) > 0 {
		strategy := (*fallbackQueue)[0]
		*fallbackQueue = (*fallbackQueue)[1:]
		e.telemetry.Record(EventFallbackConsidered, map[string]any{
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"strategy":    strategy.Name,
		})
		updated := strategy.Apply(request, e.history, e.contextMgr.Context())
		e.telemetry.Record(EventFallbackApplied, map[string]any{
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"strategy":    strategy.Name,
		})
		e.contextMgr.AppendAuditLog(map[string]any{
			"event":       EventFallbackApplied.String(),
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"strategy":    strategy.Name,
		})
		e.logger.Debug("fallback applied",
			"scenario", request.ScenarioID,
			"strategy", strategy.Name,
			"attempt", nextAttempt,
		)
		return updated, nil
	}

	return e.replan(request, nextAttempt), nil
}

// replan appends a content-free marker to the request metadata so telemetry
// distinguishes "tried something new" from "tried the same thing again".
// External callers can inspect the marker list to layer smarter replanning
// on top without changing the engine.
func (e *SelfHealingEngine) replan(request HealingRequest, nextAttempt int) HealingRequest {
	metadata := cloneMetadata(request.Metadata)
	existing, _ := metadata[MetadataKeyHealingPlans].([]map[string]any)
	plans := append(append([]map[string]any(nil), existing...), map[string]any{
		"type":      "replan",
		"attempt":   nextAttempt,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	metadata[MetadataKeyHealingPlans] = plans

	replanned := request.WithMetadata(metadata)
	e.telemetry.Record(EventReplanApplied, map[string]any{
		"scenario_id": request.ScenarioID,
		"attempt":     nextAttempt,
	})
	e.contextMgr.AppendAuditLog(map[string]any{
		"event":       EventReplanApplied.String(),
		"scenario_id": request.ScenarioID,
		"attempt":     nextAttempt,
	})
	return replanned
}

// restartDependencies restarts every dependency listed on the request, on
// every retry preparation, regardless of which stage failed. A restart
// callback error aborts the run.
func (e *SelfHealingEngine) restartDependencies(request HealingRequest, nextAttempt int) error {
	for _, dependency := range request.Dependencies {
		restarted, err := e.dependencies.Restart(dependency)
		if err != nil {
			return fmt.Errorf("restart dependency %q: %w", dependency, err)
		}
		e.telemetry.Record(EventDependencyRestarted, map[string]any{
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"dependency":  dependency,
			"restarted":   restarted,
		})
		e.contextMgr.AppendAuditLog(map[string]any{
			"event":       EventDependencyRestarted.String(),
			"scenario_id": request.ScenarioID,
			"attempt":     nextAttempt,
			"dependency":  dependency,
			"restarted":   restarted,
		})
	}
	return nil
}

func (e *SelfHealingEngine) updateContextTelemetry() {
	e.contextMgr.SetTelemetry(e.TelemetrySummary())
}
