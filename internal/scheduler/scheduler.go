// ABOUTME: Scheduler (C7): drives a compiled workflow graph to completion
// ABOUTME: Readiness-driven, not layer-barriered — see run.loop for the iteration loop

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/weftrun/weft/internal/condition"
	"github.com/weftrun/weft/internal/fault"
	"github.com/weftrun/weft/internal/foreach"
	"github.com/weftrun/weft/internal/graph"
	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/subworkflow"
	"github.com/weftrun/weft/internal/task"
	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// Catalog is everything the scheduler needs to resolve a step's referenced
// task spec or sub-workflow. It is a superset of subworkflow.Catalog, so a
// Catalog value is already assignable wherever that narrower interface is
// expected.
type Catalog interface {
	GetTaskSpec(ref string) (*types.TaskSpec, error)
	GetWorkflow(ref string) (*types.WorkflowDefinition, error)
}

// Config holds scheduler configuration, mirroring the teacher's
// internal/executor.Config shape.
type Config struct {
	Logger              types.Logger
	Clock               types.Clock
	MaxSubworkflowDepth int
}

// Scheduler drives workflow graphs to completion. The fault-tolerance cache
// is owned here and shared across Execute calls (an HTTP GET cached by one
// workflow run stays warm for the next); circuit breakers are scoped per
// execution: every call of execute, the root one and each sub-workflow
// recursion alike, builds its own Registry, so breaker state is not shared
// between a workflow and the sub-workflows it invokes.
type Scheduler struct {
	catalog  Catalog
	logger   types.Logger
	clock    types.Clock
	maxDepth int
	cache    *fault.Cache
}

// New builds a Scheduler against catalog. It always creates a fresh cache
// with fault.NewCache; that cache lives as long as the Scheduler and is not
// shared with other Scheduler instances.
func New(catalog Catalog, config Config) (*Scheduler, error) {
	cache, err := fault.NewCache()
	if err != nil {
		return nil, fmt.Errorf("scheduler: building cache: %w", err)
	}
	clock := config.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	maxDepth := config.MaxSubworkflowDepth
	if maxDepth <= 0 {
		maxDepth = subworkflow.DefaultMaxDepth
	}
	return &Scheduler{
		catalog:  catalog,
		logger:   config.Logger,
		clock:    clock,
		maxDepth: maxDepth,
		cache:    cache,
	}, nil
}

// Execute runs wf to completion against input, starting a fresh sub-workflow
// call stack. This is the entry point for a root workflow execution.
func (s *Scheduler) Execute(ctx context.Context, wf *types.WorkflowDefinition, input map[string]interface{}) (*types.WorkflowExecutionResult, error) {
	return s.execute(ctx, wf, input, subworkflow.NewCallStack(s.maxDepth))
}

// ExecuteWithStack runs wf against an existing call stack rather than a fresh
// one, for a caller (the engine layer) that was itself invoked as part of a
// larger sub-workflow chain and needs depth/cycle bookkeeping to stay
// cumulative across that chain (§6 "a parent call stack, for sub-workflow
// recursion"). A nil stack behaves like Execute.
func (s *Scheduler) ExecuteWithStack(ctx context.Context, wf *types.WorkflowDefinition, input map[string]interface{}, stack *subworkflow.CallStack) (*types.WorkflowExecutionResult, error) {
	if stack == nil {
		stack = subworkflow.NewCallStack(s.maxDepth)
	}
	return s.execute(ctx, wf, input, stack)
}

// execute is Execute generalized over an existing call stack, so a
// sub-workflow invocation recurses through the same depth/cycle bookkeeping
// as its parent.
func (s *Scheduler) execute(ctx context.Context, wf *types.WorkflowDefinition, input map[string]interface{}, stack *subworkflow.CallStack) (*types.WorkflowExecutionResult, error) {
	executionStart := s.clock.Now()

	g, _, err := graph.Build(wf)
	graphBuildDuration := s.clock.Now().Sub(executionStart)
	if err != nil {
		return nil, types.AsEngineError(err)
	}

	byID := make(map[string]*types.TaskStep, len(wf.Tasks))
	for i := range wf.Tasks {
		byID[wf.Tasks[i].ID] = &wf.Tasks[i]
	}

	rc := runtime.NewContext(input)
	breakers := fault.NewRegistry()

	run := &run{
		s:           s,
		wf:          wf,
		g:           g,
		byID:        byID,
		rc:          rc,
		breakers:    breakers,
		stack:       stack,
		status:      make(map[string]types.TaskStatus, len(g.NodeIDs)),
		taskResults: make(map[string]*types.TaskExecutionResult, len(g.NodeIDs)),
		results:     make(chan stepResult, len(g.NodeIDs)),
	}
	for _, id := range g.NodeIDs {
		run.status[id] = types.TaskPending
	}

	loopErr := run.loop(ctx)

	teardownStart := s.clock.Now()
	output, outputErr := resolveOutput(wf, rc)

	result := &types.WorkflowExecutionResult{
		Success:              !run.failed && outputErr == nil && loopErr == nil,
		Output:               output,
		TaskResults:          run.taskResults,
		TotalDurationMs:      teardownStart.Sub(executionStart).Milliseconds(),
		GraphBuildDurationMs: graphBuildDuration.Milliseconds(),
		ParallelGroups:       g.ParallelGroups,
	}
	result.OrchestrationCost = run.cost
	if !run.firstTaskStart.IsZero() {
		result.OrchestrationCost.SetupMs = run.firstTaskStart.Sub(executionStart).Milliseconds()
	}
	if !run.lastTaskEnd.IsZero() {
		result.OrchestrationCost.TeardownMs = s.clock.Now().Sub(run.lastTaskEnd).Milliseconds()
	}

	if loopErr != nil {
		result.Success = false
		ee := types.AsEngineError(loopErr)
		result.Errors = append(result.Errors, ee.ToErrorInfo(0, ee.OccurredAt))
	}
	if outputErr != nil {
		result.Success = false
		ee := types.AsEngineError(outputErr)
		result.Errors = append(result.Errors, ee.ToErrorInfo(0, ee.OccurredAt))
	}
	for _, id := range g.NodeIDs {
		if tr := run.taskResults[id]; tr != nil && !tr.Success && !tr.Skipped {
			for _, e := range tr.Errors {
				result.Errors = append(result.Errors, e)
			}
		}
	}

	return result, nil
}

// resolveOutput evaluates the workflow's declared output template mapping,
// if any, against the final context.
func resolveOutput(wf *types.WorkflowDefinition, rc *runtime.Context) (map[string]interface{}, error) {
	if len(wf.Output) == 0 {
		return nil, nil
	}
	out, err := template.ResolveMapping(wf.Output, rc)
	if err != nil {
		return nil, classifyTemplateErr(err)
	}
	return out, nil
}

func classifyTemplateErr(err error) *types.EngineError {
	if te, ok := err.(*template.Error); ok {
		return te.ToEngineError()
	}
	return types.AsEngineError(err)
}

// skippedTaskRef reports the task id an input-mapping resolution failed to
// reach, if the failure was specifically "that task was skipped, not
// completed" rather than a genuine configuration mistake. See DESIGN.md's
// Open Question 1: a step whose input mapping references the (absent) output
// of a skipped task is itself propagated as Skipped rather than Failed, even
// when other fields of the same mapping reference completed tasks.
func skippedTaskRef(err error) (string, bool) {
	if te, ok := err.(*template.Error); ok && te.Kind == template.TaskNotCompleted {
		return te.Path, true
	}
	return "", false
}

// resolveStepInput resolves a step's input mapping, translating a reference
// to a skipped upstream task's output into a skip signal instead of a
// failure.
func resolveStepInput(fields map[string]string, rc *runtime.Context) (map[string]interface{}, string, error) {
	out, err := template.ResolveMapping(fields, rc)
	if err == nil {
		return out, "", nil
	}
	if taskID, ok := skippedTaskRef(err); ok {
		return nil, fmt.Sprintf("skipped: depends on skipped task %q output", taskID), nil
	}
	return nil, "", classifyTemplateErr(err)
}

// stepResult is one task step's outcome, reported back to the scheduler loop
// over the results channel.
type stepResult struct {
	id           string
	output       map[string]interface{}
	execErr      error
	skipped      bool
	skipReason   string
	startedAt    time.Time
	completedAt  time.Time
	retryCount   int
	circuitState types.CircuitState
	usedFallback bool
	fallbackRef  string
}

// run holds the mutable state of one workflow execution's iteration loop.
// Unexported: it exists only to give the loop's helper methods a receiver
// instead of threading a dozen parameters through each.
type run struct {
	s        *Scheduler
	wf       *types.WorkflowDefinition
	g        *types.ExecutionGraph
	byID     map[string]*types.TaskStep
	rc       *runtime.Context
	breakers *fault.Registry
	stack    *subworkflow.CallStack

	mu          sync.Mutex
	status      map[string]types.TaskStatus
	taskResults map[string]*types.TaskExecutionResult
	results     chan stepResult

	failed         bool
	firstTaskStart time.Time
	lastTaskEnd    time.Time
	cost           types.OrchestrationCost
}

// loop implements §4.7's execution phase: launch every currently-Ready task,
// drain completions from a single channel as they arrive (not in
// precomputed layers), and recompute readiness incrementally off each
// completion. A fatal, unrescued task failure stops new launches but lets
// already-Running tasks drain naturally.
func (r *run) loop(ctx context.Context) error {
	inFlight := r.launchReady(ctx)

	for inFlight > 0 {
		select {
		case <-ctx.Done():
			// Drain whatever already landed in the channel without blocking,
			// then report cancellation; Running goroutines finish on their own
			// time since their own ctx is this same ctx and will unwind via
			// their task-level timeout/cancellation handling.
			for inFlight > 0 {
				select {
				case res := <-r.results:
					inFlight--
					r.record(res)
				default:
					inFlight = 0
				}
			}
			return types.NewCancelledError("workflow execution cancelled")
		case res := <-r.results:
			inFlight--
			r.record(res)
			inFlight += r.launchReady(ctx)
		}
	}
	return nil
}

// record folds one completed step's result into the shared state and
// recomputes which pending tasks it has freed up.
func (r *run) record(res stepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.firstTaskStart.IsZero() || res.startedAt.Before(r.firstTaskStart) {
		r.firstTaskStart = res.startedAt
	}
	if res.completedAt.After(r.lastTaskEnd) {
		r.lastTaskEnd = res.completedAt
	}
	r.cost.TaskTimeSumMs += res.completedAt.Sub(res.startedAt).Milliseconds()
	r.cost.IterationMs = append(r.cost.IterationMs, res.completedAt.Sub(res.startedAt).Milliseconds())

	switch {
	case res.skipped:
		r.status[res.id] = types.TaskSkipped
		r.rc.SetTaskSkipped(res.id)
		r.taskResults[res.id] = &types.TaskExecutionResult{
			ID: res.id, Status: types.TaskSkipped, Success: true,
			Skipped: true, SkipReason: res.skipReason,
			StartedAt: res.startedAt, CompletedAt: res.completedAt,
			Duration: res.completedAt.Sub(res.startedAt),
		}
	case res.execErr != nil:
		r.status[res.id] = types.TaskFailed
		r.failed = true
		ee := types.AsEngineError(res.execErr)
		r.s.logf("task %q failed: %s", res.id, ee.Message)
		retryCount := res.retryCount
		if rc2, ok := res.execErr.(fault.RetryCounter); ok {
			retryCount = rc2.RetryCount()
		}
		r.rc.SetTaskOutput(res.id, map[string]interface{}{})
		r.taskResults[res.id] = &types.TaskExecutionResult{
			ID: res.id, Status: types.TaskFailed, Success: false,
			Errors:       []types.ErrorInfo{ee.ToErrorInfo(retryCount, res.startedAt)},
			RetryCount:   retryCount,
			StartedAt:    res.startedAt, CompletedAt: res.completedAt,
			Duration:     res.completedAt.Sub(res.startedAt),
			UsedFallback: res.usedFallback,
			FallbackRef:  res.fallbackRef,
		}
	default:
		r.status[res.id] = types.TaskCompleted
		r.rc.SetTaskOutput(res.id, res.output)
		r.taskResults[res.id] = &types.TaskExecutionResult{
			ID: res.id, Status: types.TaskCompleted, Success: true,
			Output:       res.output,
			RetryCount:   res.retryCount,
			StartedAt:    res.startedAt, CompletedAt: res.completedAt,
			Duration:     res.completedAt.Sub(res.startedAt),
			CircuitState: res.circuitState,
			UsedFallback: res.usedFallback,
			FallbackRef:  res.fallbackRef,
		}
	}
}

// launchReady starts every task currently Ready, transitioning each to
// Running, and returns how many were launched. No new launches occur once
// the workflow has recorded a fatal failure (§4.7 "no new launches").
func (r *run) launchReady(ctx context.Context) int {
	r.mu.Lock()
	if r.failed {
		r.mu.Unlock()
		return 0
	}
	r.recomputeReadyLocked()
	var readyIDs []string
	for _, id := range r.g.NodeIDs {
		if r.status[id] == types.TaskReady {
			readyIDs = append(readyIDs, id)
		}
	}
	sort.Strings(readyIDs)
	for _, id := range readyIDs {
		r.status[id] = types.TaskRunning
	}
	r.mu.Unlock()

	for _, id := range readyIDs {
		step := r.byID[id]
		go func(step *types.TaskStep) {
			r.results <- r.s.runStep(ctx, step, r.rc, r.breakers, r.stack)
		}(step)
	}
	return len(readyIDs)
}

// recomputeReadyLocked marks every Pending node Ready once all of its
// dependencies are Completed or Skipped. A Skipped dependency satisfies
// readiness the same as a Completed one (permissive skip propagation, see
// DESIGN.md); a Failed dependency never does, so its dependents simply never
// become Ready once the workflow has already stopped launching new tasks.
// Must be called with r.mu held.
func (r *run) recomputeReadyLocked() {
	for _, id := range r.g.NodeIDs {
		if r.status[id] != types.TaskPending {
			continue
		}
		ready := true
		for _, dep := range r.g.Dependencies[id] {
			switch r.status[dep] {
			case types.TaskCompleted, types.TaskSkipped:
			default:
				ready = false
			}
			if !ready {
				break
			}
		}
		if ready {
			r.status[id] = types.TaskReady
		}
	}
}

// runStep dispatches one task step: condition, then switch, then input
// resolution, then the appropriate body (plain task, forEach, or
// sub-workflow), then fallback on failure.
func (s *Scheduler) runStep(ctx context.Context, step *types.TaskStep, rc *runtime.Context, breakers *fault.Registry, stack *subworkflow.CallStack) stepResult {
	started := s.clock.Now()
	res := stepResult{id: step.ID, startedAt: started}

	if step.Condition != "" {
		cond := condition.Evaluate(step.Condition, rc)
		if cond.Err != nil {
			res.execErr = cond.Err
			res.completedAt = s.clock.Now()
			return res
		}
		if !cond.ShouldExecute {
			res.skipped = true
			res.skipReason = fmt.Sprintf("condition %q evaluated to false", step.Condition)
			res.completedAt = s.clock.Now()
			return res
		}
	}

	taskRef := step.TaskRef
	if step.Switch != nil {
		sw := condition.EvaluateSwitch(step.Switch, rc)
		if sw.Err != nil {
			res.execErr = sw.Err
			res.completedAt = s.clock.Now()
			return res
		}
		if !sw.Matched {
			res.skipped = true
			res.skipReason = "switch had no matching case and no default"
			res.completedAt = s.clock.Now()
			return res
		}
		taskRef = sw.TaskRef
	}

	var out map[string]interface{}
	var execErr error
	var retryCount int

	switch {
	case step.IsSubWorkflow():
		resolvedInput, skipReason, err := resolveStepInput(step.Input, rc)
		if skipReason != "" {
			res.skipped = true
			res.skipReason = skipReason
			res.completedAt = s.clock.Now()
			return res
		}
		if err != nil {
			res.execErr = err
			res.completedAt = s.clock.Now()
			return res
		}
		out, execErr = s.runSubWorkflow(ctx, step.WorkflowRef, resolvedInput, stack)
	case step.ForEach != nil:
		out, execErr = s.runForEach(ctx, step, taskRef, rc, breakers)
	default:
		resolvedInput, skipReason, err := resolveStepInput(step.Input, rc)
		if skipReason != "" {
			res.skipped = true
			res.skipReason = skipReason
			res.completedAt = s.clock.Now()
			return res
		}
		if err != nil {
			res.execErr = err
			res.completedAt = s.clock.Now()
			return res
		}
		out, retryCount, execErr = s.runTask(ctx, taskRef, rc, resolvedInput, breakers, step)
	}

	if execErr != nil && step.Fallback != "" {
		resolvedInput, inputErr := template.ResolveMapping(step.Input, rc)
		if inputErr == nil {
			fbOut, fbRetryCount, fbErr := s.runTask(ctx, step.Fallback, rc, resolvedInput, breakers, step)
			if fbErr == nil {
				res.output = fbOut
				res.retryCount = fbRetryCount
				res.usedFallback = true
				res.fallbackRef = step.Fallback
				res.completedAt = s.clock.Now()
				return res
			}
			execErr = fbErr
		}
	}

	if execErr != nil {
		res.execErr = execErr
		res.completedAt = s.clock.Now()
		return res
	}

	res.output = out
	res.retryCount = retryCount
	res.completedAt = s.clock.Now()
	if breakers != nil {
		res.circuitState = breakers.State(taskRef)
	}
	return res
}

// logf logs a formatted message if a logger is configured, mirroring the
// teacher's internal/executor.logf.
func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info().Msgf(format, args...)
	}
}

// runTask looks up taskRef's spec, builds its kind-specific executor, wraps
// it in the fault-tolerance stack, and executes it with its spec's timeout
// (if any) applied to ctx.
// runTask executes one task spec, including its retry/circuit-breaker/cache
// wrappers, and reports how many retries a successful attempt took (§8
// "retry count is recorded in the result") alongside the usual output/error.
// A panic raised while running the task is recovered and returned as an
// UnknownError.
func (s *Scheduler) runTask(ctx context.Context, taskRef string, rc *runtime.Context, resolvedInput map[string]interface{}, breakers *fault.Registry, step *types.TaskStep) (out map[string]interface{}, retryCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, retryCount, err = nil, 0, types.NewUnknownError(fmt.Errorf("task %q panicked: %v", taskRef, r))
		}
	}()
	spec, err := s.catalog.GetTaskSpec(taskRef)
	if err != nil {
		return nil, 0, types.AsEngineError(err)
	}
	exec, err := task.New(spec)
	if err != nil {
		return nil, 0, types.NewConfigurationError(err.Error())
	}
	wrapped := fault.Wrap(exec, s.cache, breakers, taskRef, spec, step)

	taskCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	taskCtx, retryCounter := fault.ContextWithRetryCounter(taskCtx)
	out, err = wrapped.Execute(taskCtx, rc, resolvedInput)
	if err != nil {
		return nil, 0, err
	}
	return out, *retryCounter, nil
}

// runForEach delegates to the forEach driver, resolving each iteration's
// input mapping against that iteration's own template frame before running
// its body the same way a plain task step would.
func (s *Scheduler) runForEach(ctx context.Context, step *types.TaskStep, taskRef string, rc *runtime.Context, breakers *fault.Registry) (map[string]interface{}, error) {
	return foreach.Run(ctx, step.ForEach, rc, func(ctx context.Context, itemCtx *runtime.Context, index int) (map[string]interface{}, error) {
		resolvedInput, err := template.ResolveMapping(step.Input, itemCtx)
		if err != nil {
			return nil, classifyTemplateErr(err)
		}
		out, _, err := s.runTask(ctx, taskRef, itemCtx, resolvedInput, breakers, step)
		return out, err
	})
}

// runSubWorkflow resolves ref against the catalog, enforcing call-stack
// depth/cycle limits, and recurses the scheduler into the resolved
// definition. The sub-workflow's failure propagates as this step's failure.
func (s *Scheduler) runSubWorkflow(ctx context.Context, ref string, resolvedInput map[string]interface{}, stack *subworkflow.CallStack) (map[string]interface{}, error) {
	wf, done, err := subworkflow.Resolve(s.catalog, ref, stack)
	if err != nil {
		return nil, types.AsEngineError(err)
	}
	defer done()

	subResult, err := s.execute(ctx, wf, resolvedInput, stack)
	if err != nil {
		return nil, types.AsEngineError(err)
	}
	if !subResult.Success {
		if len(subResult.Errors) > 0 {
			e := subResult.Errors[0]
			return nil, &types.EngineError{Kind: e.Kind, Message: e.Message, OccurredAt: e.OccurredAt}
		}
		return nil, types.NewUnknownError(fmt.Errorf("sub-workflow %q failed", ref))
	}
	return subResult.Output, nil
}
