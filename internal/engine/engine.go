// ABOUTME: Public execution entry point coordinating catalog lookup, graph
// ABOUTME: compilation, and the scheduler — the engine's front door (§6)

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/weftrun/weft/internal/graph"
	"github.com/weftrun/weft/internal/scheduler"
	"github.com/weftrun/weft/internal/subworkflow"
	"github.com/weftrun/weft/pkg/types"
)

// Config configures an Engine, mirroring scheduler.Config plus the knobs the
// engine itself owns (none yet beyond pass-through).
type Config struct {
	Logger              types.Logger
	Clock               types.Clock
	MaxSubworkflowDepth int
}

// Options customizes a single Execute call (§6: "cancellation (via ctx),
// dry-run flag ..., and a parent call stack").
type Options struct {
	// DryRun, if true, compiles the graph and returns the planned parallel
	// groups without launching any task.
	DryRun bool

	// CallStack threads an existing sub-workflow call stack through this
	// execution, for a caller that is itself nested inside a larger
	// sub-workflow chain. Nil starts a fresh stack.
	CallStack *subworkflow.CallStack
}

// Engine is the coordinating front door the teacher's
// internal/orchestrator.Orchestrator played for the CLI: it resolves a
// workflow by name against the catalog, then hands the compiled definition
// to the scheduler (or, for a dry run, to the graph builder alone).
type Engine struct {
	catalog   scheduler.Catalog
	scheduler *scheduler.Scheduler
}

// New builds an Engine over catalog, the source of truth for workflow and
// task-spec lookups (C9).
func New(catalog scheduler.Catalog, config Config) (*Engine, error) {
	sched, err := scheduler.New(catalog, scheduler.Config{
		Logger:              config.Logger,
		Clock:               config.Clock,
		MaxSubworkflowDepth: config.MaxSubworkflowDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{catalog: catalog, scheduler: sched}, nil
}

// Execute resolves workflowName against the catalog and runs it against
// input. See Options for dry-run and call-stack behavior.
func (e *Engine) Execute(ctx context.Context, workflowName string, input map[string]interface{}, opts Options) (*types.WorkflowExecutionResult, error) {
	wf, err := e.catalog.GetWorkflow(workflowName)
	if err != nil {
		return nil, types.AsEngineError(err)
	}

	if opts.DryRun {
		return e.plan(wf)
	}

	return e.scheduler.ExecuteWithStack(ctx, wf, input, opts.CallStack)
}

// ExecuteDefinition runs an already-resolved workflow definition directly,
// bypassing the catalog lookup — used by the CLI's run/dry-run subcommands,
// which are handed a workflow file on the command line rather than a ref to
// resolve, and by tests that construct a definition in memory.
func (e *Engine) ExecuteDefinition(ctx context.Context, wf *types.WorkflowDefinition, input map[string]interface{}, opts Options) (*types.WorkflowExecutionResult, error) {
	if opts.DryRun {
		return e.plan(wf)
	}
	return e.scheduler.ExecuteWithStack(ctx, wf, input, opts.CallStack)
}

// plan compiles wf's graph and reports its parallel groups without running
// anything, satisfying the dry-run option.
func (e *Engine) plan(wf *types.WorkflowDefinition) (*types.WorkflowExecutionResult, error) {
	start := time.Now()
	g, _, err := graph.Build(wf)
	if err != nil {
		ee := types.AsEngineError(err)
		return &types.WorkflowExecutionResult{
			Success:              false,
			Errors:               []types.ErrorInfo{ee.ToErrorInfo(0, start)},
			GraphBuildDurationMs: time.Since(start).Milliseconds(),
		}, nil
	}
	return &types.WorkflowExecutionResult{
		Success:              true,
		TaskResults:          map[string]*types.TaskExecutionResult{},
		GraphBuildDurationMs: time.Since(start).Milliseconds(),
		ParallelGroups:       g.ParallelGroups,
	}, nil
}
