// ABOUTME: Tests for the readiness-driven scheduler loop: ordering, skip
// ABOUTME: propagation, fatal failure handling, switch/forEach/sub-workflow dispatch

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/weftrun/weft/internal/task/inline"
	"github.com/weftrun/weft/pkg/types"
)

type fakeCatalog struct {
	tasks     map[string]*types.TaskSpec
	workflows map[string]*types.WorkflowDefinition
}

func (f *fakeCatalog) GetTaskSpec(ref string) (*types.TaskSpec, error) {
	spec, ok := f.tasks[ref]
	if !ok {
		return nil, types.NewConfigurationError("unknown task spec: " + ref)
	}
	return spec, nil
}

func (f *fakeCatalog) GetWorkflow(ref string) (*types.WorkflowDefinition, error) {
	wf, ok := f.workflows[ref]
	if !ok {
		return nil, types.NewConfigurationError("unknown workflow: " + ref)
	}
	return wf, nil
}

func inlineSpec(fn string) *types.TaskSpec {
	return &types.TaskSpec{Name: fn, Kind: types.KindInline, Inline: &types.InlineSpec{Function: fn}}
}

func init() {
	inline.Register("scheduler-test-double", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		n, _ := args["n"].(float64)
		return map[string]interface{}{"doubled": n * 2}, nil
	})
	inline.Register("scheduler-test-fail", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, types.NewValidationError("always fails")
	})
	inline.Register("scheduler-test-slow", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return map[string]interface{}{"ok": true}, nil
		case <-ctx.Done():
			return nil, types.NewCancelledError("cancelled")
		}
	})
	flakyCalls := 0
	inline.Register("scheduler-test-flaky", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		flakyCalls++
		if flakyCalls <= 2 {
			return nil, types.NewNetworkError("connection reset", nil)
		}
		return map[string]interface{}{"ok": true}, nil
	})
}

func newScheduler(t *testing.T, catalog *fakeCatalog) *Scheduler {
	t.Helper()
	s, err := New(catalog, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestExecuteLinearChainPassesOutputForward(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"double": inlineSpec("scheduler-test-double"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "linear"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "double", Input: map[string]string{"n": "{{input.start}}"}},
			{ID: "b", TaskRef: "double", Input: map[string]string{"n": "{{tasks.a.output.doubled}}"}, DependsOn: []string{"a"}},
		},
		Output: map[string]string{"final": "{{tasks.b.output.doubled}}"},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{"start": float64(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %#v", result.Errors)
	}
	if result.Output["final"] != float64(20) {
		t.Errorf("expected final=20, got %#v", result.Output)
	}
	if result.TaskResults["a"].Output["doubled"] != float64(10) {
		t.Errorf("unexpected task a output: %#v", result.TaskResults["a"].Output)
	}
}

func TestExecuteConditionFalseSkipsAndDownstreamStillRuns(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"double": inlineSpec("scheduler-test-double"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "skip"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "double", Condition: "false", Input: map[string]string{"n": "{{input.start}}"}},
			{ID: "b", TaskRef: "double", Input: map[string]string{"n": "{{input.start}}"}, DependsOn: []string{"a"}},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{"start": float64(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %#v", result.Errors)
	}
	if !result.TaskResults["a"].Skipped {
		t.Errorf("expected task a skipped")
	}
	if result.TaskResults["b"].Status != types.TaskCompleted {
		t.Errorf("expected task b to run despite a's skip, got %v", result.TaskResults["b"].Status)
	}
}

func TestExecuteDownstreamReferencingSkippedOutputCascadesSkip(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"double": inlineSpec("scheduler-test-double"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "skip-ref"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "double", Condition: "false", Input: map[string]string{"n": "{{input.start}}"}},
			{ID: "b", TaskRef: "double", Input: map[string]string{"n": "{{tasks.a.output.doubled}}"}, DependsOn: []string{"a"}},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{"start": float64(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: a skipped task's dependents cascade to Skipped, not Failed; errors: %#v", result.Errors)
	}
	if result.TaskResults["b"].Status != types.TaskSkipped {
		t.Errorf("expected task b skipped, got %v", result.TaskResults["b"].Status)
	}
}

func TestExecuteSuccessAfterRetriesRecordsRetryCount(t *testing.T) {
	flaky := inlineSpec("scheduler-test-flaky")
	retrySpec := &types.RetrySpec{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, MaxRetryCount: 5}
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{"flaky": flaky}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "retry-success"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "flaky", Retry: retrySpec},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after retries, errors: %#v", result.Errors)
	}
	if result.TaskResults["a"].RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", result.TaskResults["a"].RetryCount)
	}
}

func TestExecuteUnresolvableInputTemplateFailsNotSkips(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"double": inlineSpec("scheduler-test-double"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "bad-template"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "double", Input: map[string]string{"n": "{{bogus.start}}"}},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{"start": float64(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure from an unknown template root segment")
	}
	if result.TaskResults["a"].Status != types.TaskFailed {
		t.Errorf("expected task a failed (not skipped), got %v", result.TaskResults["a"].Status)
	}
}

func TestExecuteFatalFailureStopsNewLaunchesButLetsUnrelatedBranchFinish(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"fail": inlineSpec("scheduler-test-fail"),
		"slow": inlineSpec("scheduler-test-slow"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "fatal"},
		Tasks: []types.TaskStep{
			{ID: "bad", TaskRef: "fail"},
			{ID: "unrelated", TaskRef: "slow"},
			{ID: "after-bad", TaskRef: "slow", DependsOn: []string{"bad"}},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected workflow failure")
	}
	if result.TaskResults["bad"].Status != types.TaskFailed {
		t.Errorf("expected bad failed, got %v", result.TaskResults["bad"].Status)
	}
	if result.TaskResults["unrelated"].Status != types.TaskCompleted {
		t.Errorf("expected unrelated branch to complete despite bad's failure, got %v", result.TaskResults["unrelated"].Status)
	}
	if _, ok := result.TaskResults["after-bad"]; ok {
		t.Errorf("expected after-bad to never launch, got %#v", result.TaskResults["after-bad"])
	}
}

func TestExecuteSwitchSelectsMatchingCase(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"double": inlineSpec("scheduler-test-double"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "switch"},
		Tasks: []types.TaskStep{
			{
				ID: "route",
				Switch: &types.SwitchSpec{
					Value:   "{{input.kind}}",
					Cases:   []types.SwitchCase{{Match: "double", TaskRef: "double"}},
					Default: "double",
				},
				Input: map[string]string{"n": "{{input.start}}"},
			},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{"kind": "double", "start": float64(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %#v", result.Errors)
	}
	if result.TaskResults["route"].Output["doubled"] != float64(6) {
		t.Errorf("unexpected output: %#v", result.TaskResults["route"].Output)
	}
}

func TestExecuteForEachStepAggregatesPerItemOutputs(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"double": inlineSpec("scheduler-test-double"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "foreach"},
		Tasks: []types.TaskStep{
			{
				ID:      "each",
				TaskRef: "double",
				ForEach: &types.ForEachSpec{Items: "{{input.items}}", ItemVar: "n"},
				Input:   map[string]string{"n": "{{forEach.n}}"},
			},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{
		"items": []interface{}{float64(1), float64(2), float64(3)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %#v", result.Errors)
	}
	each := result.TaskResults["each"].Output
	if each["itemCount"] != 3 || each["successCount"] != 3 {
		t.Errorf("unexpected forEach aggregate: %#v", each)
	}
}

func TestExecuteSubWorkflowExposesOutputUnderAnchorID(t *testing.T) {
	inner := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "inner"},
		Tasks: []types.TaskStep{
			{ID: "step", TaskRef: "double", Input: map[string]string{"n": "{{input.n}}"}},
		},
		Output: map[string]string{"result": "{{tasks.step.output.doubled}}"},
	}
	catalog := &fakeCatalog{
		tasks:     map[string]*types.TaskSpec{"double": inlineSpec("scheduler-test-double")},
		workflows: map[string]*types.WorkflowDefinition{"inner": inner},
	}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "outer"},
		Tasks: []types.TaskStep{
			{ID: "call", WorkflowRef: "inner", Input: map[string]string{"n": "{{input.start}}"}},
		},
		Output: map[string]string{"final": "{{tasks.call.output.result}}"},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, map[string]interface{}{"start": float64(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %#v", result.Errors)
	}
	if result.Output["final"] != float64(8) {
		t.Errorf("expected final=8, got %#v", result.Output)
	}
}

func TestExecuteSubWorkflowCycleIsRejected(t *testing.T) {
	catalog := &fakeCatalog{workflows: map[string]*types.WorkflowDefinition{}}
	cyclic := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "cyclic"},
		Tasks: []types.TaskStep{
			{ID: "call-self", WorkflowRef: "cyclic"},
		},
	}
	catalog.workflows["cyclic"] = cyclic

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), cyclic, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure from self-referencing sub-workflow")
	}
	ee := result.TaskResults["call-self"]
	if ee == nil || ee.Status != types.TaskFailed {
		t.Fatalf("expected call-self failed, got %#v", ee)
	}
}

func TestExecuteCancellationFailsWorkflow(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{
		"slow": inlineSpec("scheduler-test-slow"),
	}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "cancel"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "slow"},
		},
	}

	s := newScheduler(t, catalog)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	result, err := s.Execute(ctx, wf, nil)
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if result.Success {
		t.Fatal("expected cancellation to fail the workflow")
	}
}

func TestExecuteUnknownTaskRefIsConfigurationError(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[string]*types.TaskSpec{}}
	wf := &types.WorkflowDefinition{
		Metadata: types.WorkflowMetadata{Name: "missing"},
		Tasks: []types.TaskStep{
			{ID: "a", TaskRef: "does-not-exist"},
		},
	}

	s := newScheduler(t, catalog)
	result, err := s.Execute(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(result.TaskResults["a"].Errors) == 0 || result.TaskResults["a"].Errors[0].Kind != types.ErrConfigurationError {
		t.Errorf("expected ConfigurationError, got %#v", result.TaskResults["a"].Errors)
	}
}
