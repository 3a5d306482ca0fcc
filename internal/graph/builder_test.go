// ABOUTME: Tests for graph compilation: dependency discovery, cycle detection, and leveling
// ABOUTME: Mirrors the scenarios named in the specification's testable properties section

package graph

import (
	"testing"

	"github.com/weftrun/weft/pkg/types"
)

func step(id string, dependsOn []string, input map[string]string) types.TaskStep {
	return types.TaskStep{ID: id, TaskRef: "noop", DependsOn: dependsOn, Input: input}
}

func TestBuildLinearImplicitDependency(t *testing.T) {
	wf := &types.WorkflowDefinition{Tasks: []types.TaskStep{
		step("a", nil, nil),
		step("b", nil, map[string]string{"x": "{{tasks.a.output.v}}"}),
	}}

	g, _, err := Build(wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.Dependencies["b"]; len(got) != 1 || got[0] != "a" {
		t.Errorf("expected b to depend on a, got %v", got)
	}
	if g.Levels["a"] != 0 || g.Levels["b"] != 1 {
		t.Errorf("unexpected levels: %v", g.Levels)
	}
}

func TestBuildFanOutJoinParallelGroups(t *testing.T) {
	wf := &types.WorkflowDefinition{Tasks: []types.TaskStep{
		step("fetch", nil, nil),
		step("procA", []string{"fetch"}, nil),
		step("procB", []string{"fetch"}, nil),
		step("agg", []string{"procA", "procB"}, nil),
	}}

	g, _, err := Build(wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"fetch"}, {"procA", "procB"}, {"agg"}}
	if len(g.ParallelGroups) != len(want) {
		t.Fatalf("expected %d groups, got %d: %v", len(want), len(g.ParallelGroups), g.ParallelGroups)
	}
	for i := range want {
		if len(g.ParallelGroups[i]) != len(want[i]) {
			t.Fatalf("group %d: expected %v, got %v", i, want[i], g.ParallelGroups[i])
		}
		for j := range want[i] {
			if g.ParallelGroups[i][j] != want[i][j] {
				t.Errorf("group %d: expected %v, got %v", i, want[i], g.ParallelGroups[i])
			}
		}
	}
}

func TestBuildDuplicateTaskID(t *testing.T) {
	wf := &types.WorkflowDefinition{Tasks: []types.TaskStep{
		step("a", nil, nil),
		step("a", nil, nil),
	}}
	_, _, err := Build(wf)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestBuildMissingDependency(t *testing.T) {
	wf := &types.WorkflowDefinition{Tasks: []types.TaskStep{
		step("a", []string{"ghost"}, nil),
	}}
	_, _, err := Build(wf)
	if err == nil {
		t.Fatal("expected missing dependency error")
	}
}

func TestBuildCycleOfTwo(t *testing.T) {
	wf := &types.WorkflowDefinition{Tasks: []types.TaskStep{
		step("a", []string{"b"}, nil),
		step("b", []string{"a"}, nil),
	}}
	_, _, err := Build(wf)
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
	ee := types.AsEngineError(err)
	if ee.Kind != types.ErrCircularDependency {
		t.Errorf("expected CircularDependency kind, got %v", ee.Kind)
	}
}

func TestBuildEmptyWorkflowSucceeds(t *testing.T) {
	wf := &types.WorkflowDefinition{}
	g, _, err := Build(wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.NodeIDs) != 0 {
		t.Errorf("expected no nodes, got %v", g.NodeIDs)
	}
}
