// ABOUTME: Tests for the switch/case evaluator's case-insensitive literal matching

package condition

import (
	"testing"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/pkg/types"
)

func TestEvaluateSwitchFirstMatchWins(t *testing.T) {
	ctx := runtime.NewContext(map[string]interface{}{"status": "OK"})
	spec := &types.SwitchSpec{
		Value: "{{input.status}}",
		Cases: []types.SwitchCase{
			{Match: "ok", TaskRef: "onOK"},
			{Match: "error", TaskRef: "onError"},
		},
	}
	r := EvaluateSwitch(spec, ctx)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if !r.Matched || r.TaskRef != "onOK" || r.IsDefault {
		t.Errorf("expected match on onOK, got %+v", r)
	}
}

func TestEvaluateSwitchQuotedNumberCase(t *testing.T) {
	ctx := runtime.NewContext(nil)
	ctx.SetTaskOutput("call", map[string]interface{}{"status": float64(200)})
	spec := &types.SwitchSpec{
		Value: "{{tasks.call.output.status}}",
		Cases: []types.SwitchCase{
			{Match: `"200"`, TaskRef: "onSuccess"},
			{Match: `"500"`, TaskRef: "onError"},
		},
	}
	r := EvaluateSwitch(spec, ctx)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if !r.Matched || r.TaskRef != "onSuccess" {
		t.Errorf("expected match on onSuccess, got %+v", r)
	}
}

func TestEvaluateSwitchDefaultWhenNoMatch(t *testing.T) {
	ctx := runtime.NewContext(map[string]interface{}{"status": "timeout"})
	spec := &types.SwitchSpec{
		Value: "{{input.status}}",
		Cases: []types.SwitchCase{
			{Match: "ok", TaskRef: "onOK"},
		},
		Default: "onUnknown",
	}
	r := EvaluateSwitch(spec, ctx)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if !r.Matched || !r.IsDefault || r.TaskRef != "onUnknown" {
		t.Errorf("expected default match, got %+v", r)
	}
}

func TestEvaluateSwitchNoMatchNoDefault(t *testing.T) {
	ctx := runtime.NewContext(map[string]interface{}{"status": "timeout"})
	spec := &types.SwitchSpec{
		Value: "{{input.status}}",
		Cases: []types.SwitchCase{
			{Match: "ok", TaskRef: "onOK"},
		},
	}
	r := EvaluateSwitch(spec, ctx)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if r.Matched {
		t.Errorf("expected no match, got %+v", r)
	}
}

func TestEvaluateSwitchBoolAndNullLiterals(t *testing.T) {
	ctx := runtime.NewContext(nil)
	ctx.SetTaskOutput("check", map[string]interface{}{"ok": true})
	spec := &types.SwitchSpec{
		Value: "{{tasks.check.output.ok}}",
		Cases: []types.SwitchCase{
			{Match: "true", TaskRef: "onTrue"},
			{Match: "false", TaskRef: "onFalse"},
		},
	}
	r := EvaluateSwitch(spec, ctx)
	if r.Err != nil || !r.Matched || r.TaskRef != "onTrue" {
		t.Fatalf("expected onTrue, got %+v", r)
	}
}

func TestEvaluateSwitchPropagatesResolutionError(t *testing.T) {
	ctx := runtime.NewContext(nil)
	spec := &types.SwitchSpec{
		Value: "{{tasks.missing.output.x}}",
		Cases: []types.SwitchCase{{Match: "ok", TaskRef: "onOK"}},
	}
	r := EvaluateSwitch(spec, ctx)
	if r.Err == nil {
		t.Fatal("expected an error")
	}
}
