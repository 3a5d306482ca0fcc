// ABOUTME: Tests for the circuit breaker wrapper's trip/fast-reject/half-open recovery behavior

package fault

import (
	"context"
	"testing"
	"time"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/pkg/types"
)

type alwaysFailExecutor struct {
	calls int
}

func (a *alwaysFailExecutor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	a.calls++
	return nil, types.NewNetworkError("down", nil)
}

func TestCircuitBreakerOpensAfterThresholdAndFastRejects(t *testing.T) {
	inner := &alwaysFailExecutor{}
	registry := NewRegistry()
	spec := &types.CircuitBreakerSpec{Enabled: true, FailureThreshold: 2, SamplingDuration: time.Minute, BreakDuration: time.Minute, HalfOpenRequests: 1}
	exec := WithCircuitBreaker(inner, registry, "spec-a", spec)
	rc := runtime.NewContext(nil)

	for i := 0; i < 2; i++ {
		if _, err := exec.Execute(context.Background(), rc, nil); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	callsBeforeOpen := inner.calls
	_, err := exec.Execute(context.Background(), rc, nil)
	ee := types.AsEngineError(err)
	if ee.Kind != types.ErrCircuitOpen {
		t.Fatalf("expected CircuitOpen, got %v", ee.Kind)
	}
	if inner.calls != callsBeforeOpen {
		t.Errorf("expected no inner call while circuit is open, inner.calls went from %d to %d", callsBeforeOpen, inner.calls)
	}
	if registry.State("spec-a") != types.CircuitOpenSt {
		t.Errorf("expected circuit state open, got %v", registry.State("spec-a"))
	}
}

func TestCircuitBreakerKeepsInstancesIndependentPerTaskSpecID(t *testing.T) {
	innerA := &alwaysFailExecutor{}
	innerB := &alwaysFailExecutor{}
	registry := NewRegistry()
	spec := &types.CircuitBreakerSpec{Enabled: true, FailureThreshold: 1, SamplingDuration: time.Minute, BreakDuration: time.Minute, HalfOpenRequests: 1}
	execA := WithCircuitBreaker(innerA, registry, "spec-a", spec)
	execB := WithCircuitBreaker(innerB, registry, "spec-b", spec)
	rc := runtime.NewContext(nil)

	execA.Execute(context.Background(), rc, nil)
	if _, err := execB.Execute(context.Background(), rc, nil); types.AsEngineError(err).Kind == types.ErrCircuitOpen {
		t.Fatal("spec-b's breaker should be unaffected by spec-a's failures")
	}
}

func TestCircuitBreakerSucceedsWhenHealthy(t *testing.T) {
	inner := &countingExecutor{failUntil: 0}
	registry := NewRegistry()
	spec := &types.CircuitBreakerSpec{Enabled: true, FailureThreshold: 5, SamplingDuration: time.Minute, BreakDuration: time.Minute, HalfOpenRequests: 1}
	exec := WithCircuitBreaker(inner, registry, "spec-c", spec)

	out, err := exec.Execute(context.Background(), runtime.NewContext(nil), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["output"] != "ok" {
		t.Errorf("unexpected output: %#v", out)
	}
}
