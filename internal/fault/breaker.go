// ABOUTME: Circuit breaker wrapper (C5): one sony/gobreaker instance per (task spec id, execution scope)
// ABOUTME: Fast-rejects while open; a configured fallback is invoked by the caller on CircuitOpen

package fault

import (
	"context"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/task"
	"github.com/weftrun/weft/pkg/types"
)

// Registry owns one circuit breaker per task spec id for a single workflow
// execution (§4.5 "held in a scope-owned map guarded by its own mutex"). The
// scheduler creates one Registry per execution and discards it at the end.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[map[string]interface{}]
}

// NewRegistry builds an empty, execution-scoped circuit breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*gobreaker.CircuitBreaker[map[string]interface{}])}
}

func (r *Registry) breakerFor(taskSpecID string, spec types.CircuitBreakerSpec) *gobreaker.CircuitBreaker[map[string]interface{}] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[taskSpecID]; ok {
		return cb
	}

	def := types.DefaultCircuitBreakerSpec()
	threshold := spec.FailureThreshold
	if threshold == 0 {
		threshold = def.FailureThreshold
	}
	sampling := spec.SamplingDuration
	if sampling == 0 {
		sampling = def.SamplingDuration
	}
	breakDuration := spec.BreakDuration
	if breakDuration == 0 {
		breakDuration = def.BreakDuration
	}
	halfOpenRequests := spec.HalfOpenRequests
	if halfOpenRequests == 0 {
		halfOpenRequests = def.HalfOpenRequests
	}

	cb := gobreaker.NewCircuitBreaker[map[string]interface{}](gobreaker.Settings{
		Name:        taskSpecID,
		MaxRequests: halfOpenRequests,
		Interval:    sampling,
		Timeout:     breakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// gobreaker resets Counts every Interval while Closed, so
			// TotalFailures is exactly "failures within the sampling window".
			return counts.TotalFailures >= threshold
		},
	})
	r.breakers[taskSpecID] = cb
	return cb
}

// breakerExecutor fast-rejects calls while its circuit is open.
type breakerExecutor struct {
	inner      task.Executor
	cb         *gobreaker.CircuitBreaker[map[string]interface{}]
	taskSpecID string
}

// WithCircuitBreaker wraps inner with a circuit breaker from registry, keyed
// by taskSpecID, configured per spec (nil uses the §4.5 defaults).
func WithCircuitBreaker(inner task.Executor, registry *Registry, taskSpecID string, spec *types.CircuitBreakerSpec) task.Executor {
	s := types.DefaultCircuitBreakerSpec()
	if spec != nil {
		s = *spec
	}
	cb := registry.breakerFor(taskSpecID, s)
	return &breakerExecutor{inner: inner, cb: cb, taskSpecID: taskSpecID}
}

func (b *breakerExecutor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	out, err := b.cb.Execute(func() (map[string]interface{}, error) {
		return b.inner.Execute(ctx, rc, resolvedInput)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, types.NewCircuitOpenError(b.taskSpecID)
	}
	return out, err
}

// State reports the current circuit state for a task spec, for attaching to
// TaskExecutionResult.CircuitState.
func (r *Registry) State(taskSpecID string) types.CircuitState {
	r.mu.Lock()
	cb, ok := r.breakers[taskSpecID]
	r.mu.Unlock()
	if !ok {
		return types.CircuitClosed
	}
	switch cb.State() {
	case gobreaker.StateOpen:
		return types.CircuitOpenSt
	case gobreaker.StateHalfOpen:
		return types.CircuitHalfOpen
	default:
		return types.CircuitClosed
	}
}
