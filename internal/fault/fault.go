// ABOUTME: Fault-tolerance composition (C5): Cache -> CircuitBreaker -> Retry -> Executor
// ABOUTME: The scheduler calls Wrap once per task step and invokes the outermost result

package fault

import (
	"github.com/weftrun/weft/internal/task"
	"github.com/weftrun/weft/pkg/types"
)

// Wrap composes the fault-tolerance stack around inner in the order fixed by
// §4.5: cache is checked first (outermost, so a hit skips everything below
// it); the circuit breaker guards the retry loop so an open circuit fails
// fast instead of retrying; retry is innermost, closest to the raw executor.
func Wrap(inner task.Executor, cache *Cache, breakers *Registry, taskSpecID string, taskSpec *types.TaskSpec, step *types.TaskStep) task.Executor {
	wrapped := inner

	wrapped = WithRetry(wrapped, step.Retry)

	if step.CircuitBreaker != nil && step.CircuitBreaker.Enabled {
		wrapped = WithCircuitBreaker(wrapped, breakers, taskSpecID, step.CircuitBreaker)
	}

	if step.Cache != nil && step.Cache.Enabled {
		wrapped = WithCache(wrapped, cache, taskSpecID, taskSpec, step.Cache)
	}

	return wrapped
}
