// ABOUTME: Retry wrapper (C5): exponential backoff gated on error-kind retryability
// ABOUTME: Built on sethvargo/go-retry; cancellation of ctx aborts any pending delay

package fault

import (
	"context"
	"math"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/task"
	"github.com/weftrun/weft/pkg/types"
)

// retryExecutor retries a failed inner execution according to spec, counting
// attempts into retryCount.
type retryExecutor struct {
	inner task.Executor
	spec  types.RetrySpec
}

// WithRetry wraps inner with the retry policy from spec, applying the §4.5
// defaults for any zero field.
func WithRetry(inner task.Executor, spec *types.RetrySpec) task.Executor {
	s := types.DefaultRetrySpec()
	if spec != nil {
		if spec.InitialDelay > 0 {
			s.InitialDelay = spec.InitialDelay
		}
		if spec.MaxDelay > 0 {
			s.MaxDelay = spec.MaxDelay
		}
		if spec.Multiplier > 0 {
			s.Multiplier = spec.Multiplier
		}
		if spec.MaxRetryCount > 0 {
			s.MaxRetryCount = spec.MaxRetryCount
		}
	}
	return &retryExecutor{inner: inner, spec: s}
}

// Execute runs inner, retrying on retryable EngineErrors per the exponential
// backoff policy. The final attempt's result and retry count are returned;
// on failure retryCount is surfaced to the caller via RetryCount on the
// returned error (see RetryCounter); on success it is recorded into ctx via
// recordRetryCount so a caller above any circuit-breaker/cache layers wrapped
// around this executor can still read how many retries a successful attempt
// took (see ContextWithRetryCounter).
func (r *retryExecutor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	b := retry.WithMaxRetries(uint64(r.spec.MaxRetryCount), exponentialBackoff(r.spec))
	b = retry.WithCappedDuration(r.spec.MaxDelay, b)

	attempts := 0
	var out map[string]interface{}
	var lastErr *types.EngineError

	retryErr := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		o, execErr := r.inner.Execute(ctx, rc, resolvedInput)
		if execErr == nil {
			out = o
			return nil
		}
		lastErr = types.AsEngineError(execErr)
		if !lastErr.Retryable() {
			return lastErr
		}
		return retry.RetryableError(lastErr)
	})

	if retryErr != nil {
		return nil, &retryCountedError{EngineError: lastErr, retryCount: attempts - 1}
	}
	recordRetryCount(ctx, attempts-1)
	return out, nil
}

// retryCounterKey is the context key under which ContextWithRetryCounter
// stores its counter.
type retryCounterKey struct{}

// ContextWithRetryCounter returns a derived context carrying a counter that a
// nested retryExecutor writes its attempt count into on success, plus the
// counter itself. Needed because WithCircuitBreaker/WithCache can wrap
// retryExecutor, so a successful Execute's return value alone can't carry the
// retry count back to the scheduler — the scheduler reads *counter after
// calling Execute instead.
func ContextWithRetryCounter(ctx context.Context) (context.Context, *int) {
	counter := new(int)
	return context.WithValue(ctx, retryCounterKey{}, counter), counter
}

// recordRetryCount stores attempts-1 retries into the counter from
// ContextWithRetryCounter, if ctx carries one.
func recordRetryCount(ctx context.Context, retryCount int) {
	if counter, ok := ctx.Value(retryCounterKey{}).(*int); ok {
		*counter = retryCount
	}
}

// exponentialBackoff implements the §4.5 formula directly — delay after
// attempt n is initialDelay × multiplier^(n-1) — as a retry.BackoffFunc, since
// go-retry's built-in NewExponential hardcodes a ×2 multiplier and spec allows
// a configurable one. WithMaxRetries/WithCappedDuration decorate it below.
func exponentialBackoff(spec types.RetrySpec) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		delay := float64(spec.InitialDelay) * math.Pow(spec.Multiplier, float64(attempt-1))
		return time.Duration(delay), true
	})
}

// retryCountedError pairs an EngineError with how many retries were attempted
// before it was returned, so the scheduler can populate TaskExecutionResult.RetryCount.
type retryCountedError struct {
	*types.EngineError
	retryCount int
}

// RetryCount reports how many retry attempts were made before this error was
// returned (0 if the first attempt already exhausted retries is non-retryable).
func (e *retryCountedError) RetryCount() int { return e.retryCount }

// Unwrap exposes the underlying *types.EngineError directly (rather than the
// promoted EngineError.Unwrap, which would unwrap to its Cause instead) so
// errors.As(err, &engineErr) finds it.
func (e *retryCountedError) Unwrap() error { return e.EngineError }

// RetryCounter is implemented by errors that know how many retries were
// attempted before they were returned.
type RetryCounter interface {
	RetryCount() int
}
