// ABOUTME: ForEach driver (C6): runs a task step's body once per resolved item,
// ABOUTME: sequentially or bounded-concurrently, preserving element order in the result

package foreach

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// Body runs one iteration's task against itemCtx (a template context scoped
// to that iteration's forEach frame) and returns its output or error.
type Body func(ctx context.Context, itemCtx *runtime.Context, index int) (map[string]interface{}, error)

// itemResult is one iteration's outcome, written by index so concurrent
// completions never race on ordering.
type itemResult struct {
	output map[string]interface{}
	err    error
}

// Run resolves spec.Items to an array and executes body once per element,
// per §4.6. The returned output always has the shape
// {outputs, itemCount, successCount, failureCount}; individual item failures
// do not make Run itself return an error — only a malformed Items expression
// does.
func Run(ctx context.Context, spec *types.ForEachSpec, rc *runtime.Context, body Body) (map[string]interface{}, error) {
	raw, err := template.Resolve(spec.Items, rc)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, types.NewConfigurationError("forEach: items did not resolve to an array")
	}

	indexVar := spec.IndexVar
	if indexVar == "" {
		indexVar = "index"
	}

	results := make([]itemResult, len(items))
	run := func(i int, item interface{}) {
		frame := &runtime.ForEachFrame{
			ItemVar:     spec.ItemVar,
			CurrentItem: item,
			IndexVar:    indexVar,
			Index:       i,
		}
		itemCtx := rc.WithForEachFrame(frame)
		out, execErr := body(ctx, itemCtx, i)
		results[i] = itemResult{output: out, err: execErr}
	}

	if spec.Parallel {
		var p *pool.Pool
		if spec.MaxConcurrency > 0 {
			p = pool.New().WithMaxGoroutines(spec.MaxConcurrency)
		} else {
			p = pool.New()
		}
		for i, item := range items {
			i, item := i, item
			p.Go(func() { run(i, item) })
		}
		p.Wait()
	} else {
		for i, item := range items {
			run(i, item)
		}
	}

	outputs := make([]interface{}, len(results))
	successCount, failureCount := 0, 0
	for i, r := range results {
		if r.err != nil {
			failureCount++
			ee := types.AsEngineError(r.err)
			outputs[i] = map[string]interface{}{"error": ee.ToErrorInfo(0, ee.OccurredAt)}
			continue
		}
		successCount++
		outputs[i] = r.output
	}

	return map[string]interface{}{
		"outputs":      outputs,
		"itemCount":    len(items),
		"successCount": successCount,
		"failureCount": failureCount,
	}, nil
}
