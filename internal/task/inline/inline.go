// ABOUTME: Inline task executor (C4): dispatches to a host-registered function by name
// ABOUTME: Ships checksum and debug as reference implementations, adapted from the teacher's task packages

package inline

import (
	"context"
	"fmt"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/pkg/types"
)

// Func is a host-provided function: resolved arguments in, a result map out.
type Func func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// registry is the process-wide set of functions inline tasks can name. The
// core ships two worked examples; embedding hosts register their own.
var registry = map[string]Func{
	"checksum": checksumFunc,
	"debug":    debugFunc,
}

// Register adds or replaces a host function under name. Not safe for
// concurrent use with Execute; call during program startup.
func Register(name string, fn Func) {
	registry[name] = fn
}

// Executor runs an inline task spec.
type Executor struct {
	spec *types.InlineSpec
}

// New builds an inline executor for spec.
func New(spec *types.InlineSpec) *Executor {
	return &Executor{spec: spec}
}

// Execute looks up the named function and invokes it with resolvedInput as
// its arguments. rc is unused: an inline function's contract is resolved
// inputs in, result out (§4.4), not ambient template access.
func (e *Executor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	fn, ok := registry[e.spec.Function]
	if !ok {
		return nil, types.NewConfigurationError(fmt.Sprintf("inline task: no function registered under %q", e.spec.Function))
	}
	out, err := fn(ctx, resolvedInput)
	if err != nil {
		if ee, ok := err.(*types.EngineError); ok {
			return nil, ee
		}
		return nil, types.NewUnknownError(err)
	}
	return out, nil
}
