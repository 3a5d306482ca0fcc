// ABOUTME: Task executor dispatch (C4): routes a task spec to its kind-specific executor
// ABOUTME: Never retries and never consults the circuit breaker; that is the fault wrappers' job

package task

import (
	"context"
	"fmt"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/task/http"
	"github.com/weftrun/weft/internal/task/inline"
	"github.com/weftrun/weft/internal/task/transform"
	"github.com/weftrun/weft/pkg/types"
)

// Executor runs one task spec to completion given the resolved step input and
// the live template context (used by kind-specific payload templates).
type Executor interface {
	Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error)
}

// New builds the Executor for spec's kind. Dispatch is exhaustive over the
// closed TaskKind taxonomy (§3 "Task spec").
func New(spec *types.TaskSpec) (Executor, error) {
	switch spec.Kind {
	case types.KindHTTP:
		if spec.HTTP == nil {
			return nil, fmt.Errorf("task spec %q: kind http requires an http payload", spec.Name)
		}
		return http.New(spec.HTTP), nil
	case types.KindTransform:
		if spec.Transform == nil {
			return nil, fmt.Errorf("task spec %q: kind transform requires a transform payload", spec.Name)
		}
		return transform.New(spec.Transform), nil
	case types.KindInline:
		if spec.Inline == nil {
			return nil, fmt.Errorf("task spec %q: kind inline requires an inline payload", spec.Name)
		}
		return inline.New(spec.Inline), nil
	default:
		return nil, fmt.Errorf("task spec %q: unknown kind %q", spec.Name, spec.Kind)
	}
}
