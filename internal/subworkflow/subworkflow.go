// ABOUTME: Sub-workflow reference resolution (C8): parses workflowRef strings and enforces
// ABOUTME: call-stack depth/cycle limits before a referenced workflow is spliced into the scheduler

package subworkflow

import (
	"fmt"
	"strings"
	"sync"

	"github.com/weftrun/weft/pkg/types"
)

// DefaultMaxDepth is the call-stack depth limit when none is configured (§4.8).
const DefaultMaxDepth = 5

// Reference is a parsed workflowRef in any of the four accepted forms:
// "name", "name@version", "namespace/name", "namespace/name@version".
type Reference struct {
	Namespace string
	Name      string
	Version   string
}

// ParseReference parses one workflowRef string.
func ParseReference(ref string) (Reference, error) {
	if ref == "" {
		return Reference{}, types.NewConfigurationError("sub-workflow reference is empty")
	}

	namePart, version := ref, ""
	if idx := strings.LastIndex(ref, "@"); idx >= 0 {
		namePart, version = ref[:idx], ref[idx+1:]
		if namePart == "" || version == "" {
			return Reference{}, types.NewConfigurationError(fmt.Sprintf("sub-workflow reference %q: malformed @version", ref))
		}
	}

	namespace, name := "", namePart
	if idx := strings.Index(namePart, "/"); idx >= 0 {
		namespace, name = namePart[:idx], namePart[idx+1:]
		if namespace == "" || name == "" {
			return Reference{}, types.NewConfigurationError(fmt.Sprintf("sub-workflow reference %q: malformed namespace/name", ref))
		}
	}
	if name == "" {
		return Reference{}, types.NewConfigurationError(fmt.Sprintf("sub-workflow reference %q: missing name", ref))
	}

	return Reference{Namespace: namespace, Name: name, Version: version}, nil
}

// Catalog looks up a workflow definition by reference string (§6/C9).
type Catalog interface {
	GetWorkflow(ref string) (*types.WorkflowDefinition, error)
}

// CallStack tracks the chain of workflow references currently being invoked,
// one frame per nested sub-workflow call, to enforce §4.8's depth and cycle
// rules. Grounded in the teacher's internal/workflow/imports/resolver.go
// maxDepth-bounded recursion, generalized from a flat import cache to a
// live call stack since sub-workflow invocation is call-stack-based, not a
// one-time static merge. The scheduler may run independent graph branches
// concurrently, so sibling sub-workflow steps can Push/Pop the same stack
// from different goroutines; mu guards frames per §5's shared-state rule.
type CallStack struct {
	maxDepth int
	mu       sync.Mutex
	frames   []string
}

// NewCallStack builds a call stack bounded at maxDepth (DefaultMaxDepth if <= 0).
func NewCallStack(maxDepth int) *CallStack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &CallStack{maxDepth: maxDepth}
}

// Push adds ref to the stack, rejecting with DepthExceeded or WorkflowCycle
// per §4.8.
func (s *CallStack) Push(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) >= s.maxDepth {
		return types.NewDepthExceededError(s.maxDepth)
	}
	for _, f := range s.frames {
		if f == ref {
			return types.NewWorkflowCycleError(append(append([]string{}, s.frames...), ref))
		}
	}
	s.frames = append(s.frames, ref)
	return nil
}

// Pop removes the most recently pushed frame.
func (s *CallStack) Pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Resolve validates ref, pushes it onto stack, and looks it up via catalog.
// On success the returned release func must be called (typically deferred)
// once the sub-workflow's execution has completed, to pop the frame.
func Resolve(catalog Catalog, ref string, stack *CallStack) (*types.WorkflowDefinition, func(), error) {
	noop := func() {}
	if _, err := ParseReference(ref); err != nil {
		return nil, noop, err
	}
	if err := stack.Push(ref); err != nil {
		return nil, noop, err
	}
	wf, err := catalog.GetWorkflow(ref)
	if err != nil {
		stack.Pop()
		return nil, noop, err
	}
	return wf, stack.Pop, nil
}
