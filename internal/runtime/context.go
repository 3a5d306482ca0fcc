// ABOUTME: Template execution context shared by the template engine and scheduler
// ABOUTME: Carries input parameters, per-task outputs, and the active forEach frame

package runtime

import "sync"

// TaskOutput is what the template context can see about one task: whether it
// has produced output yet, and what that output is (§3 "Template context").
type TaskOutput struct {
	Completed bool
	Output    map[string]interface{}
}

// ForEachFrame is the active iteration frame bound by the forEach driver (§4.6).
type ForEachFrame struct {
	ItemVar     string
	CurrentItem interface{}
	IndexVar    string
	Index       int
}

// Context is the template context (§3): input, per-task outputs, and an
// optional forEach frame. It is read-mostly; the one mutation path
// (SetTaskOutput) is guarded so concurrent task completions can write safely
// while resolutions elsewhere read without tearing (§4.1 "resolution is
// read-only on the context").
type Context struct {
	mu      sync.RWMutex
	Input   map[string]interface{}
	Tasks   map[string]*TaskOutput
	ForEach *ForEachFrame
}

// NewContext builds a context seeded with resolved workflow input.
func NewContext(input map[string]interface{}) *Context {
	if input == nil {
		input = map[string]interface{}{}
	}
	return &Context{
		Input: input,
		Tasks: make(map[string]*TaskOutput),
	}
}

// WithForEachFrame returns a shallow copy of ctx scoped to one forEach iteration.
// Tasks and Input are shared (read-only) across iterations; only the frame differs.
func (c *Context) WithForEachFrame(frame *ForEachFrame) *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Context{
		Input:   c.Input,
		Tasks:   c.Tasks,
		ForEach: frame,
	}
}

// SetTaskOutput registers a completed task's output for downstream templates.
func (c *Context) SetTaskOutput(taskID string, output map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tasks[taskID] = &TaskOutput{Completed: true, Output: output}
}

// SetTaskSkipped registers a skipped task with empty output (§8 boundary behavior).
func (c *Context) SetTaskSkipped(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tasks[taskID] = &TaskOutput{Completed: false, Output: map[string]interface{}{}}
}

// TaskOutput returns a snapshot of one task's recorded output, if any.
func (c *Context) TaskOutput(taskID string) (*TaskOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.Tasks[taskID]
	return out, ok
}
