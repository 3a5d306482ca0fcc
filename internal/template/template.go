// ABOUTME: Template engine for parsing and resolving {{path}} expressions
// ABOUTME: Preserves typed values for single-expression templates; unlike text/template it never stringifies a bare reference

package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/pkg/types"
)

// Kind is the template engine's own fine-grained error taxonomy (§4.1). It is
// narrower than the engine-wide types.ErrorKind and collapses into it at the
// task-result boundary via ToEngineError.
type Kind string

const (
	InvalidTemplate Kind = "InvalidTemplate"
	MissingField    Kind = "MissingField"
	TaskNotCompleted Kind = "TaskNotCompleted"
	TypeError       Kind = "TypeError"
)

// Error is a template-resolution failure, classified by Kind.
type Error struct {
	Kind Kind
	Path string
	Msg  string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// ToEngineError maps a template Error onto the engine-wide closed taxonomy (§7):
// InvalidTemplate is a configuration mistake made by the workflow author;
// everything else is a runtime template-resolution failure.
func (e *Error) ToEngineError() *types.EngineError {
	if e.Kind == InvalidTemplate {
		return types.NewConfigurationError(e.Error())
	}
	return types.NewTemplateResolutionError(e.Error())
}

// expr is one parsed `{{path}}` expression.
type expr struct {
	raw  string
	path []string
}

// segment is either a literal run of text or a parsed expression.
type segment struct {
	literal string
	expr    *expr
}

// Parse splits a template string into literal and expression segments.
// Failure kind InvalidTemplate on unbalanced braces or an unknown root segment.
func Parse(tmpl string) ([]segment, error) {
	var segments []segment
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start < 0 {
			segments = append(segments, segment{literal: tmpl[i:]})
			break
		}
		start += i
		if start > i {
			segments = append(segments, segment{literal: tmpl[i:start]})
		}
		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			return nil, &Error{Kind: InvalidTemplate, Msg: "unbalanced braces", Path: tmpl}
		}
		end += start
		raw := strings.TrimSpace(tmpl[start+2 : end])
		if raw == "" {
			return nil, &Error{Kind: InvalidTemplate, Msg: "empty expression", Path: tmpl}
		}
		path := strings.Split(raw, ".")
		if err := validateRoot(path[0]); err != nil {
			return nil, err
		}
		segments = append(segments, segment{expr: &expr{raw: raw, path: path}})
		i = end + 2
	}
	return segments, nil
}

func validateRoot(root string) error {
	switch root {
	case "input", "tasks", "forEach":
		return nil
	default:
		return &Error{Kind: InvalidTemplate, Msg: "unknown root segment " + root, Path: root}
	}
}

// Resolve evaluates a template against ctx. A template consisting of exactly
// one expression with no surrounding literal text returns the typed referent
// (number, bool, map, slice); otherwise it returns the concatenated string
// with each expression stringified in place (§4.1).
func Resolve(tmpl string, ctx *runtime.Context) (interface{}, error) {
	segments, err := Parse(tmpl)
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 && segments[0].expr != nil {
		return resolvePath(segments[0].expr.path, ctx)
	}
	var b strings.Builder
	for _, s := range segments {
		if s.expr != nil {
			v, err := resolvePath(s.expr.path, ctx)
			if err != nil {
				return nil, err
			}
			b.WriteString(stringify(v))
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String(), nil
}

// ResolveMapping resolves every template in fields, aggregating failures into
// one error rather than succeeding partially (§4.1). A field referencing a
// task that hasn't completed (TaskNotCompleted) is reported as-is, Kind and
// Path intact, rather than folded into a generic MissingField: the scheduler's
// skip cascade (skippedTaskRef) keys off that Kind to tell "the workflow
// author made a mistake" apart from "the dependency was skipped".
func ResolveMapping(fields map[string]string, ctx *runtime.Context) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	var errs []string
	var notCompleted *Error
	for field, tmpl := range fields {
		v, err := Resolve(tmpl, ctx)
		if err != nil {
			if te, ok := err.(*Error); ok && te.Kind == TaskNotCompleted && notCompleted == nil {
				notCompleted = te
			}
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
			continue
		}
		out[field] = v
	}
	if notCompleted != nil {
		return nil, notCompleted
	}
	if len(errs) > 0 {
		return nil, &Error{Kind: MissingField, Msg: strings.Join(errs, "; ")}
	}
	return out, nil
}

func resolvePath(path []string, ctx *runtime.Context) (interface{}, error) {
	switch path[0] {
	case "input":
		return navigate(ctx.Input, path[1:])
	case "tasks":
		if len(path) < 2 {
			return nil, &Error{Kind: MissingField, Msg: "tasks path requires a task id"}
		}
		taskID := path[1]
		out, ok := ctx.TaskOutput(taskID)
		if !ok {
			return nil, &Error{Kind: MissingField, Msg: "unknown task", Path: taskID}
		}
		rest := path[2:]
		if len(rest) == 0 {
			if !out.Completed {
				return nil, &Error{Kind: TaskNotCompleted, Path: taskID, Msg: "task has not produced output"}
			}
			return out.Output, nil
		}
		if rest[0] != "output" {
			return nil, &Error{Kind: MissingField, Msg: "expected .output after task id", Path: strings.Join(path, ".")}
		}
		if !out.Completed {
			return nil, &Error{Kind: TaskNotCompleted, Path: taskID, Msg: "task has not produced output"}
		}
		return navigate(out.Output, rest[1:])
	case "forEach":
		if ctx.ForEach == nil {
			return nil, &Error{Kind: MissingField, Msg: "no active forEach frame"}
		}
		if len(path) < 2 {
			return nil, &Error{Kind: MissingField, Msg: "forEach path requires a variable name"}
		}
		key := path[1]
		indexVar := ctx.ForEach.IndexVar
		if indexVar == "" {
			indexVar = "index"
		}
		switch key {
		case ctx.ForEach.ItemVar:
			return navigate(ctx.ForEach.CurrentItem, path[2:])
		case indexVar:
			return float64(ctx.ForEach.Index), nil
		default:
			return nil, &Error{Kind: MissingField, Msg: "unknown forEach variable", Path: key}
		}
	default:
		return nil, &Error{Kind: InvalidTemplate, Msg: "unknown root segment", Path: path[0]}
	}
}

func navigate(value interface{}, fields []string) (interface{}, error) {
	cur := value
	for _, f := range fields {
		switch m := cur.(type) {
		case map[string]interface{}:
			v, ok := m[f]
			if !ok {
				return nil, &Error{Kind: MissingField, Msg: "field not present", Path: f}
			}
			cur = v
		case nil:
			return nil, &Error{Kind: MissingField, Msg: "field not present on nil", Path: f}
		default:
			return nil, &Error{Kind: TypeError, Msg: "applying field to non-object", Path: f}
		}
	}
	return cur, nil
}

// ReferencedTaskIDs returns the task ids referenced by `tasks.<id>...`
// expressions in tmpl, without resolving them. Used by the graph builder
// (C2) to discover implicit dependencies from template strings (§4.2 step 3).
func ReferencedTaskIDs(tmpl string) ([]string, error) {
	segments, err := Parse(tmpl)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, s := range segments {
		if s.expr == nil {
			continue
		}
		if len(s.expr.path) >= 2 && s.expr.path[0] == "tasks" {
			ids = append(ids, s.expr.path[1])
		}
	}
	return ids, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
