// ABOUTME: Transform task executor (C4): runs a left-to-right pipeline of typed operations
// ABOUTME: over a resolved dataset. Dispatch table keyed by op kind, per the tagged-sum-type design note

package transform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// opFunc applies one pipeline op to the current working value.
type opFunc func(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error)

var dispatch = map[string]opFunc{
	"select":    opSelect,
	"filter":    opFilter,
	"map":       opMap,
	"flatMap":   opFlatMap,
	"groupBy":   opGroupBy,
	"join":      opJoin,
	"sortBy":    opSortBy,
	"enrich":    opEnrich,
	"aggregate": opAggregate,
	"limit":     opLimit,
	"skip":      opSkip,

	"first":   opFirst,
	"last":    opLast,
	"nth":     opNth,
	"reverse": opReverse,
	"unique":  opUnique,
	"flatten": opFlatten,
	"chunk":   opChunk,
	"zip":     opZip,

	"uppercase": opUppercase,
	"lowercase": opLowercase,
	"trim":      opTrim,
	"split":     opSplit,
	"concat":    opConcat,
	"replace":   opReplace,
	"substring": opSubstring,
	"template":  opTemplate,

	"round":      opRound,
	"floor":      opFloor,
	"ceil":       opCeil,
	"abs":        opAbs,
	"clamp":      opClamp,
	"scale":      opScale,
	"percentage": opPercentage,

	"randomOne": opRandomOne,
	"randomN":   opRandomN,
	"shuffle":   opShuffle,
}

// Executor runs a transform task spec.
type Executor struct {
	spec *types.TransformSpec
}

// New builds a transform executor for spec.
func New(spec *types.TransformSpec) *Executor {
	return &Executor{spec: spec}
}

// Execute resolves the spec's input template to the initial dataset and runs
// the ops pipeline left to right. resolvedInput is accepted for interface
// symmetry but unused: the dataset comes from the task spec's own Input
// template, not the step's input mapping (mirrors the http executor).
func (e *Executor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	working, err := template.Resolve(e.spec.Input, rc)
	if err != nil {
		return nil, err
	}

	for _, op := range e.spec.Ops {
		fn, ok := dispatch[op.Kind]
		if !ok {
			return nil, types.NewConfigurationError(fmt.Sprintf("transform: unknown op %q", op.Kind))
		}
		working, err = fn(op, rc, working)
		if err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{"output": working}, nil
}

func opSelect(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := make([]interface{}, len(records))
	for i, r := range records {
		sel := map[string]interface{}{}
		for _, f := range op.Fields {
			if v, ok := getPath(r, f); ok {
				sel[lastSegment(f)] = v
			}
		}
		out[i] = sel
	}
	return out, nil
}

func opFilter(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := []interface{}{}
	for _, r := range records {
		v, _ := getPath(r, op.Field)
		ok, err := filterMatch(op.Operator, v, op.Value)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func filterMatch(operator string, v, target interface{}) (bool, error) {
	switch operator {
	case "==", "!=", "<", "<=", ">", ">=":
		return compareBasic(operator, v, target)
	case "contains":
		return strings.Contains(asString(v), asString(target)), nil
	case "startsWith":
		return strings.HasPrefix(asString(v), asString(target)), nil
	case "endsWith":
		return strings.HasSuffix(asString(v), asString(target)), nil
	case "in":
		list, ok := target.([]interface{})
		if !ok {
			return false, fmt.Errorf("transform: filter 'in' operator requires an array value")
		}
		for _, item := range list {
			if valuesEqual(v, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("transform: unsupported filter operator %q", operator)
	}
}

func opMap(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := make([]interface{}, len(records))
	for i, r := range records {
		rec := map[string]interface{}{}
		for field, path := range op.Computed {
			if v, ok := getPath(r, path); ok {
				rec[field] = v
			}
		}
		out[i] = rec
	}
	return out, nil
}

func opEnrich(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := make([]interface{}, len(records))
	for i, r := range records {
		rec := map[string]interface{}{}
		if base, ok := r.(map[string]interface{}); ok {
			for k, v := range base {
				rec[k] = v
			}
		}
		for field, path := range op.Computed {
			if v, ok := getPath(r, path); ok {
				rec[field] = v
			}
		}
		out[i] = rec
	}
	return out, nil
}

func opFlatMap(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := []interface{}{}
	for _, r := range records {
		v, ok := getPath(r, op.Field)
		if !ok {
			continue
		}
		arr, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("transform: flatMap field %q is not an array", op.Field)
		}
		out = append(out, arr...)
	}
	return out, nil
}

func opGroupBy(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	type group struct {
		key   interface{}
		items []interface{}
	}
	order := []string{}
	groups := map[string]*group{}
	for _, r := range records {
		k, _ := getPath(r, op.Key)
		ks := asString(k)
		g, ok := groups[ks]
		if !ok {
			g = &group{key: k}
			groups[ks] = g
			order = append(order, ks)
		}
		g.items = append(g.items, r)
	}

	out := make([]interface{}, 0, len(order))
	for _, ks := range order {
		g := groups[ks]
		rec := map[string]interface{}{lastSegment(op.Key): g.key}
		for outField, expr := range op.Aggregations {
			val, err := aggregate(expr, g.items)
			if err != nil {
				return nil, err
			}
			rec[outField] = val
		}
		out = append(out, rec)
	}
	return out, nil
}

func opAggregate(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	rec := map[string]interface{}{}
	for outField, expr := range op.Aggregations {
		val, err := aggregate(expr, records)
		if err != nil {
			return nil, err
		}
		rec[outField] = val
	}
	return []interface{}{rec}, nil
}

func opSortBy(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := append([]interface{}{}, records...)
	desc := strings.EqualFold(op.Order, "desc")
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		vi, _ := getPath(out[i], op.Field)
		vj, _ := getPath(out[j], op.Field)
		if desc {
			gt, err := compareBasic(">", vi, vj)
			if err != nil {
				sortErr = err
			}
			return gt
		}
		lt, err := compareBasic("<", vi, vj)
		if err != nil {
			sortErr = err
		}
		return lt
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

func opJoin(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	left := toSlice(working)
	rv, err := template.Resolve(op.RightData, rc)
	if err != nil {
		return nil, err
	}
	right := toSlice(rv)

	rightIndex := map[string][]interface{}{}
	for _, r := range right {
		k, _ := getPath(r, op.RightKey)
		ks := asString(k)
		rightIndex[ks] = append(rightIndex[ks], r)
	}

	joinType := op.JoinType
	if joinType == "" {
		joinType = "inner"
	}

	out := []interface{}{}
	matchedRight := map[string]bool{}
	for _, l := range left {
		k, _ := getPath(l, op.LeftKey)
		ks := asString(k)
		matches := rightIndex[ks]
		if len(matches) == 0 {
			if joinType == "left" {
				out = append(out, mergeRecords(l, nil))
			}
			continue
		}
		matchedRight[ks] = true
		for _, r := range matches {
			out = append(out, mergeRecords(l, r))
		}
	}
	if joinType == "right" {
		for ks, matches := range rightIndex {
			if matchedRight[ks] {
				continue
			}
			for _, r := range matches {
				out = append(out, mergeRecords(nil, r))
			}
		}
	}
	return out, nil
}

func mergeRecords(l, r interface{}) map[string]interface{} {
	rec := map[string]interface{}{}
	if lm, ok := l.(map[string]interface{}); ok {
		for k, v := range lm {
			rec[k] = v
		}
	}
	if rm, ok := r.(map[string]interface{}); ok {
		for k, v := range rm {
			if _, exists := rec[k]; exists {
				rec["right_"+k] = v
			} else {
				rec[k] = v
			}
		}
	}
	return rec
}

func opLimit(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	n := op.Count
	if n < 0 {
		n = 0
	}
	if n > len(records) {
		n = len(records)
	}
	return append([]interface{}{}, records[:n]...), nil
}

func opSkip(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	n := op.Count
	if n < 0 {
		n = 0
	}
	if n > len(records) {
		n = len(records)
	}
	return append([]interface{}{}, records[n:]...), nil
}
