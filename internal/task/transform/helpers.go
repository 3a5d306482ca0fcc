// ABOUTME: Shared helpers for the transform pipeline: record field access, numeric/string
// ABOUTME: comparison dispatch, and the tiny grouping-aggregation expression parser

package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// toSlice normalizes a working value into a record slice: an array passes
// through, a scalar/object becomes a one-element slice.
func toSlice(v interface{}) []interface{} {
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	if v == nil {
		return []interface{}{}
	}
	return []interface{}{v}
}

// getPath looks up a dotted field path within record via its JSON encoding
// (§4.4: "field access ... performed with tidwall/gjson dotted-path lookups
// against the op's JSON-encoded working record").
func getPath(record interface{}, path string) (interface{}, bool) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(b, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

func lastSegment(path string) string {
	parts := strings.Split(path, ".")
	return parts[len(parts)-1]
}

func asNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
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

func valuesEqual(l, r interface{}) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	ln, lok := asNumber(l)
	rn, rok := asNumber(r)
	if lok && rok {
		return ln == rn
	}
	return asString(l) == asString(r)
}

// compareBasic implements the same numeric-or-string dispatch as the
// condition evaluator (§4.3), scoped locally so the transform pipeline's
// filter/sortBy ops don't need to import the condition package for what is,
// here, just a two-operand comparison primitive.
func compareBasic(op string, l, r interface{}) (bool, error) {
	if op == "==" || op == "!=" {
		eq := valuesEqual(l, r)
		if op == "==" {
			return eq, nil
		}
		return !eq, nil
	}
	ln, lok := asNumber(l)
	rn, rok := asNumber(r)
	if lok && rok {
		switch op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}
	ls, rs := asString(l), asString(r)
	switch op {
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	}
	return false, fmt.Errorf("transform: unsupported comparison operator %q", op)
}

// aggregate evaluates one "func(field)" aggregation expression (e.g.
// "sum(amount)", "count()") over items, used by both groupBy and aggregate.
func aggregate(expr string, items []interface{}) (interface{}, error) {
	open := strings.Index(expr, "(")
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return nil, fmt.Errorf("transform: invalid aggregation expression %q", expr)
	}
	name := expr[:open]
	field := strings.TrimSuffix(expr[open+1:], ")")

	if name == "count" {
		return float64(len(items)), nil
	}

	var values []float64
	for _, item := range items {
		v, ok := getPath(item, field)
		if !ok {
			continue
		}
		n, ok := asNumber(v)
		if !ok {
			continue
		}
		values = append(values, n)
	}

	switch name {
	case "sum":
		var sum float64
		for _, n := range values {
			sum += n
		}
		return sum, nil
	case "avg":
		if len(values) == 0 {
			return float64(0), nil
		}
		var sum float64
		for _, n := range values {
			sum += n
		}
		return sum / float64(len(values)), nil
	case "min":
		if len(values) == 0 {
			return nil, nil
		}
		min := values[0]
		for _, n := range values[1:] {
			if n < min {
				min = n
			}
		}
		return min, nil
	case "max":
		if len(values) == 0 {
			return nil, nil
		}
		max := values[0]
		for _, n := range values[1:] {
			if n > max {
				max = n
			}
		}
		return max, nil
	default:
		return nil, fmt.Errorf("transform: unknown aggregation function %q", name)
	}
}
