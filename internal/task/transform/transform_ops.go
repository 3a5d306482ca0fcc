// ABOUTME: Array, string, math, and randomized transform ops (§4.4)
// ABOUTME: String ops reuse the teacher's text/template + sprig stack scoped to the "template" op alone

package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/shopspring/decimal"

	"github.com/weftrun/weft/internal/runtime"
	wttemplate "github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// mapValues applies fn to either the whole working value (field == "") or to
// one named field of each record in working, returning the result with the
// same shape it was given.
func mapValues(working interface{}, field string, fn func(interface{}) (interface{}, error)) (interface{}, error) {
	if field == "" {
		if _, isArray := working.([]interface{}); isArray {
			return nil, fmt.Errorf("transform: operation requires a field when working on a record array")
		}
		return fn(working)
	}

	records := toSlice(working)
	out := make([]interface{}, len(records))
	for i, r := range records {
		rec, ok := r.(map[string]interface{})
		if !ok {
			out[i] = r
			continue
		}
		v, exists := rec[field]
		if !exists {
			out[i] = r
			continue
		}
		nv, err := fn(v)
		if err != nil {
			return nil, err
		}
		newRec := make(map[string]interface{}, len(rec))
		for k, vv := range rec {
			newRec[k] = vv
		}
		newRec[field] = nv
		out[i] = newRec
	}
	return out, nil
}

// --- array ops ---

func opFirst(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	if len(records) == 0 {
		return []interface{}{}, nil
	}
	return []interface{}{records[0]}, nil
}

func opLast(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	if len(records) == 0 {
		return []interface{}{}, nil
	}
	return []interface{}{records[len(records)-1]}, nil
}

func opNth(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	if op.Start < 0 || op.Start >= len(records) {
		return []interface{}{}, nil
	}
	return []interface{}{records[op.Start]}, nil
}

func opReverse(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out, nil
}

func opUnique(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	seen := map[string]bool{}
	out := []interface{}{}
	for _, r := range records {
		var key string
		if op.Field != "" {
			v, _ := getPath(r, op.Field)
			key = asString(v)
		} else {
			b, _ := json.Marshal(r)
			key = string(b)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, nil
}

func opFlatten(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	depth := op.Size
	if depth <= 0 {
		depth = 1
	}
	out := toSlice(working)
	for d := 0; d < depth; d++ {
		var next []interface{}
		changed := false
		for _, r := range out {
			if arr, ok := r.([]interface{}); ok {
				next = append(next, arr...)
				changed = true
			} else {
				next = append(next, r)
			}
		}
		out = next
		if !changed {
			break
		}
	}
	return out, nil
}

func opChunk(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	size := op.Size
	if size <= 0 {
		size = 1
	}
	out := []interface{}{}
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, append([]interface{}{}, records[i:end]...))
	}
	return out, nil
}

func opZip(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	left := toSlice(working)
	rv, err := wttemplate.Resolve(op.RightData, rc)
	if err != nil {
		return nil, err
	}
	right := toSlice(rv)
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = map[string]interface{}{"left": left[i], "right": right[i]}
	}
	return out, nil
}

// --- string ops ---

func opUppercase(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		return strings.ToUpper(asString(v)), nil
	})
}

func opLowercase(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		return strings.ToLower(asString(v)), nil
	})
}

func opTrim(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		return strings.TrimSpace(asString(v)), nil
	})
}

func opSplit(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		parts := strings.Split(asString(v), op.Separator)
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	})
}

func opReplace(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		s := asString(v)
		for old, new := range op.Replace {
			s = strings.ReplaceAll(s, old, new)
		}
		return s, nil
	})
}

func opSubstring(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		s := []rune(asString(v))
		start := op.Start
		if start < 0 {
			start = 0
		}
		if start > len(s) {
			start = len(s)
		}
		end := len(s)
		if op.Length > 0 && start+op.Length < end {
			end = start + op.Length
		}
		return string(s[start:end]), nil
	})
}

func opConcat(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	if len(op.Fields) > 0 {
		records := toSlice(working)
		out := make([]interface{}, len(records))
		for i, r := range records {
			var parts []string
			for _, f := range op.Fields {
				v, _ := getPath(r, f)
				parts = append(parts, asString(v))
			}
			joined := strings.Join(parts, op.Separator)
			if rec, ok := r.(map[string]interface{}); ok {
				newRec := make(map[string]interface{}, len(rec)+1)
				for k, v := range rec {
					newRec[k] = v
				}
				dest := op.Field
				if dest == "" {
					dest = "concat"
				}
				newRec[dest] = joined
				out[i] = newRec
			} else {
				out[i] = joined
			}
		}
		return out, nil
	}

	records := toSlice(working)
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = asString(r)
	}
	return strings.Join(parts, op.Separator), nil
}

func opTemplate(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	tmpl, err := template.New("transform").Funcs(sprig.TxtFuncMap()).Parse(op.Template)
	if err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("transform: invalid template: %v", err))
	}

	records := toSlice(working)
	out := make([]interface{}, len(records))
	for i, r := range records {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, r); err != nil {
			return nil, types.NewConfigurationError(fmt.Sprintf("transform: template execution: %v", err))
		}
		if op.Field != "" {
			newRec := map[string]interface{}{}
			if rec, ok := r.(map[string]interface{}); ok {
				for k, v := range rec {
					newRec[k] = v
				}
			}
			newRec[op.Field] = buf.String()
			out[i] = newRec
		} else {
			out[i] = buf.String()
		}
	}
	return out, nil
}

// --- math ops ---

func mathOp(op types.TransformOp, working interface{}, fn func(decimal.Decimal) decimal.Decimal) (interface{}, error) {
	return mapValues(working, op.Field, func(v interface{}) (interface{}, error) {
		n, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("transform: math op requires a numeric value, got %v", v)
		}
		f, _ := fn(decimal.NewFromFloat(n)).Float64()
		return f, nil
	})
}

func opRound(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal { return d.Round(int32(op.Precision)) })
}

func opFloor(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal { return d.Floor() })
}

func opCeil(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal { return d.Ceil() })
}

func opAbs(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal { return d.Abs() })
}

func opClamp(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	min := decimal.NewFromFloat(op.Min)
	max := decimal.NewFromFloat(op.Max)
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal {
		if d.LessThan(min) {
			return min
		}
		if d.GreaterThan(max) {
			return max
		}
		return d
	})
}

func opScale(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	span := decimal.NewFromFloat(op.Max - op.Min)
	minD := decimal.NewFromFloat(op.Min)
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal {
		if span.IsZero() {
			return decimal.Zero
		}
		return d.Sub(minD).Div(span)
	})
}

func opPercentage(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	return mathOp(op, working, func(d decimal.Decimal) decimal.Decimal {
		return d.Mul(decimal.NewFromInt(100)).Round(int32(op.Precision))
	})
}

// --- randomized ops ---

func randSource(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func opRandomOne(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	if len(records) == 0 {
		return []interface{}{}, nil
	}
	r := randSource(op.Seed)
	return []interface{}{records[r.Intn(len(records))]}, nil
}

func opRandomN(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	n := op.Count
	if n > len(records) {
		n = len(records)
	}
	if n < 0 {
		n = 0
	}
	r := randSource(op.Seed)
	perm := r.Perm(len(records))
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = records[perm[i]]
	}
	return out, nil
}

func opShuffle(op types.TransformOp, rc *runtime.Context, working interface{}) (interface{}, error) {
	records := toSlice(working)
	out := append([]interface{}{}, records...)
	r := randSource(op.Seed)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}
