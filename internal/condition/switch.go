// ABOUTME: Switch/case evaluator (§4.3): resolves a value template and matches
// ABOUTME: it case-insensitively against a list of literal case values

package condition

import (
	"strings"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// SwitchResult is the outcome of evaluating a switch spec (§4.3).
type SwitchResult struct {
	Matched       bool
	TaskRef       string
	MatchedValue  string
	EvaluatedValue interface{}
	IsDefault     bool
	Err           error
}

// EvaluateSwitch resolves spec.Value and matches it against spec.Cases in
// order. The first case whose Match string equals the resolved value
// case-insensitively wins. If none match and spec.Default is set, the
// default task ref is used instead.
func EvaluateSwitch(spec *types.SwitchSpec, ctx *runtime.Context) *SwitchResult {
	v, err := template.Resolve(spec.Value, ctx)
	if err != nil {
		return &SwitchResult{Err: types.AsEngineError(err)}
	}

	candidate := switchCompareString(v)
	for _, c := range spec.Cases {
		if strings.EqualFold(normalizeCaseMatch(c.Match), candidate) {
			return &SwitchResult{
				Matched:        true,
				TaskRef:        c.TaskRef,
				MatchedValue:   c.Match,
				EvaluatedValue: v,
			}
		}
	}

	if spec.Default != "" {
		return &SwitchResult{
			Matched:        true,
			TaskRef:        spec.Default,
			IsDefault:      true,
			EvaluatedValue: v,
		}
	}

	return &SwitchResult{Matched: false, EvaluatedValue: v}
}

// normalizeCaseMatch strips the surrounding quotes from a quoted-number case
// value (e.g. `"200"`), leaving literal/true/false/null cases unchanged.
func normalizeCaseMatch(match string) string {
	if len(match) >= 2 && match[0] == '"' && match[len(match)-1] == '"' {
		return match[1 : len(match)-1]
	}
	return match
}

// switchCompareString renders a resolved value the way a switch case author
// would write it as a literal: numbers without trailing zeros, bool/null as
// their keyword spellings, strings verbatim.
func switchCompareString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strings.ToLower(asString(t))
	case float64:
		return asString(t)
	case string:
		return t
	default:
		return asString(t)
	}
}
