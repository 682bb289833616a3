package strategy

import "fmt"

// handle is the subset of sandbox.Handle the function evaluator needs,
// declared locally so pkg/strategy does not import pkg/sandbox just for one
// method signature (the same narrow-interface idiom pkg/vm's FfiRegistry
// uses for its native function entries).
type handle interface {
	Invoke(args []any) (any, error)
}

// FunctionEvaluator scores n by invoking a registered dynamic function and
// coercing its return value into an EvalOutcome per spec.md §4.8's function
// evaluator taxonomy: bool -> score 0/1 (PreferMinN flips the ordering
// direction at the comparison layer, not here), number -> score, object ->
// ok|score|aux fields.
type FunctionEvaluator struct {
	Handle handle
}

func (e *FunctionEvaluator) Eval(n int64, _ *Memo) (EvalOutcome, error) {
	result, err := e.Handle.Invoke([]any{n})
	if err != nil {
		return EvalOutcome{}, fmt.Errorf("strategy: function evaluator invocation failed for n=%d: %w", n, err)
	}
	return coerceOutcome(result)
}

func coerceOutcome(result any) (EvalOutcome, error) {
	switch v := result.(type) {
	case bool:
		if v {
			return EvalOutcome{Score: 1}, nil
		}
		return EvalOutcome{Score: 0}, nil
	case int64:
		return EvalOutcome{Score: float64(v)}, nil
	case int32:
		return EvalOutcome{Score: float64(v)}, nil
	case int:
		return EvalOutcome{Score: float64(v)}, nil
	case float64:
		return EvalOutcome{Score: v}, nil
	case map[string]any:
		out := EvalOutcome{}
		if ok, present := v["ok"]; present {
			okBool, isBool := ok.(bool)
			if isBool && !okBool {
				out.Score = negativeInfinity
			}
		}
		if score, present := v["score"]; present {
			f, err := toFloat64(score)
			if err != nil {
				return EvalOutcome{}, fmt.Errorf("strategy: function evaluator's score field: %w", err)
			}
			out.Score = f
		}
		if aux, present := v["aux"]; present {
			f, err := toFloat64(aux)
			if err != nil {
				return EvalOutcome{}, fmt.Errorf("strategy: function evaluator's aux field: %w", err)
			}
			out.Aux = f
		}
		if notes, present := v["notes"]; present {
			if s, ok := notes.(string); ok {
				out.Notes = s
			}
		}
		return out, nil
	default:
		return EvalOutcome{}, fmt.Errorf("strategy: function evaluator returned unsupported type %T", result)
	}
}

// negativeInfinity marks a candidate explicit function evaluators flagged
// ok=false, so it never wins the running best or makes the top-K/Pareto
// frontier without needing a separate "valid" flag threaded through scan.go.
const negativeInfinity = -1e308

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
