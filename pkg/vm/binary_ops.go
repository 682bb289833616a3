package vm

import (
	"fmt"
	"math"

	"github.com/thinksystem/pddfr/pkg/bytecode"
)

func binaryOp(op bytecode.OpCode, lhs, rhs any) (any, error) {
	switch op {
	case bytecode.OpAnd:
		return truthy(lhs) && truthy(rhs), nil
	case bytecode.OpOr:
		return truthy(lhs) || truthy(rhs), nil
	case bytecode.OpEq:
		return equalValues(lhs, rhs), nil
	case bytecode.OpNotEq:
		return !equalValues(lhs, rhs), nil
	}

	if ls, lok := lhs.(string); lok {
		rs, rok := rhs.(string)
		if !rok {
			return nil, ErrTypeMismatch(fmt.Sprintf("cannot apply %s between string and %T", op, rhs))
		}
		return stringOp(op, ls, rs)
	}

	lf, lok := toFloat(lhs)
	rf, rok := toFloat(rhs)
	if !lok || !rok {
		return nil, ErrTypeMismatch(fmt.Sprintf("cannot apply %s between %T and %T", op, lhs, rhs))
	}
	return numericOp(op, lhs, rhs, lf, rf)
}

func stringOp(op bytecode.OpCode, ls, rs string) (any, error) {
	switch op {
	case bytecode.OpAdd:
		return ls + rs, nil
	case bytecode.OpLt:
		return ls < rs, nil
	case bytecode.OpLtEq:
		return ls <= rs, nil
	case bytecode.OpGt:
		return ls > rs, nil
	case bytecode.OpGtEq:
		return ls >= rs, nil
	default:
		return nil, ErrTypeMismatch(fmt.Sprintf("%s is not defined for strings", op))
	}
}

func numericOp(op bytecode.OpCode, lraw, rraw any, lf, rf float64) (any, error) {
	_, lInt := lraw.(int64)
	_, rInt := rraw.(int64)
	bothInt := lInt && rInt

	switch op {
	case bytecode.OpAdd:
		if bothInt {
			return lraw.(int64) + rraw.(int64), nil
		}
		return lf + rf, nil
	case bytecode.OpSub:
		if bothInt {
			return lraw.(int64) - rraw.(int64), nil
		}
		return lf - rf, nil
	case bytecode.OpMul:
		if bothInt {
			return lraw.(int64) * rraw.(int64), nil
		}
		return lf * rf, nil
	case bytecode.OpDiv:
		if rf == 0 {
			return nil, ErrDivByZero()
		}
		if bothInt && lraw.(int64)%rraw.(int64) == 0 {
			return lraw.(int64) / rraw.(int64), nil
		}
		return lf / rf, nil
	case bytecode.OpMod:
		if bothInt {
			if rraw.(int64) == 0 {
				return nil, ErrModByZero()
			}
			return lraw.(int64) % rraw.(int64), nil
		}
		if rf == 0 {
			return nil, ErrModByZero()
		}
		return math.Mod(lf, rf), nil
	case bytecode.OpLt:
		return lf < rf, nil
	case bytecode.OpLtEq:
		return lf <= rf, nil
	case bytecode.OpGt:
		return lf > rf, nil
	case bytecode.OpGtEq:
		return lf >= rf, nil
	default:
		return nil, ErrTypeMismatch(fmt.Sprintf("%s is not a numeric operator", op))
	}
}

func equalValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !equalValues(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
