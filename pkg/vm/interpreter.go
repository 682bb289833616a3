package vm

import (
	"fmt"

	"github.com/thinksystem/pddfr/pkg/bytecode"
)

// Interpreter executes a single bytecode.Program against a gas budget. It
// holds no program-specific state between runs, so one Interpreter can be
// reused sequentially across many Run calls as long as callers do not invoke
// Run concurrently on the same instance.
type Interpreter struct {
	ffi *FfiRegistry
}

// NewInterpreter returns an Interpreter that resolves OpCall against ffi. A
// nil ffi is replaced with an empty registry exposing only the built-ins.
func NewInterpreter(ffi *FfiRegistry) *Interpreter {
	if ffi == nil {
		ffi = NewFfiRegistry()
	}
	return &Interpreter{ffi: ffi}
}

// Result is the outcome of a completed Run: the final stack-top value and the
// total gas consumed, reported even on failure so callers can log how close a
// program came to its budget.
type Result struct {
	Value    any
	GasUsed  uint64
	GasLimit uint64
}

// Run executes prog with vars as the initial variable bindings (indexed by
// name as interned in prog.Names) and stops once gasLimit is exhausted,
// returning an *OutOfGasError. Programs are expected to end in OpHalt; if the
// instruction pointer runs off the end of Code without one, Run returns
// whatever sits on top of the stack at that point.
func (vm *Interpreter) Run(prog *bytecode.Program, vars map[string]any, gasLimit uint64) (*Result, error) {
	stack := make([]any, 0, 16)
	push := func(v any) { stack = append(stack, v) }
	pop := func() (any, error) {
		if len(stack) == 0 {
			return nil, ErrStackUnderflow()
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	var gasUsed uint64
	ip := 0
	for ip < len(prog.Code) {
		ins := prog.Code[ip]
		gasUsed += ins.Op.GasCost()
		if gasUsed > gasLimit {
			return &Result{GasUsed: gasUsed, GasLimit: gasLimit}, &OutOfGasError{Limit: gasLimit}
		}

		switch ins.Op {
		case bytecode.OpPush:
			push(prog.Constants[ins.Operand])
			ip++

		case bytecode.OpLoadVar:
			name := prog.Names[ins.Operand]
			v, ok := vars[name]
			if !ok {
				return errResult(gasUsed, gasLimit, ErrUnknownVariable(name))
			}
			push(v)
			ip++

		case bytecode.OpLoadIndex:
			key, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			container, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			v, err := indexInto(container, key)
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			push(v)
			ip++

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
			bytecode.OpEq, bytecode.OpNotEq, bytecode.OpLt, bytecode.OpLtEq, bytecode.OpGt, bytecode.OpGtEq,
			bytecode.OpAnd, bytecode.OpOr:
			rhs, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			lhs, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			v, err := binaryOp(ins.Op, lhs, rhs)
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			push(v)
			ip++

		case bytecode.OpNeg:
			v, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			nv, err := negate(v)
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			push(nv)
			ip++

		case bytecode.OpNot:
			v, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			push(!truthy(v))
			ip++

		case bytecode.OpJump:
			ip = ins.Operand

		case bytecode.OpJumpIfFalse:
			v, err := pop()
			if err != nil {
				return errResult(gasUsed, gasLimit, err)
			}
			if truthy(v) {
				ip++
			} else {
				ip = ins.Operand
			}

		case bytecode.OpCall:
			fn, ok := vm.ffi.Lookup(ins.Name)
			if !ok {
				return errResult(gasUsed, gasLimit, ErrUnknownFunction(ins.Name))
			}
			args := make([]any, ins.Operand)
			for i := ins.Operand - 1; i >= 0; i-- {
				v, err := pop()
				if err != nil {
					return errResult(gasUsed, gasLimit, err)
				}
				args[i] = v
			}
			v, err := fn(args)
			if err != nil {
				return errResult(gasUsed, gasLimit, fmt.Errorf("vm: call %q: %w", ins.Name, err))
			}
			push(v)
			ip++

		case bytecode.OpHalt:
			var top any
			if len(stack) > 0 {
				top = stack[len(stack)-1]
			}
			return &Result{Value: top, GasUsed: gasUsed, GasLimit: gasLimit}, nil

		default:
			return errResult(gasUsed, gasLimit, fmt.Errorf("vm: unknown opcode %v", ins.Op))
		}
	}

	var top any
	if len(stack) > 0 {
		top = stack[len(stack)-1]
	}
	return &Result{Value: top, GasUsed: gasUsed, GasLimit: gasLimit}, nil
}

func errResult(used, limit uint64, err error) (*Result, error) {
	return &Result{GasUsed: used, GasLimit: limit}, err
}

func indexInto(container, key any) (any, error) {
	switch c := container.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, ErrTypeMismatch(fmt.Sprintf("map key must be string, got %T", key))
		}
		v, ok := c[k]
		if !ok {
			return nil, nil
		}
		return v, nil
	case []any:
		i, ok := key.(int64)
		if !ok {
			return nil, ErrTypeMismatch(fmt.Sprintf("slice index must be int, got %T", key))
		}
		if i < 0 || int(i) >= len(c) {
			return nil, ErrIndexOutOfBounds(fmt.Sprintf("index %d out of range [0, %d)", i, len(c)))
		}
		return c[i], nil
	default:
		return nil, ErrTypeMismatch(fmt.Sprintf("cannot index into %T", container))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func negate(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	default:
		return nil, ErrTypeMismatch(fmt.Sprintf("cannot negate %T", v))
	}
}
