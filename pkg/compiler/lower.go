package compiler

import (
	"fmt"

	"github.com/thinksystem/pddfr/pkg/bytecode"
)

// Compile parses src and lowers it straight to a bytecode.Program, optionally
// validating field accesses against schema first (schema may be nil to skip
// static analysis).
func Compile(src string, schema *Schema) (*bytecode.Program, error) {
	ast, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		if err := Analyse(ast, schema); err != nil {
			return nil, err
		}
	}
	asm := bytecode.NewAssembler()
	if err := lower(asm, ast); err != nil {
		return nil, err
	}
	asm.Halt()
	return asm.IntoBytecode()
}

// CompileCondition compiles a Conditional block's expression the same way
// Compile does, with one historical exception: a top-level `ident == "literal"`
// comparison does not lower to strict equality. It instead lowers to a
// case-insensitive substring match (`ci_substr_match`), inherited unchanged
// from the block dispatcher this replaces — flows written against the old
// semantics still route the same way when transpiled fresh.
func CompileCondition(src string, schema *Schema) (*bytecode.Program, error) {
	ast, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		if err := Analyse(ast, schema); err != nil {
			return nil, err
		}
	}

	asm := bytecode.NewAssembler()
	if b, ok := ast.(Binary); ok && b.Op == TokenEqEq {
		if lit, ok := b.Right.(Literal); ok {
			if s, ok := lit.Value.(string); ok {
				if err := lower(asm, b.Left); err != nil {
					return nil, err
				}
				asm.PushLiteral(s)
				asm.Call("ci_substr_match", 2)
				asm.Halt()
				return asm.IntoBytecode()
			}
		}
	}

	if err := lower(asm, ast); err != nil {
		return nil, err
	}
	asm.Halt()
	return asm.IntoBytecode()
}

// CompileError wraps a failure that occurred while lowering an already-parsed
// AST to bytecode, as opposed to a lexical/syntactic ExpressionParseError.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiler: %s", e.Message)
}

func lower(asm *bytecode.Assembler, n Node) error {
	switch t := n.(type) {
	case Literal:
		asm.PushLiteral(t.Value)
		return nil

	case Ident:
		asm.LoadVar(t.Name)
		return nil

	case FieldAccess:
		if err := lower(asm, t.Target); err != nil {
			return err
		}
		asm.PushLiteral(t.Field)
		asm.LoadIndex()
		return nil

	case IndexAccess:
		if err := lower(asm, t.Target); err != nil {
			return err
		}
		if err := lower(asm, t.Index); err != nil {
			return err
		}
		asm.LoadIndex()
		return nil

	case Unary:
		if err := lower(asm, t.Operand); err != nil {
			return err
		}
		switch t.Op {
		case TokenMinus:
			asm.Neg()
		case TokenBang:
			asm.Not()
		default:
			return &CompileError{Message: fmt.Sprintf("unsupported unary operator %v", t.Op)}
		}
		return nil

	case Binary:
		return lowerBinary(asm, t)

	case Ternary:
		return lowerTernary(asm, t)

	case Call:
		for _, a := range t.Args {
			if err := lower(asm, a); err != nil {
				return err
			}
		}
		asm.Call(t.Name, len(t.Args))
		return nil

	default:
		return &CompileError{Message: fmt.Sprintf("unsupported node type %T", n)}
	}
}

func lowerBinary(asm *bytecode.Assembler, b Binary) error {
	// '&&' and '||' short-circuit; everything else evaluates both sides then
	// applies the opcode. The non-short-circuit form is still correct for the
	// boolean ops (AND/OR in the VM are non-short-circuiting boolean algebra),
	// so only these two get special jump-based lowering.
	switch b.Op {
	case TokenAndAnd:
		if err := lower(asm, b.Left); err != nil {
			return err
		}
		asm, falseLbl := asm.JumpIfFalse()
		if err := lower(asm, b.Right); err != nil {
			return err
		}
		asm, endLbl := asm.Jump()
		asm.Patch(falseLbl)
		asm.PushLiteral(false)
		asm.Patch(endLbl)
		return nil

	case TokenOrOr:
		if err := lower(asm, b.Left); err != nil {
			return err
		}
		asm, falseBranchLbl := asm.JumpIfFalse()
		asm.PushLiteral(true)
		asm, endLbl := asm.Jump()
		asm.Patch(falseBranchLbl)
		if err := lower(asm, b.Right); err != nil {
			return err
		}
		asm.Patch(endLbl)
		return nil
	}

	if err := lower(asm, b.Left); err != nil {
		return err
	}
	if err := lower(asm, b.Right); err != nil {
		return err
	}

	op, err := binaryOpcodeFor(b.Op)
	if err != nil {
		return err
	}
	asm.Binary(op)
	return nil
}

func binaryOpcodeFor(tok TokenKind) (bytecode.OpCode, error) {
	switch tok {
	case TokenPlus:
		return bytecode.OpAdd, nil
	case TokenMinus:
		return bytecode.OpSub, nil
	case TokenStar:
		return bytecode.OpMul, nil
	case TokenSlash:
		return bytecode.OpDiv, nil
	case TokenPercent:
		return bytecode.OpMod, nil
	case TokenEqEq:
		return bytecode.OpEq, nil
	case TokenBangEq:
		return bytecode.OpNotEq, nil
	case TokenLt:
		return bytecode.OpLt, nil
	case TokenLtEq:
		return bytecode.OpLtEq, nil
	case TokenGt:
		return bytecode.OpGt, nil
	case TokenGtEq:
		return bytecode.OpGtEq, nil
	default:
		return 0, &CompileError{Message: fmt.Sprintf("unsupported binary operator %v", tok)}
	}
}

func lowerTernary(asm *bytecode.Assembler, t Ternary) error {
	if err := lower(asm, t.Cond); err != nil {
		return err
	}
	asm, elseLbl := asm.JumpIfFalse()
	if err := lower(asm, t.Then); err != nil {
		return err
	}
	asm, endLbl := asm.Jump()
	asm.Patch(elseLbl)
	if err := lower(asm, t.Else); err != nil {
		return err
	}
	asm.Patch(endLbl)
	return nil
}
