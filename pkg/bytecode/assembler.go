package bytecode

import "fmt"

// AssemblerError reports a structural problem detected while assembling a
// Program, such as a jump target that was never patched.
type AssemblerError struct {
	Reason string
}

func (e *AssemblerError) Error() string {
	return fmt.Sprintf("bytecode: assembler error: %s", e.Reason)
}

// Label identifies a jump instruction emitted before its target offset is
// known. Callers hold onto the Label returned by Jump/JumpIfFalse and pass it
// to Patch once the target location has been emitted.
type Label struct {
	instructionIndex int
}

// Assembler is a fluent, append-only builder for Program values. It mirrors
// the teacher's chained node/edge construction style: every mutating method
// returns the receiver so calls can be strung together. Construct one with
// NewAssembler; the zero value is not ready to use.
type Assembler struct {
	code      []Instruction
	constants []any
	names     []string
	nameIndex map[string]int
	patched   map[int]bool
}

// NewAssembler returns an empty Assembler ready for instruction emission.
func NewAssembler() *Assembler {
	return &Assembler{
		nameIndex: make(map[string]int),
		patched:   make(map[int]bool),
	}
}

func (a *Assembler) emit(ins Instruction) int {
	a.code = append(a.code, ins)
	return len(a.code) - 1
}

func (a *Assembler) internName(name string) int {
	if idx, ok := a.nameIndex[name]; ok {
		return idx
	}
	idx := len(a.names)
	a.names = append(a.names, name)
	a.nameIndex[name] = idx
	return idx
}

// PushLiteral emits OpPush for the given constant value.
func (a *Assembler) PushLiteral(v any) *Assembler {
	idx := len(a.constants)
	a.constants = append(a.constants, v)
	a.emit(Instruction{Op: OpPush, Operand: idx})
	return a
}

// LoadVar emits OpLoadVar for the named variable.
func (a *Assembler) LoadVar(name string) *Assembler {
	a.emit(Instruction{Op: OpLoadVar, Operand: a.internName(name)})
	return a
}

// LoadIndex emits OpLoadIndex.
func (a *Assembler) LoadIndex() *Assembler {
	a.emit(Instruction{Op: OpLoadIndex})
	return a
}

// Binary emits a binary arithmetic, comparison or logical opcode. op must be
// one of OpAdd..OpOr; passing any other opcode panics, since this method only
// exists to keep call sites terse for the closed set of binary operators.
func (a *Assembler) Binary(op OpCode) *Assembler {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNotEq, OpLt, OpLtEq, OpGt, OpGtEq, OpAnd, OpOr:
		a.emit(Instruction{Op: op})
	default:
		panic(fmt.Sprintf("bytecode: %s is not a binary opcode", op))
	}
	return a
}

// Neg emits OpNeg (unary arithmetic negation).
func (a *Assembler) Neg() *Assembler {
	a.emit(Instruction{Op: OpNeg})
	return a
}

// Not emits OpNot (unary boolean negation).
func (a *Assembler) Not() *Assembler {
	a.emit(Instruction{Op: OpNot})
	return a
}

// Jump emits an unconditional jump with an unresolved target and returns a
// Label to be patched later via Patch.
func (a *Assembler) Jump() (*Assembler, Label) {
	idx := a.emit(Instruction{Op: OpJump, Operand: -1})
	return a, Label{instructionIndex: idx}
}

// JumpIfFalse emits a conditional jump with an unresolved target and returns
// a Label to be patched later via Patch.
func (a *Assembler) JumpIfFalse() (*Assembler, Label) {
	idx := a.emit(Instruction{Op: OpJumpIfFalse, Operand: -1})
	return a, Label{instructionIndex: idx}
}

// Patch resolves lbl's jump target to the instruction index that will be
// emitted next. Call it immediately before emitting the destination code.
func (a *Assembler) Patch(lbl Label) *Assembler {
	a.code[lbl.instructionIndex].Operand = len(a.code)
	a.patched[lbl.instructionIndex] = true
	return a
}

// PatchTo resolves lbl's jump target to an explicit, already-known
// instruction index, for callers that assemble backward jumps (loop heads).
func (a *Assembler) PatchTo(lbl Label, target int) *Assembler {
	a.code[lbl.instructionIndex].Operand = target
	a.patched[lbl.instructionIndex] = true
	return a
}

// Here returns the instruction index that the next emit call will occupy,
// useful for recording loop-head targets before emitting a backward jump.
func (a *Assembler) Here() int { return len(a.code) }

// Call emits a call to a named FFI function with argCount arguments already
// pushed onto the stack in left-to-right order.
func (a *Assembler) Call(name string, argCount int) *Assembler {
	a.emit(Instruction{Op: OpCall, Operand: argCount, Name: name})
	return a
}

// Halt emits the terminal instruction.
func (a *Assembler) Halt() *Assembler {
	a.emit(Instruction{Op: OpHalt})
	return a
}

// IntoBytecode finalises the Assembler into a Program. It fails with an
// AssemblerError if any jump emitted via Jump or JumpIfFalse was never
// patched, since an unresolved jump target is always an assembler bug rather
// than a representable program.
func (a *Assembler) IntoBytecode() (*Program, error) {
	for i, ins := range a.code {
		if (ins.Op == OpJump || ins.Op == OpJumpIfFalse) && !a.patched[i] {
			return nil, &AssemblerError{Reason: fmt.Sprintf("unpatched jump at instruction %d", i)}
		}
	}
	return &Program{
		Code:      append([]Instruction(nil), a.code...),
		Constants: append([]any(nil), a.constants...),
		Names:     append([]string(nil), a.names...),
	}, nil
}
