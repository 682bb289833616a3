package bytecode

import "fmt"

// Program is a fully assembled, immutable instruction stream ready to be
// loaded by the interpreter. It is produced exclusively by Assembler.IntoBytecode;
// callers never construct one by hand.
type Program struct {
	Code      []Instruction
	Constants []any
	Names     []string
}

// Disassemble renders the program as a human-readable listing, one
// instruction per line, primarily useful in tests and debug logging.
func (p *Program) Disassemble() string {
	out := ""
	for i, ins := range p.Code {
		switch ins.Op {
		case OpPush:
			out += fmt.Sprintf("%04d %-14s %v\n", i, ins.Op, p.Constants[ins.Operand])
		case OpLoadVar:
			out += fmt.Sprintf("%04d %-14s %s\n", i, ins.Op, p.Names[ins.Operand])
		case OpJump, OpJumpIfFalse:
			out += fmt.Sprintf("%04d %-14s -> %04d\n", i, ins.Op, ins.Operand)
		case OpCall:
			out += fmt.Sprintf("%04d %-14s %s/%d\n", i, ins.Op, ins.Name, ins.Operand)
		default:
			out += fmt.Sprintf("%04d %-14s\n", i, ins.Op)
		}
	}
	return out
}

// Len returns the number of instructions in the program.
func (p *Program) Len() int { return len(p.Code) }
