package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembler_SimpleArithmetic(t *testing.T) {
	asm := NewAssembler()
	asm.PushLiteral(int64(2)).PushLiteral(int64(3)).Binary(OpAdd).Halt()

	prog, err := asm.IntoBytecode()
	require.NoError(t, err)
	require.Equal(t, 4, prog.Len())
	assert.Equal(t, OpPush, prog.Code[0].Op)
	assert.Equal(t, OpHalt, prog.Code[3].Op)
	assert.Equal(t, []any{int64(2), int64(3)}, prog.Constants)
}

func TestAssembler_JumpMustBePatched(t *testing.T) {
	asm := NewAssembler()
	asm.PushLiteral(true)
	asm, _ = asm.JumpIfFalse()
	asm.Halt()

	_, err := asm.IntoBytecode()
	require.Error(t, err)
	var asmErr *AssemblerError
	require.ErrorAs(t, err, &asmErr)
}

func TestAssembler_IfElsePatchesBothBranches(t *testing.T) {
	asm := NewAssembler()
	asm.LoadVar("x")
	asm, elseLbl := asm.JumpIfFalse()
	asm.PushLiteral("then")
	asm, endLbl := asm.Jump()
	asm.Patch(elseLbl)
	asm.PushLiteral("else")
	asm.Patch(endLbl)
	asm.Halt()

	prog, err := asm.IntoBytecode()
	require.NoError(t, err)
	assert.Equal(t, "x", prog.Names[0])
	assert.Equal(t, 4, prog.Code[1].Operand) // jump-if-false lands on "else" push
	assert.Equal(t, 5, prog.Code[3].Operand) // unconditional jump lands on halt
}

func TestAssembler_BackwardJumpForLoop(t *testing.T) {
	asm := NewAssembler()
	loopHead := asm.Here()
	asm.LoadVar("i")
	asm, exitLbl := asm.JumpIfFalse()
	asm, backLbl := asm.Jump()
	asm.PatchTo(backLbl, loopHead)
	asm.Patch(exitLbl)
	asm.Halt()

	prog, err := asm.IntoBytecode()
	require.NoError(t, err)
	assert.Equal(t, loopHead, prog.Code[2].Operand)
}

func TestAssembler_CallEmitsNameAndArgCount(t *testing.T) {
	asm := NewAssembler()
	asm.PushLiteral(int64(1)).PushLiteral(int64(2)).Call("max", 2).Halt()

	prog, err := asm.IntoBytecode()
	require.NoError(t, err)
	call := prog.Code[2]
	assert.Equal(t, OpCall, call.Op)
	assert.Equal(t, "max", call.Name)
	assert.Equal(t, 2, call.Operand)
	assert.Equal(t, uint64(8), call.Op.GasCost())
}

func TestAssembler_BinaryPanicsOnNonBinaryOpcode(t *testing.T) {
	asm := NewAssembler()
	assert.Panics(t, func() {
		asm.Binary(OpJump)
	})
}
