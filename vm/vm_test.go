package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAssemble(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Assemble(src)
	require.NoError(t, err)
	return prog
}

func TestScenarioAddWithinRange(t *testing.T) {
	prog := mustAssemble(t, `
		.org 0x0200
		start: LDI R0,7
		       ADDI R0,3
		       HLT
	`)
	v := New(prog)
	require.NoError(t, v.RunToCompletion())

	assert.EqualValues(t, 10, v.Regs[R0])
	assert.EqualValues(t, prog.Entry+7, v.PC) // 3 (LDI) + 3 (ADDI) + 1 (HLT)
	assert.False(t, v.running)
}

func TestScenarioAddWrapsModulo256(t *testing.T) {
	prog := mustAssemble(t, `
		.org 0x0200
		start: LDI R0,250
		       ADDI R0,10
		       HLT
	`)
	v := New(prog)
	require.NoError(t, v.RunToCompletion())

	assert.EqualValues(t, 4, v.Regs[R0])
}

func TestScenarioCompareAndJumpZero(t *testing.T) {
	prog := mustAssemble(t, `
		.org 0x0200
		start: LDI R0,5
		       CMPI R0,5
		       JZ end
		       LDI R0,1
		end:   HLT
	`)
	v := New(prog)
	require.NoError(t, v.RunToCompletion())

	assert.EqualValues(t, 5, v.Regs[R0])
	assert.True(t, v.Z)
}

func TestSubWrapsModulo256NoBorrowFlag(t *testing.T) {
	prog := mustAssemble(t, `
		.org 0x0200
		start: LDI R0,0
		       SUBI R0,1
		       HLT
	`)
	v := New(prog)
	require.NoError(t, v.RunToCompletion())

	assert.EqualValues(t, 255, v.Regs[R0])
	assert.False(t, v.Z, "SUB/SUBI must never touch the Z flag")
}

func TestIllegalInstructionIsFatalWithPCAndOpcode(t *testing.T) {
	prog := &Program{Origin: CodeBase, Blob: []byte{0xEE}, Entry: CodeBase}
	v := New(prog)
	err := v.RunToCompletion()

	require.Error(t, err)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, CodeBase, fault.PC)
	assert.EqualValues(t, 0xEE, fault.Opcode)
}

func TestEveryRegisterByteStaysInRange(t *testing.T) {
	prog := mustAssemble(t, `
		.org 0x0200
		start: LDI R0,255
		       ADDI R0,255
		       SUBI R0,255
		       HLT
	`)
	v := New(prog)
	require.NoError(t, v.RunToCompletion())

	for _, r := range v.Regs {
		assert.GreaterOrEqual(t, int(r), 0)
		assert.Less(t, int(r), 256)
	}
}
