package asmkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyZeroRun(t *testing.T) {
	code := []byte{
		0x55,       // push rbp
		0x5d,       // pop rbp
		0xc3,       // ret
		0x00, 0x00, // padding
		0x90, // nop
	}

	kind, err := ClassifyZeroRun(code, 3, 64)
	require.NoError(t, err)
	assert.Equal(t, RunPadding, kind)
}

func TestClassifyZeroRun_InsideInstruction(t *testing.T) {
	code := []byte{
		0x48, 0xc7, 0xc0, 0x00, 0x00, 0x00, 0x00, // mov rax, 0
		0xc3, // ret
	}

	kind, err := ClassifyZeroRun(code, 3, 64)
	require.NoError(t, err)
	assert.Equal(t, RunAmbiguous, kind)
}

func TestClassifyZeroRun_AfterFallthrough(t *testing.T) {
	code := []byte{
		0x31, 0xc0, // xor eax, eax
		0x00, 0x00, // add [rax], al
	}

	kind, err := ClassifyZeroRun(code, 2, 64)
	require.NoError(t, err)
	assert.Equal(t, RunAmbiguous, kind)
}

func TestClassifyZeroRun_BadMode(t *testing.T) {
	_, err := ClassifyZeroRun([]byte{0xc3}, 1, 12)
	assert.Error(t, err)
}

func TestDisassembler_SweepSkipsUndecodable(t *testing.T) {
	disass, err := NewDisassembler(DisassemblerConfig{ArchConfig: X86Config{Bits: 64}})
	require.NoError(t, err)

	var indexes []int
	var skipped int

	// 0xb8 is a truncated "mov eax, imm32".
	disass.Sweep([]byte{0xc3, 0xb8}, func(inst Inst, ok bool) {
		if !ok {
			skipped++
		}

		indexes = append(indexes, inst.Index)
	})

	assert.Equal(t, 1, skipped)
	assert.Equal(t, []int{0, 1}, indexes)
}

func TestRunKind_String(t *testing.T) {
	assert.Equal(t, "padding", RunPadding.String())
	assert.Equal(t, "code?", RunAmbiguous.String())
}
