// Package asmkit disassembles x86 machine code.
//
// It is used to tell padding apart from instructions when a run of
// zero bytes shows up inside an executable section: compilers pad
// between functions after a flow terminator such as ret or jmp, while
// a zero run reached in the middle of straight-line code is more likely
// to be operands.
package asmkit

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

const (
	SkipSyntax  DisassemblySyntax = ""
	ATTSyntax   DisassemblySyntax = "att"
	GoSyntax    DisassemblySyntax = "go"
	IntelSyntax DisassemblySyntax = "intel"
)

type DisassemblySyntax string

type DisassemblerConfig struct {
	Syntax     DisassemblySyntax
	ArchConfig interface{}
}

// X86Config configures x86 decoding. Bits must be 16, 32 or 64.
type X86Config struct {
	Bits int
}

func NewDisassembler(config DisassemblerConfig) (*Disassembler, error) {
	switch assertedConfig := config.ArchConfig.(type) {
	case X86Config:
		switch assertedConfig.Bits {
		case 16, 32, 64:
		default:
			return nil, fmt.Errorf("unsupported x86 mode: %d bits", assertedConfig.Bits)
		}

		var disassemblyFn func(inst x86asm.Inst) string
		switch config.Syntax {
		case SkipSyntax:
			// Do nothing.
		case ATTSyntax:
			disassemblyFn = func(inst x86asm.Inst) string {
				return x86asm.GNUSyntax(inst, 0, nil)
			}
		case GoSyntax:
			disassemblyFn = func(inst x86asm.Inst) string {
				return x86asm.GoSyntax(inst, 0, nil)
			}
		case IntelSyntax:
			disassemblyFn = func(inst x86asm.Inst) string {
				return x86asm.IntelSyntax(inst, 0, nil)
			}
		default:
			return nil, fmt.Errorf("unsupported syntax type for x86: %q", config.Syntax)
		}

		return &Disassembler{
			bits:          assertedConfig.Bits,
			disassemblyFn: disassemblyFn,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported config type: %T", assertedConfig)
	}
}

type Disassembler struct {
	bits          int
	disassemblyFn func(inst x86asm.Inst) string
}

// Next decodes the first instruction in rawInstructions.
func (o *Disassembler) Next(rawInstructions []byte) (Inst, error) {
	x86Inst, err := x86asm.Decode(rawInstructions, o.bits)
	if err != nil {
		return Inst{}, err
	}

	var disassembly string
	if o.disassemblyFn != nil {
		disassembly = o.disassemblyFn(x86Inst)
	}

	return Inst{
		Bin:  copySlice(rawInstructions, x86Inst.Len),
		Len:  x86Inst.Len,
		Dis:  disassembly,
		Inst: x86Inst,
	}, nil
}

// All decodes every instruction in rawInstructions, stopping at the
// first instruction that fails to decode.
func (o *Disassembler) All(rawInstructions []byte, onDecodeFn func(Inst) error) error {
	index := 0

	for index < len(rawInstructions) {
		inst, err := o.Next(rawInstructions[index:])
		if err != nil {
			return fmt.Errorf("failed to decode instruction at %d - %w - remaining data: 0x%x",
				index, err, rawInstructions[index:])
		}

		inst.Index = index

		err = onDecodeFn(inst)
		if err != nil {
			return fmt.Errorf("on decode function failed for instruction at %d (%q) - %w",
				index, inst.Dis, err)
		}

		index += inst.Len
	}

	return nil
}

// Sweep is like All, except that bytes which fail to decode are
// skipped one at a time. onDecodeFn is called with ok set to false
// for each skipped byte.
func (o *Disassembler) Sweep(rawInstructions []byte, onDecodeFn func(inst Inst, ok bool)) {
	index := 0

	for index < len(rawInstructions) {
		inst, err := o.Next(rawInstructions[index:])
		if err != nil {
			onDecodeFn(Inst{Index: index, Len: 1, Bin: copySlice(rawInstructions[index:], 1)}, false)
			index++
			continue
		}

		inst.Index = index

		onDecodeFn(inst, true)

		index += inst.Len
	}
}

func copySlice(src []byte, numBytes int) []byte {
	cp := make([]byte, numBytes)

	copy(cp, src[0:numBytes])

	return cp
}

type Inst struct {
	Bin   []byte
	Len   int
	Index int
	Dis   string
	Inst  x86asm.Inst
}

// EndsFlow returns true if execution cannot fall through to the
// next instruction.
func (o Inst) EndsFlow() bool {
	switch o.Inst.Op {
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ,
		x86asm.JMP, x86asm.LJMP, x86asm.UD1, x86asm.UD2, x86asm.HLT,
		x86asm.INT, x86asm.NOP:
		return true
	default:
		return false
	}
}
