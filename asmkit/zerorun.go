package asmkit

import (
	"fmt"
)

// RunKind classifies a run of zero bytes in executable code.
type RunKind int

const (
	RunAmbiguous RunKind = iota
	RunPadding
)

func (o RunKind) String() string {
	switch o {
	case RunPadding:
		return "padding"
	default:
		return "code?"
	}
}

// ZeroRunClassifier decides whether zero runs in a block of code are
// padding. The block is swept once, up front.
type ZeroRunClassifier struct {
	afterTerminator map[int]Inst
}

// NewZeroRunClassifier linearly disassembles code from its first byte.
// config.ArchConfig must be an X86Config.
func NewZeroRunClassifier(code []byte, config DisassemblerConfig) (*ZeroRunClassifier, error) {
	disass, err := NewDisassembler(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create disassembler - %w", err)
	}

	classifier := &ZeroRunClassifier{
		afterTerminator: make(map[int]Inst),
	}

	disass.Sweep(code, func(inst Inst, ok bool) {
		if ok && inst.EndsFlow() {
			classifier.afterTerminator[inst.Index+inst.Len] = inst
		}
	})

	return classifier, nil
}

// Classify reports RunPadding, along with the preceding instruction,
// if the sweep landed exactly on runStart right after an instruction
// that ends control flow.
func (o *ZeroRunClassifier) Classify(runStart int) (RunKind, Inst) {
	inst, ok := o.afterTerminator[runStart]
	if !ok {
		return RunAmbiguous, Inst{}
	}

	return RunPadding, inst
}

// ClassifyZeroRun is a convenience function for classifying a single
// zero run that starts at runStart in code.
func ClassifyZeroRun(code []byte, runStart int, bits int) (RunKind, error) {
	classifier, err := NewZeroRunClassifier(code, DisassemblerConfig{
		ArchConfig: X86Config{Bits: bits},
	})
	if err != nil {
		return RunAmbiguous, err
	}

	kind, _ := classifier.Classify(runStart)

	return kind, nil
}
