package asmkit_test

import (
	"encoding/hex"
	"fmt"
	"log"

	"gitlab.com/stephen-fox/bredcrumb/asmkit"
)

func ExampleDisassembler() {
	// exit(1) syscall shellcode by Charles Stevenson:
	// http://shell-storm.org/shellcode/files/shellcode-55.php
	insts, err := hex.DecodeString("31c04089c3cd80")
	if err != nil {
		log.Fatalln(err)
	}

	disass, err := asmkit.NewDisassembler(asmkit.DisassemblerConfig{
		Syntax:     asmkit.IntelSyntax,
		ArchConfig: asmkit.X86Config{Bits: 32},
	})
	if err != nil {
		log.Fatalf("failed to create disassembler - %v", err)
	}

	err = disass.All(insts, func(inst asmkit.Inst) error {
		fmt.Println(inst.Dis)
		return nil
	})
	if err != nil {
		log.Fatalf("disassembler failed - %v", err)
	}

	// Output:
	// xor eax, eax
	// inc eax
	// mov ebx, eax
	// int 0x80
}

func ExampleZeroRunClassifier() {
	code := []byte{
		0x31, 0xc0, // xor eax, eax
		0xc3, // ret
		0x00, 0x00, 0x00, 0x00, // padding
		0xb8, 0x00, 0x00, 0x00, 0x00, // mov eax, 0
		0xc3, // ret
	}

	classifier, err := asmkit.NewZeroRunClassifier(code, asmkit.DisassemblerConfig{
		Syntax:     asmkit.IntelSyntax,
		ArchConfig: asmkit.X86Config{Bits: 64},
	})
	if err != nil {
		log.Fatalln(err)
	}

	for _, runStart := range []int{3, 8} {
		kind, after := classifier.Classify(runStart)
		if kind == asmkit.RunPadding {
			fmt.Printf("%d: %s after %s\n", runStart, kind, after.Dis)
		} else {
			fmt.Printf("%d: %s\n", runStart, kind)
		}
	}

	// Output:
	// 3: padding after ret
	// 8: code?
}
