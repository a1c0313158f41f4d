package patcher

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Binject/debug/elf"
	"github.com/Binject/debug/pe"
	"github.com/blacktop/go-macho"
)

// Format is a binary container format and bit width.
type Format int

const (
	FormatUnknown Format = iota
	FormatPE32
	FormatPE64
	FormatELF32
	FormatELF64
	FormatMachO32
	FormatMachO64
	FormatMachOFat
)

var formatTags = []string{
	FormatUnknown:  "Unknown",
	FormatPE32:     "PE32",
	FormatPE64:     "PE64",
	FormatELF32:    "ELF32",
	FormatELF64:    "ELF64",
	FormatMachO32:  "MachO32",
	FormatMachO64:  "MachO64",
	FormatMachOFat: "MachOFat",
}

var formatNames = []string{
	FormatUnknown:  "Unknown",
	FormatPE32:     "PE 32-bit",
	FormatPE64:     "PE 64-bit",
	FormatELF32:    "ELF 32-bit",
	FormatELF64:    "ELF 64-bit",
	FormatMachO32:  "Mach-O 32-bit",
	FormatMachO64:  "Mach-O 64-bit",
	FormatMachOFat: "Mach-O Universal (fat)",
}

func (o Format) valid() bool {
	return o >= 0 && int(o) < len(formatTags)
}

// String returns a human readable name, such as "Mach-O 64-bit".
func (o Format) String() string {
	if !o.valid() {
		return fmt.Sprintf("Format(%d)", int(o))
	}

	return formatNames[o]
}

// Tag returns the stable short name, such as "MachO64".
func (o Format) Tag() string {
	if !o.valid() {
		return formatTags[FormatUnknown]
	}

	return formatTags[o]
}

// MarshalText encodes the format as its Tag.
func (o Format) MarshalText() ([]byte, error) {
	if !o.valid() {
		return nil, fmt.Errorf("unknown format value: %d", int(o))
	}

	return []byte(o.Tag()), nil
}

// UnmarshalText decodes a Tag.
func (o *Format) UnmarshalText(text []byte) error {
	for i, tag := range formatTags {
		if tag == string(text) {
			*o = Format(i)
			return nil
		}
	}

	return fmt.Errorf("unknown format tag: %q", text)
}

// Is64Bit returns true for the 64-bit variants.
func (o Format) Is64Bit() bool {
	return o == FormatPE64 || o == FormatELF64 || o == FormatMachO64
}

type family int

const (
	familyNone family = iota
	familyPE
	familyELF
	familyMachO
)

func (o Format) family() family {
	switch o {
	case FormatPE32, FormatPE64:
		return familyPE
	case FormatELF32, FormatELF64:
		return familyELF
	case FormatMachO32, FormatMachO64:
		return familyMachO
	default:
		return familyNone
	}
}

const (
	machoMagic32   = 0xfeedface
	machoMagic64   = 0xfeedfacf
	machoCigam32   = 0xcefaedfe
	machoCigam64   = 0xcffaedfe
	machoFatMagic  = 0xcafebabe
	machoFat64     = 0xcafebabf
	maxFatArchs    = 20
	minMagicLength = 4

	peMachineI386  = 0x14c
	peMachineAMD64 = 0x8664
	peMachineARM64 = 0xaa64
)

// parsed is the structured view of an input. Exactly one of the
// file fields is set for the thin formats.
type parsed struct {
	format Format
	pe     *pe.File
	elf    *elf.File
	macho  *macho.File
}

// Detect classifies data. A recognized magic number whose headers fail
// to parse results in a *ParseError. Anything else that is not PE, ELF
// or Mach-O, including Java class files and ar archives, is
// FormatUnknown.
func Detect(data []byte) (Format, error) {
	p, err := parse(data)
	if err != nil {
		return FormatUnknown, err
	}

	return p.format, nil
}

func parse(data []byte) (*parsed, error) {
	if len(data) < minMagicLength {
		return &parsed{format: FormatUnknown}, nil
	}

	r := bytes.NewReader(data)

	switch {
	case data[0] == 'M' && data[1] == 'Z':
		f, err := pe.NewFile(r)
		if err != nil {
			return nil, &ParseError{Format: "PE", Err: err}
		}

		format := FormatPE32
		switch f.OptionalHeader.(type) {
		case *pe.OptionalHeader64:
			format = FormatPE64
		case *pe.OptionalHeader32:
		default:
			if f.FileHeader.Machine == peMachineAMD64 || f.FileHeader.Machine == peMachineARM64 {
				format = FormatPE64
			}
		}

		return &parsed{format: format, pe: f}, nil
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		f, err := elf.NewFile(r)
		if err != nil {
			return nil, &ParseError{Format: "ELF", Err: err}
		}

		format := FormatELF32
		if f.Class == elf.ELFCLASS64 {
			format = FormatELF64
		}

		return &parsed{format: format, elf: f}, nil
	}

	switch binary.LittleEndian.Uint32(data) {
	case machoMagic32, machoMagic64, machoCigam32, machoCigam64:
		f, err := macho.NewFile(r)
		if err != nil {
			return nil, &ParseError{Format: "Mach-O", Err: err}
		}

		format := FormatMachO32
		if isMachO64(data) {
			format = FormatMachO64
		}

		return &parsed{format: format, macho: f}, nil
	}

	switch binary.BigEndian.Uint32(data) {
	case machoFatMagic, machoFat64:
		// Java class files share the fat magic. Their next field is
		// a class file version, which is far larger than any real
		// architecture count.
		if len(data) < 8 || binary.BigEndian.Uint32(data[4:]) >= maxFatArchs {
			return &parsed{format: FormatUnknown}, nil
		}

		_, err := macho.NewFatFile(r)
		if err != nil {
			return nil, &ParseError{Format: "Mach-O universal", Err: err}
		}

		return &parsed{format: FormatMachOFat}, nil
	}

	return &parsed{format: FormatUnknown}, nil
}

func isMachO64(data []byte) bool {
	magic := binary.LittleEndian.Uint32(data)

	return magic == machoMagic64 || magic == machoCigam64
}
