package patcher

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed-offset header fields. Each writer documents the byte offset
// and width of the field relative to the record it is given.

func checkField(data []byte, offset int, width int) error {
	if offset < 0 || offset+width > len(data) {
		return fmt.Errorf("%d-byte field at offset 0x%x is outside of data (length 0x%x)",
			width, offset, len(data))
	}

	return nil
}

func putUint16(data []byte, offset int, bo binary.ByteOrder, v uint16) error {
	err := checkField(data, offset, 2)
	if err != nil {
		return err
	}

	bo.PutUint16(data[offset:], v)

	return nil
}

func putUint32(data []byte, offset int, bo binary.ByteOrder, v uint32) error {
	err := checkField(data, offset, 4)
	if err != nil {
		return err
	}

	bo.PutUint32(data[offset:], v)

	return nil
}

func putUint64(data []byte, offset int, bo binary.ByteOrder, v uint64) error {
	err := checkField(data, offset, 8)
	if err != nil {
		return err
	}

	bo.PutUint64(data[offset:], v)

	return nil
}

// putUint32Checked is putUint32 for values computed as uint64.
func putUint32Checked(data []byte, offset int, bo binary.ByteOrder, v uint64) error {
	if v > math.MaxUint32 {
		return ErrStringTooLong
	}

	return putUint32(data, offset, bo, uint32(v))
}

func getUint16(data []byte, offset int, bo binary.ByteOrder) (uint16, error) {
	err := checkField(data, offset, 2)
	if err != nil {
		return 0, err
	}

	return bo.Uint16(data[offset:]), nil
}

func getUint32(data []byte, offset int, bo binary.ByteOrder) (uint32, error) {
	err := checkField(data, offset, 4)
	if err != nil {
		return 0, err
	}

	return bo.Uint32(data[offset:]), nil
}

func getUint64(data []byte, offset int, bo binary.ByteOrder) (uint64, error) {
	err := checkField(data, offset, 8)
	if err != nil {
		return 0, err
	}

	return bo.Uint64(data[offset:]), nil
}

// PE. All fields are little endian.

const (
	peLfanewOffset        = 0x3c
	peSignatureSize       = 4
	peFileHeaderSize      = 20
	peSectionHeaderSize   = 40
	peNumSectionsOffset   = peSignatureSize + 2
	peOptionalHeaderStart = peSignatureSize + peFileHeaderSize
)

// readPELfanew returns e_lfanew: u32 at 0x3c of the DOS header.
func readPELfanew(data []byte) (int, error) {
	v, err := getUint32(data, peLfanewOffset, binary.LittleEndian)
	if err != nil {
		return 0, err
	}

	return int(v), nil
}

// peSectionTableOffset returns the file offset of the first section
// header: e_lfanew + signature + COFF header + optional header.
func peSectionTableOffset(lfanew int, sizeOfOptionalHeader uint16) int {
	return lfanew + peOptionalHeaderStart + int(sizeOfOptionalHeader)
}

// writePENumberOfSections writes NumberOfSections: u16 at e_lfanew+6.
func writePENumberOfSections(data []byte, lfanew int, v uint16) error {
	return putUint16(data, lfanew+peNumSectionsOffset, binary.LittleEndian, v)
}

// writePESizeOfImage writes SizeOfImage: u32 at +56 of the optional
// header, which is the same for PE32 and PE32+.
func writePESizeOfImage(data []byte, lfanew int, v uint64) error {
	return putUint32Checked(data, lfanew+peOptionalHeaderStart+56, binary.LittleEndian, v)
}

// writePESectionVirtualSize writes VirtualSize: u32 at +8 of a
// section header.
func writePESectionVirtualSize(data []byte, header int, v uint64) error {
	return putUint32Checked(data, header+8, binary.LittleEndian, v)
}

// writePESectionRawSize writes SizeOfRawData: u32 at +16 of a
// section header.
func writePESectionRawSize(data []byte, header int, v uint64) error {
	return putUint32Checked(data, header+16, binary.LittleEndian, v)
}

// writePECertificateTableOffset writes the certificate table's file
// offset: u32 at +0 of data directory entry 4. Unlike the other data
// directories, this entry holds a file offset rather than an RVA.
func writePECertificateTableOffset(data []byte, entry int, v uint64) error {
	return putUint32Checked(data, entry, binary.LittleEndian, v)
}

// ELF. The byte order comes from e_ident[EI_DATA].

// elfHeaderLayout holds ELF header field offsets for one class.
type elfHeaderLayout struct {
	is64 bool

	phoff     int // e_phoff
	shoff     int // e_shoff
	ehsize    int // e_ehsize, u16
	phentsize int // e_phentsize, u16
	shentsize int // e_shentsize, u16

	progOffset int // p_offset within a program header
	progFilesz int // p_filesz within a program header
	progMemsz  int // p_memsz within a program header

	sectOffset int // sh_offset within a section header
}

var (
	elf64Layout = elfHeaderLayout{
		is64:       true,
		phoff:      0x20,
		shoff:      0x28,
		ehsize:     0x34,
		phentsize:  0x36,
		shentsize:  0x3a,
		progOffset: 8,
		progFilesz: 32,
		progMemsz:  40,
		sectOffset: 0x18,
	}

	elf32Layout = elfHeaderLayout{
		phoff:      0x1c,
		shoff:      0x20,
		ehsize:     0x28,
		phentsize:  0x2a,
		shentsize:  0x2e,
		progOffset: 4,
		progFilesz: 16,
		progMemsz:  20,
		sectOffset: 0x10,
	}
)

// readWord reads an address-sized field: u64 for ELF64, u32 for ELF32.
func (o elfHeaderLayout) readWord(data []byte, offset int, bo binary.ByteOrder) (uint64, error) {
	if o.is64 {
		return getUint64(data, offset, bo)
	}

	v, err := getUint32(data, offset, bo)

	return uint64(v), err
}

// writeWord writes an address-sized field. ELF32 values that do not
// fit in 32 bits result in ErrStringTooLong.
func (o elfHeaderLayout) writeWord(data []byte, offset int, bo binary.ByteOrder, v uint64) error {
	if o.is64 {
		return putUint64(data, offset, bo, v)
	}

	return putUint32Checked(data, offset, bo, v)
}

// writeELFProgramFilesz writes p_filesz: u64 at +32 (ELF64) or
// u32 at +16 (ELF32) of a program header.
func writeELFProgramFilesz(data []byte, layout elfHeaderLayout, entry int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, entry+layout.progFilesz, bo, v)
}

// writeELFProgramMemsz writes p_memsz: u64 at +40 (ELF64) or
// u32 at +20 (ELF32) of a program header.
func writeELFProgramMemsz(data []byte, layout elfHeaderLayout, entry int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, entry+layout.progMemsz, bo, v)
}

// writeELFProgramOffset writes p_offset: u64 at +8 (ELF64) or
// u32 at +4 (ELF32) of a program header.
func writeELFProgramOffset(data []byte, layout elfHeaderLayout, entry int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, entry+layout.progOffset, bo, v)
}

// writeELFSectionOffset writes sh_offset: u64 at +0x18 (ELF64) or
// u32 at +0x10 (ELF32) of a section header.
func writeELFSectionOffset(data []byte, layout elfHeaderLayout, entry int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, entry+layout.sectOffset, bo, v)
}

// writeELFShoff writes e_shoff: u64 at 0x28 (ELF64) or u32 at 0x20
// (ELF32) of the ELF header.
func writeELFShoff(data []byte, layout elfHeaderLayout, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, layout.shoff, bo, v)
}

// writeELFPhoff writes e_phoff: u64 at 0x20 (ELF64) or u32 at 0x1c
// (ELF32) of the ELF header.
func writeELFPhoff(data []byte, layout elfHeaderLayout, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, layout.phoff, bo, v)
}

// Mach-O. The byte order comes from the magic number.

const (
	machoHeaderSize32     = 28
	machoHeaderSize64     = 32
	machoNcmdsOffset      = 16
	machoSizeofcmdsOffset = 20

	machoLoadCmdSegment   = 0x1
	machoLoadCmdSegment64 = 0x19

	machoSegment32Size = 56
	machoSegment64Size = 72
	machoSection32Size = 68
	machoSection64Size = 80
)

// machoLayout holds segment and section field offsets for one
// bit width.
type machoLayout struct {
	is64       bool
	headerSize int

	segmentSize  int
	segVmaddr    int // vmaddr within segment_command(_64)
	segVmsize    int // vmsize within segment_command(_64)
	segFileoff   int // fileoff within segment_command(_64)
	segFilesize  int // filesize within segment_command(_64)
	segNsects    int // nsects within segment_command(_64), u32
	sectionSize  int
	sectOffset   int // offset within section(_64), u32
	sectReloff   int // reloff within section(_64), u32
	segmentCmdID uint32
}

var (
	macho64Layout = machoLayout{
		is64:         true,
		headerSize:   machoHeaderSize64,
		segmentSize:  machoSegment64Size,
		segVmaddr:    24,
		segVmsize:    32,
		segFileoff:   40,
		segFilesize:  48,
		segNsects:    64,
		sectionSize:  machoSection64Size,
		sectOffset:   48,
		sectReloff:   56,
		segmentCmdID: machoLoadCmdSegment64,
	}

	macho32Layout = machoLayout{
		headerSize:   machoHeaderSize32,
		segmentSize:  machoSegment32Size,
		segVmaddr:    24,
		segVmsize:    28,
		segFileoff:   32,
		segFilesize:  36,
		segNsects:    48,
		sectionSize:  machoSection32Size,
		sectOffset:   40,
		sectReloff:   48,
		segmentCmdID: machoLoadCmdSegment,
	}
)

func (o machoLayout) readWord(data []byte, offset int, bo binary.ByteOrder) (uint64, error) {
	if o.is64 {
		return getUint64(data, offset, bo)
	}

	v, err := getUint32(data, offset, bo)

	return uint64(v), err
}

func (o machoLayout) writeWord(data []byte, offset int, bo binary.ByteOrder, v uint64) error {
	if o.is64 {
		return putUint64(data, offset, bo, v)
	}

	return putUint32Checked(data, offset, bo, v)
}

// writeMachOSegmentFilesize writes filesize: u64 at +48
// (segment_command_64) or u32 at +36 (segment_command).
func writeMachOSegmentFilesize(data []byte, layout machoLayout, cmd int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, cmd+layout.segFilesize, bo, v)
}

// writeMachOSegmentVmsize writes vmsize: u64 at +32
// (segment_command_64) or u32 at +28 (segment_command).
func writeMachOSegmentVmsize(data []byte, layout machoLayout, cmd int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, cmd+layout.segVmsize, bo, v)
}

// writeMachOSegmentFileoff writes fileoff: u64 at +40
// (segment_command_64) or u32 at +32 (segment_command).
func writeMachOSegmentFileoff(data []byte, layout machoLayout, cmd int, bo binary.ByteOrder, v uint64) error {
	return layout.writeWord(data, cmd+layout.segFileoff, bo, v)
}

// writeMachOSectionOffset writes offset: u32 at +48 (section_64)
// or +40 (section).
func writeMachOSectionOffset(data []byte, layout machoLayout, sect int, bo binary.ByteOrder, v uint64) error {
	return putUint32Checked(data, sect+layout.sectOffset, bo, v)
}

// writeMachOSectionReloff writes reloff: u32 at +56 (section_64)
// or +48 (section).
func writeMachOSectionReloff(data []byte, layout machoLayout, sect int, bo binary.ByteOrder, v uint64) error {
	return putUint32Checked(data, sect+layout.sectReloff, bo, v)
}

const (
	machoLoadCmdSymtab                 = 0x2
	machoLoadCmdDysymtab               = 0xb
	machoLoadCmdTwolevelHints          = 0x16
	machoLoadCmdCodeSignature          = 0x1d
	machoLoadCmdSegmentSplitInfo       = 0x1e
	machoLoadCmdEncryptionInfo         = 0x21
	machoLoadCmdDyldInfo               = 0x22
	machoLoadCmdDyldInfoOnly           = 0x80000022
	machoLoadCmdFunctionStarts         = 0x26
	machoLoadCmdDataInCode             = 0x29
	machoLoadCmdDylibCodeSignDrs       = 0x2b
	machoLoadCmdEncryptionInfo64       = 0x2c
	machoLoadCmdLinkerOptimizationHint = 0x2e
	machoLoadCmdNote                   = 0x31
	machoLoadCmdDyldExportsTrie        = 0x80000033
	machoLoadCmdDyldChainedFixups      = 0x80000034
	machoLoadCmdFilesetEntry           = 0x80000035
	machoLoadCmdAtomInfo               = 0x36
)

// machoOffsetField is a file offset stored in a load command, relative
// to the start of the command.
type machoOffsetField struct {
	offset int
	is64   bool
}

func machoOffsets32(offsets ...int) []machoOffsetField {
	fields := make([]machoOffsetField, len(offsets))
	for i, offset := range offsets {
		fields[i] = machoOffsetField{offset: offset}
	}

	return fields
}

// linkedit_data_command: dataoff u32 at +8.
var machoLinkeditData = machoOffsets32(8)

// machoFileOffsetFields lists the file offsets held by non-segment
// load commands.
var machoFileOffsetFields = map[uint32][]machoOffsetField{
	// symoff, stroff
	machoLoadCmdSymtab: machoOffsets32(8, 16),
	// tocoff, modtaboff, extrefsymoff, indirectsymoff, extreloff, locreloff
	machoLoadCmdDysymtab: machoOffsets32(32, 40, 48, 56, 64, 72),
	// offset
	machoLoadCmdTwolevelHints: machoOffsets32(8),
	// cryptoff
	machoLoadCmdEncryptionInfo:   machoOffsets32(8),
	machoLoadCmdEncryptionInfo64: machoOffsets32(8),
	// rebase_off, bind_off, weak_bind_off, lazy_bind_off, export_off
	machoLoadCmdDyldInfo:     machoOffsets32(8, 16, 24, 32, 40),
	machoLoadCmdDyldInfoOnly: machoOffsets32(8, 16, 24, 32, 40),
	// offset: u64 at +24
	machoLoadCmdNote: {{offset: 24, is64: true}},
	// fileoff: u64 at +16
	machoLoadCmdFilesetEntry: {{offset: 16, is64: true}},

	machoLoadCmdCodeSignature:          machoLinkeditData,
	machoLoadCmdSegmentSplitInfo:       machoLinkeditData,
	machoLoadCmdFunctionStarts:         machoLinkeditData,
	machoLoadCmdDataInCode:             machoLinkeditData,
	machoLoadCmdDylibCodeSignDrs:       machoLinkeditData,
	machoLoadCmdLinkerOptimizationHint: machoLinkeditData,
	machoLoadCmdAtomInfo:               machoLinkeditData,
	machoLoadCmdDyldExportsTrie:        machoLinkeditData,
	machoLoadCmdDyldChainedFixups:      machoLinkeditData,
}

// shiftMachOFileOffset adds grow to the file offset at the given
// position if it is nonzero and not before from.
func shiftMachOFileOffset(data []byte, at int, field machoOffsetField, bo binary.ByteOrder, from uint64, grow uint64) error {
	var v uint64
	var err error

	if field.is64 {
		v, err = getUint64(data, at, bo)
	} else {
		var v32 uint32
		v32, err = getUint32(data, at, bo)
		v = uint64(v32)
	}
	if err != nil {
		return err
	}

	if v == 0 || v < from {
		return nil
	}

	if field.is64 {
		return putUint64(data, at, bo, v+grow)
	}

	return putUint32Checked(data, at, bo, v+grow)
}
