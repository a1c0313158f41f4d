package patcher

import (
	"encoding/binary"
	"fmt"

	"github.com/Binject/debug/elf"
	"github.com/go-kit/log/level"
	"gitlab.com/stephen-fox/bredcrumb/iokit"
)

const elfGrowthAlignment = 16

// Cave candidates are matched by exact name, in priority order.
var elfCaveSections = []string{".rodata", ".data", ".note.gnu.build-id"}

type elfImage struct {
	f      *elf.File
	layout elfHeaderLayout
	bo     binary.ByteOrder

	ehsize    int
	phoff     uint64
	phentsize int
	shoff     uint64
	shentsize int
}

func newELFImage(data []byte, f *elf.File) (*elfImage, error) {
	img := &elfImage{
		f:      f,
		layout: elf32Layout,
		bo:     f.ByteOrder,
	}

	if f.Class == elf.ELFCLASS64 {
		img.layout = elf64Layout
	}

	var err error

	img.phoff, err = img.layout.readWord(data, img.layout.phoff, img.bo)
	if err != nil {
		return nil, &ParseError{Format: "ELF", Err: fmt.Errorf("failed to read e_phoff - %w", err)}
	}

	img.shoff, err = img.layout.readWord(data, img.layout.shoff, img.bo)
	if err != nil {
		return nil, &ParseError{Format: "ELF", Err: fmt.Errorf("failed to read e_shoff - %w", err)}
	}

	for _, field := range []struct {
		offset int
		dst    *int
	}{
		{offset: img.layout.ehsize, dst: &img.ehsize},
		{offset: img.layout.phentsize, dst: &img.phentsize},
		{offset: img.layout.shentsize, dst: &img.shentsize},
	} {
		v, err := getUint16(data, field.offset, img.bo)
		if err != nil {
			return nil, &ParseError{Format: "ELF", Err: err}
		}

		*field.dst = int(v)
	}

	return img, nil
}

func patchELF(f *elf.File, in patchInput, strategy Strategy) ([]byte, Result, error) {
	img, err := newELFImage(in.data, f)
	if err != nil {
		return nil, Result{}, err
	}

	switch strategy {
	case StrategyCave:
		return img.cave(in)
	case StrategySection:
		return img.section(in)
	case StrategyExtend:
		return img.extend(in)
	default:
		return nil, Result{}, fmt.Errorf("unsupported strategy for ELF: %s", strategy)
	}
}

// headerRegions returns the ELF header, program header table and
// section header table as file ranges.
func (o *elfImage) headerRegions() []region {
	return []region{
		{name: "ELF header", offset: 0, size: o.ehsize},
		{name: "program headers", offset: int(o.phoff), size: len(o.f.Progs) * o.phentsize},
		{name: "section headers", offset: int(o.shoff), size: len(o.f.Sections) * o.shentsize},
	}
}

func (o *elfImage) cave(in patchInput) ([]byte, Result, error) {
	var candidates []region

	for _, name := range elfCaveSections {
		for _, s := range o.f.Sections {
			if s.Name != name || s.Type == elf.SHT_NOBITS {
				continue
			}

			candidates = append(candidates, region{
				name:   s.Name,
				offset: int(s.Offset),
				size:   int(s.Size),
			})
		}
	}

	return patchCave(in, candidates, complement(len(in.data), o.headerRegions()), o.locate)
}

func (o *elfImage) locate(offset int) location {
	var loc location

	off := uint64(offset)

	for _, s := range o.f.Sections {
		if s.Type == elf.SHT_NOBITS || s.Type == elf.SHT_NULL || off < s.Offset || off >= s.Offset+s.Size {
			continue
		}

		loc.name = s.Name

		if s.Addr > 0 {
			loc.mapped = true
			loc.va = s.Addr + (off - s.Offset)
			return loc
		}

		break
	}

	for _, p := range o.f.Progs {
		if p.Type != elf.PT_LOAD || off < p.Off || off >= p.Off+p.Filesz {
			continue
		}

		loc.mapped = true
		loc.va = p.Vaddr + (off - p.Off)

		return loc
	}

	return loc
}

// lastLoad returns the index of the last PT_LOAD program header.
func (o *elfImage) lastLoad() (int, bool) {
	for i := len(o.f.Progs) - 1; i >= 0; i-- {
		if o.f.Progs[i].Type == elf.PT_LOAD {
			return i, true
		}
	}

	return 0, false
}

func (o *elfImage) progEntry(i int) int {
	return int(o.phoff) + i*o.phentsize
}

func (o *elfImage) sectionEntry(i int) int {
	return int(o.shoff) + i*o.shentsize
}

// section grows the last PT_LOAD segment's file and memory sizes and
// inserts the string right after its file content. File offsets that
// follow the insertion point are moved so the image stays parseable.
//
// If the segment has zero-fill (p_memsz > p_filesz, e.g. .bss), the
// string is loaded over the start of that area, which the program
// expects to be zero. This is part of the strategy's best-effort
// limitation.
func (o *elfImage) section(in patchInput) ([]byte, Result, error) {
	idx, ok := o.lastLoad()
	if !ok {
		return nil, Result{}, patchFailed("ELF has no PT_LOAD segment")
	}

	load := o.f.Progs[idx]
	writeOffset := load.Off + load.Filesz

	if writeOffset > uint64(len(in.data)) {
		return nil, Result{}, patchFailed("last PT_LOAD segment ends at 0x%x, past the end of the file (0x%x)",
			writeOffset, len(in.data))
	}

	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		AlignTo(elfGrowthAlignment).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	grow := uint64(len(payload))

	// Headers are rewritten before the insertion. Any header that
	// sits after the insertion point moves with the inserted bytes.
	entry := o.progEntry(idx)

	err = writeELFProgramFilesz(in.data, o.layout, entry, o.bo, load.Filesz+grow)
	if err != nil {
		return nil, Result{}, err
	}

	err = writeELFProgramMemsz(in.data, o.layout, entry, o.bo, load.Memsz+grow)
	if err != nil {
		return nil, Result{}, err
	}

	for i, p := range o.f.Progs {
		if i == idx || p.Off < writeOffset {
			continue
		}

		err = writeELFProgramOffset(in.data, o.layout, o.progEntry(i), o.bo, p.Off+grow)
		if err != nil {
			return nil, Result{}, err
		}
	}

	for i, s := range o.f.Sections {
		if s.Type == elf.SHT_NULL || s.Offset < writeOffset {
			continue
		}

		err = writeELFSectionOffset(in.data, o.layout, o.sectionEntry(i), o.bo, s.Offset+grow)
		if err != nil {
			return nil, Result{}, err
		}
	}

	if o.shoff >= writeOffset {
		err = writeELFShoff(in.data, o.layout, o.bo, o.shoff+grow)
		if err != nil {
			return nil, Result{}, err
		}
	}

	if o.phoff >= writeOffset {
		err = writeELFPhoff(in.data, o.layout, o.bo, o.phoff+grow)
		if err != nil {
			return nil, Result{}, err
		}
	}

	level.Debug(in.logger).Log("msg", "extending PT_LOAD segment", "index", idx,
		"write_offset", writeOffset, "grow", grow)

	out, err := iokit.InsertAt(in.data, int(writeOffset), payload)
	if err != nil {
		return nil, Result{}, err
	}

	return out, Result{
		StrategyUsed:   "section (segment extension)",
		Mapped:         true,
		VirtualAddress: load.Vaddr + load.Filesz,
		FileOffset:     writeOffset,
	}, nil
}

// extend appends the string to the end of the file. Program headers
// are left alone, so the address reported is where the last PT_LOAD
// segment would place the bytes if it covered them.
func (o *elfImage) extend(in patchInput) ([]byte, Result, error) {
	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	writeOffset := uint64(len(in.data))

	result := Result{
		StrategyUsed: "extend (file append)",
		FileOffset:   writeOffset,
	}

	idx, ok := o.lastLoad()
	if ok && writeOffset >= o.f.Progs[idx].Off {
		load := o.f.Progs[idx]
		result.Mapped = true
		result.VirtualAddress = load.Vaddr + (writeOffset - load.Off)
	}

	level.Debug(in.logger).Log("msg", "appending to ELF", "write_offset", writeOffset)

	return append(in.data, payload...), result, nil
}
