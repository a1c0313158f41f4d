package patcher

import (
	"encoding/binary"
	"fmt"

	"github.com/Binject/debug/elf"
	"github.com/Binject/debug/pe"
	"gitlab.com/stephen-fox/bredcrumb/cave"
)

const (
	peScnCntCode    = 0x00000020
	peScnMemExecute = 0x20000000

	machoAttrPureInstructions = 0x80000000
	machoAttrSomeInstructions = 0x00000400

	machoCPUI386   = 7
	machoCPUX86_64 = 0x01000007
)

// Region is a section (or a segment without sections) of a parsed
// binary.
type Region struct {
	Name       string
	Offset     uint64
	Size       uint64
	Addr       uint64
	Mapped     bool
	Executable bool
}

// End returns the file offset one past the region's last byte.
func (o Region) End() uint64 {
	return o.Offset + o.Size
}

// View summarizes a binary's layout.
type View struct {
	Format  Format
	Machine string

	// X86Bits is 32 or 64 for x86 images, zero otherwise.
	X86Bits int

	Regions []Region
}

// Inspect parses data and lists its regions in header order.
// Universal Mach-O binaries are reported without regions.
func Inspect(data []byte) (*View, error) {
	p, err := parse(data)
	if err != nil {
		return nil, err
	}

	view := &View{Format: p.format}

	switch p.format.family() {
	case familyPE:
		inspectPE(p, view)
	case familyELF:
		inspectELF(p, view)
	case familyMachO:
		inspectMachO(data, p, view)
	default:
		if p.format == FormatUnknown {
			return nil, ErrUnsupportedFormat
		}

		view.Machine = "universal"
	}

	return view, nil
}

func inspectPE(p *parsed, view *View) {
	switch p.pe.FileHeader.Machine {
	case peMachineI386:
		view.Machine = "i386"
		view.X86Bits = 32
	case peMachineAMD64:
		view.Machine = "x86_64"
		view.X86Bits = 64
	case peMachineARM64:
		view.Machine = "arm64"
	default:
		view.Machine = fmt.Sprintf("0x%x", p.pe.FileHeader.Machine)
	}

	var imageBase uint64
	mapped := false

	switch opt := p.pe.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(opt.ImageBase)
		mapped = true
	case *pe.OptionalHeader64:
		imageBase = opt.ImageBase
		mapped = true
	}

	for _, s := range p.pe.Sections {
		view.Regions = append(view.Regions, Region{
			Name:       s.Name,
			Offset:     uint64(s.Offset),
			Size:       uint64(s.Size),
			Addr:       imageBase + uint64(s.VirtualAddress),
			Mapped:     mapped,
			Executable: s.Characteristics&(peScnCntCode|peScnMemExecute) != 0,
		})
	}
}

func inspectELF(p *parsed, view *View) {
	view.Machine = p.elf.Machine.String()

	switch p.elf.Machine {
	case elf.EM_386:
		view.X86Bits = 32
	case elf.EM_X86_64:
		view.X86Bits = 64
	}

	for _, s := range p.elf.Sections {
		if s.Type == elf.SHT_NULL || s.Type == elf.SHT_NOBITS {
			continue
		}

		view.Regions = append(view.Regions, Region{
			Name:       s.Name,
			Offset:     s.Offset,
			Size:       s.Size,
			Addr:       s.Addr,
			Mapped:     s.Addr > 0,
			Executable: s.Flags&elf.SHF_EXECINSTR != 0,
		})
	}
}

func inspectMachO(data []byte, p *parsed, view *View) {
	bo := binary.ByteOrder(binary.LittleEndian)
	switch binary.LittleEndian.Uint32(data) {
	case machoCigam32, machoCigam64:
		bo = binary.BigEndian
	}

	cpu := bo.Uint32(data[4:])
	switch cpu {
	case machoCPUI386:
		view.Machine = "i386"
		view.X86Bits = 32
	case machoCPUX86_64:
		view.Machine = "x86_64"
		view.X86Bits = 64
	default:
		view.Machine = p.macho.CPU.String()
	}

	for _, seg := range p.macho.Segments() {
		hasSections := false

		for _, s := range p.macho.Sections {
			if s.Seg != seg.Name {
				continue
			}

			hasSections = true

			if s.Offset == 0 {
				continue
			}

			view.Regions = append(view.Regions, Region{
				Name:       s.Seg + "," + s.Name,
				Offset:     uint64(s.Offset),
				Size:       s.Size,
				Addr:       s.Addr,
				Mapped:     true,
				Executable: uint32(s.Flags)&(machoAttrPureInstructions|machoAttrSomeInstructions) != 0,
			})
		}

		if !hasSections && seg.Filesz > 0 {
			view.Regions = append(view.Regions, Region{
				Name:   seg.Name,
				Offset: seg.Offset,
				Size:   seg.Filesz,
				Addr:   seg.Addr,
				Mapped: true,
			})
		}
	}
}

// Caves lists the caves of at least minSize bytes inside each of the
// view's regions. data must be the bytes the view was made from.
func (o *View) Caves(data []byte, minSize int) []cave.CodeCave {
	var caves []cave.CodeCave

	for _, r := range o.Regions {
		if r.End() > uint64(len(data)) {
			continue
		}

		for _, c := range cave.FindCavesInRange(data, int(r.Offset), int(r.End()), minSize) {
			c.SectionName = r.Name

			if r.Mapped {
				c.Mapped = true
				c.VirtualAddress = r.Addr + uint64(c.FileOffset) - r.Offset
			}

			caves = append(caves, c)
		}
	}

	return caves
}

// Region returns the region with the specified name.
func (o *View) Region(name string) (Region, bool) {
	for _, r := range o.Regions {
		if r.Name == name {
			return r, true
		}
	}

	return Region{}, false
}
