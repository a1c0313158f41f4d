package patcher

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/go-kit/log/level"
	"gitlab.com/stephen-fox/bredcrumb/iokit"
)

const machoGrowthAlignment = 16

// Cave candidates are the sections of these segments, in priority
// order. A segment without sections is searched as a whole.
var machoCaveSegments = []string{"__DATA", "__TEXT", "__LINKEDIT"}

// machoSegmentCommand is a segment load command as found in the raw
// load command area.
type machoSegmentCommand struct {
	offset   int
	name     string
	vmaddr   uint64
	vmsize   uint64
	fileoff  uint64
	filesize uint64

	// sections holds the file offset of each section record.
	sections []int
}

// machoLoadCommand is the position of one load command.
type machoLoadCommand struct {
	offset  int
	cmd     uint32
	cmdsize int
}

type machoImage struct {
	f       *macho.File
	layout  machoLayout
	bo      binary.ByteOrder
	cmdsEnd int

	commands []machoLoadCommand
	segments []machoSegmentCommand
}

func newMachOImage(data []byte, f *macho.File) (*machoImage, error) {
	img := &machoImage{
		f:      f,
		layout: macho32Layout,
		bo:     binary.LittleEndian,
	}

	if isMachO64(data) {
		img.layout = macho64Layout
	}

	switch binary.LittleEndian.Uint32(data) {
	case machoCigam32, machoCigam64:
		img.bo = binary.BigEndian
	}

	err := img.readSegmentCommands(data)
	if err != nil {
		return nil, &ParseError{Format: "Mach-O", Err: err}
	}

	return img, nil
}

func (o *machoImage) readSegmentCommands(data []byte) error {
	ncmds, err := getUint32(data, machoNcmdsOffset, o.bo)
	if err != nil {
		return err
	}

	sizeofcmds, err := getUint32(data, machoSizeofcmdsOffset, o.bo)
	if err != nil {
		return err
	}

	o.cmdsEnd = o.layout.headerSize + int(sizeofcmds)
	if o.cmdsEnd > len(data) {
		return fmt.Errorf("load commands end at 0x%x, past the end of the file", o.cmdsEnd)
	}

	at := o.layout.headerSize

	for i := 0; i < int(ncmds); i++ {
		cmd, err := getUint32(data, at, o.bo)
		if err != nil {
			return err
		}

		cmdsize, err := getUint32(data, at+4, o.bo)
		if err != nil {
			return err
		}

		if cmdsize < 8 || at+int(cmdsize) > o.cmdsEnd {
			return fmt.Errorf("load command %d has invalid size %d", i, cmdsize)
		}

		o.commands = append(o.commands, machoLoadCommand{
			offset:  at,
			cmd:     cmd,
			cmdsize: int(cmdsize),
		})

		if cmd == o.layout.segmentCmdID {
			seg, err := o.readSegmentCommand(data, at, int(cmdsize))
			if err != nil {
				return fmt.Errorf("failed to read segment command %d - %w", i, err)
			}

			o.segments = append(o.segments, seg)
		}

		at += int(cmdsize)
	}

	return nil
}

func (o *machoImage) readSegmentCommand(data []byte, at int, cmdsize int) (machoSegmentCommand, error) {
	if cmdsize < o.layout.segmentSize {
		return machoSegmentCommand{}, fmt.Errorf("segment command is too small (%d bytes)", cmdsize)
	}

	seg := machoSegmentCommand{
		offset: at,
		name:   string(bytes.TrimRight(data[at+8:at+24], "\x00")),
	}

	var err error
	for _, field := range []struct {
		offset int
		dst    *uint64
	}{
		{offset: o.layout.segVmaddr, dst: &seg.vmaddr},
		{offset: o.layout.segVmsize, dst: &seg.vmsize},
		{offset: o.layout.segFileoff, dst: &seg.fileoff},
		{offset: o.layout.segFilesize, dst: &seg.filesize},
	} {
		*field.dst, err = o.layout.readWord(data, at+field.offset, o.bo)
		if err != nil {
			return machoSegmentCommand{}, err
		}
	}

	nsects, err := getUint32(data, at+o.layout.segNsects, o.bo)
	if err != nil {
		return machoSegmentCommand{}, err
	}

	if o.layout.segmentSize+int(nsects)*o.layout.sectionSize > cmdsize {
		return machoSegmentCommand{}, fmt.Errorf("%d sections do not fit in command of %d bytes",
			nsects, cmdsize)
	}

	for i := 0; i < int(nsects); i++ {
		seg.sections = append(seg.sections, at+o.layout.segmentSize+i*o.layout.sectionSize)
	}

	return seg, nil
}

func (o *machoImage) segment(name string) (machoSegmentCommand, bool) {
	for _, seg := range o.segments {
		if seg.name == name {
			return seg, true
		}
	}

	return machoSegmentCommand{}, false
}

func patchMachO(f *macho.File, in patchInput, strategy Strategy) ([]byte, Result, error) {
	img, err := newMachOImage(in.data, f)
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
		return nil, Result{}, fmt.Errorf("unsupported strategy for Mach-O: %s", strategy)
	}
}

func (o *machoImage) cave(in patchInput) ([]byte, Result, error) {
	var candidates []region

	for _, segName := range machoCaveSegments {
		hasSections := false

		for _, s := range o.f.Sections {
			if s.Seg != segName {
				continue
			}

			hasSections = true

			if s.Offset == 0 || s.Size == 0 {
				continue
			}

			candidates = append(candidates, region{
				name:   s.Seg + "," + s.Name,
				offset: int(s.Offset),
				size:   int(s.Size),
			})
		}

		if hasSections {
			continue
		}

		for _, seg := range o.f.Segments() {
			if seg.Name == segName && seg.Filesz > 0 {
				candidates = append(candidates, region{
					name:   seg.Name,
					offset: int(seg.Offset),
					size:   int(seg.Filesz),
				})
			}
		}
	}

	headers := region{offset: 0, size: o.cmdsEnd}

	return patchCave(in, candidates, complement(len(in.data), []region{headers}), o.locate)
}

func (o *machoImage) locate(offset int) location {
	var loc location

	off := uint64(offset)

	for _, s := range o.f.Sections {
		start := uint64(s.Offset)
		if s.Offset == 0 || off < start || off >= start+s.Size {
			continue
		}

		loc.name = s.Seg + "," + s.Name

		break
	}

	for _, seg := range o.f.Segments() {
		if off < seg.Offset || off >= seg.Offset+seg.Filesz {
			continue
		}

		if loc.name == "" {
			loc.name = seg.Name
		}

		loc.mapped = true
		loc.va = seg.Addr + (off - seg.Offset)

		break
	}

	return loc
}

// section appends the string after __LINKEDIT's file content. No load
// command is updated, so the bytes are not mapped.
func (o *machoImage) section(in patchInput) ([]byte, Result, error) {
	linkedit, ok := o.segment("__LINKEDIT")
	if !ok {
		return nil, Result{}, patchFailed("Mach-O has no __LINKEDIT segment")
	}

	writeOffset := linkedit.fileoff + linkedit.filesize
	if writeOffset > uint64(len(in.data)) {
		return nil, Result{}, patchFailed("__LINKEDIT ends at 0x%x, past the end of the file (0x%x)",
			writeOffset, len(in.data))
	}

	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		AlignTo(machoGrowthAlignment).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	level.Debug(in.logger).Log("msg", "appending after __LINKEDIT",
		"write_offset", writeOffset, "grow", len(payload))

	out, err := iokit.InsertAt(in.data, int(writeOffset), payload)
	if err != nil {
		return nil, Result{}, err
	}

	return out, Result{
		StrategyUsed: "section (__LINKEDIT extension)",
		FileOffset:   writeOffset,
	}, nil
}

// extend grows __DATA, or the last segment if there is no __DATA.
// Every file offset in the load commands that follows the insertion
// point is moved along with it.
//
// If the segment has zero-fill (vmsize > filesize, e.g. __bss), the
// string is loaded over the start of that area, which the program
// expects to be zero. This is part of the strategy's best-effort
// limitation.
func (o *machoImage) extend(in patchInput) ([]byte, Result, error) {
	target, ok := o.segment("__DATA")
	if !ok {
		if len(o.segments) == 0 {
			return nil, Result{}, patchFailed("Mach-O has no segments")
		}

		target = o.segments[len(o.segments)-1]
	}

	writeOffset := target.fileoff + target.filesize
	if writeOffset > uint64(len(in.data)) {
		return nil, Result{}, patchFailed("segment %s ends at 0x%x, past the end of the file (0x%x)",
			target.name, writeOffset, len(in.data))
	}

	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	grow := uint64(len(payload))
	newFilesize := target.filesize + grow

	err = writeMachOSegmentFilesize(in.data, o.layout, target.offset, o.bo, newFilesize)
	if err != nil {
		return nil, Result{}, err
	}

	if newFilesize > target.vmsize {
		err = writeMachOSegmentVmsize(in.data, o.layout, target.offset, o.bo, newFilesize)
		if err != nil {
			return nil, Result{}, err
		}
	}

	err = o.shiftFileOffsets(in.data, writeOffset, grow, target.offset)
	if err != nil {
		return nil, Result{}, err
	}

	level.Debug(in.logger).Log("msg", "extending Mach-O segment", "name", target.name,
		"write_offset", writeOffset, "grow", grow)

	out, err := iokit.InsertAt(in.data, int(writeOffset), payload)
	if err != nil {
		return nil, Result{}, err
	}

	return out, Result{
		StrategyUsed:   "extend (" + target.name + ")",
		Mapped:         true,
		VirtualAddress: target.vmaddr + target.filesize,
		FileOffset:     writeOffset,
	}, nil
}

// shiftFileOffsets adds grow to every file offset at or after from,
// except the file offset of the segment command at skipSegment.
func (o *machoImage) shiftFileOffsets(data []byte, from uint64, grow uint64, skipSegment int) error {
	for _, seg := range o.segments {
		if seg.offset != skipSegment && seg.filesize != 0 && seg.fileoff >= from {
			err := writeMachOSegmentFileoff(data, o.layout, seg.offset, o.bo, seg.fileoff+grow)
			if err != nil {
				return fmt.Errorf("failed to move segment %s - %w", seg.name, err)
			}
		}

		for _, sect := range seg.sections {
			for _, field := range []struct {
				offset int
				write  func([]byte, machoLayout, int, binary.ByteOrder, uint64) error
			}{
				{offset: o.layout.sectOffset, write: writeMachOSectionOffset},
				{offset: o.layout.sectReloff, write: writeMachOSectionReloff},
			} {
				v, err := getUint32(data, sect+field.offset, o.bo)
				if err != nil {
					return err
				}

				if v == 0 || uint64(v) < from {
					continue
				}

				err = field.write(data, o.layout, sect, o.bo, uint64(v)+grow)
				if err != nil {
					return fmt.Errorf("failed to move section in segment %s - %w", seg.name, err)
				}
			}
		}
	}

	for _, lc := range o.commands {
		for _, field := range machoFileOffsetFields[lc.cmd] {
			width := 4
			if field.is64 {
				width = 8
			}

			if field.offset+width > lc.cmdsize {
				continue
			}

			err := shiftMachOFileOffset(data, lc.offset+field.offset, field, o.bo, from, grow)
			if err != nil {
				return fmt.Errorf("failed to move offset in load command 0x%x - %w", lc.cmd, err)
			}
		}
	}

	return nil
}
