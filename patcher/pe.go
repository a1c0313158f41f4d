package patcher

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Binject/debug/pe"
	"github.com/go-kit/log/level"
	"gitlab.com/stephen-fox/bredcrumb/bstruct"
	"gitlab.com/stephen-fox/bredcrumb/iokit"
)

const (
	peDefaultFileAlignment    = 0x200
	peDefaultSectionAlignment = 0x1000
	peDefaultSizeOfHeaders    = 0x400

	peNewSectionName = ".rtstr"

	// IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ
	peNewSectionCharacteristics = 0x40000040

	peCertificateTableIndex = 4
)

// Cave candidates are matched by name prefix, in priority order.
var peCaveSections = []string{".rdata", ".data", ".rsrc", ".text"}

// peSectionHeader is IMAGE_SECTION_HEADER.
type peSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// peImage holds the parsed PE view plus the raw header values
// the strategies need.
type peImage struct {
	f            *pe.File
	lfanew       int
	sectionTable int

	hasOptional      bool
	imageBase        uint64
	fileAlignment    uint64
	sectionAlignment uint64
	sizeOfHeaders    uint64
	sizeOfImage      uint64

	// certTableEntry is the file offset of the certificate table
	// data directory entry, or zero if there is none.
	certTableEntry int
	certTableAt    uint32
}

func newPEImage(data []byte, f *pe.File) (*peImage, error) {
	lfanew, err := readPELfanew(data)
	if err != nil {
		return nil, &ParseError{Format: "PE", Err: fmt.Errorf("failed to read e_lfanew - %w", err)}
	}

	img := &peImage{
		f:                f,
		lfanew:           lfanew,
		sectionTable:     peSectionTableOffset(lfanew, f.FileHeader.SizeOfOptionalHeader),
		fileAlignment:    peDefaultFileAlignment,
		sectionAlignment: peDefaultSectionAlignment,
		sizeOfHeaders:    peDefaultSizeOfHeaders,
	}

	optStart := lfanew + peOptionalHeaderStart

	switch opt := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		img.hasOptional = true
		img.imageBase = uint64(opt.ImageBase)
		img.setLayout(opt.FileAlignment, opt.SectionAlignment, opt.SizeOfHeaders, opt.SizeOfImage)

		if opt.NumberOfRvaAndSizes > peCertificateTableIndex {
			img.certTableEntry = optStart + 96 + peCertificateTableIndex*8
			img.certTableAt = opt.DataDirectory[peCertificateTableIndex].VirtualAddress
		}
	case *pe.OptionalHeader64:
		img.hasOptional = true
		img.imageBase = opt.ImageBase
		img.setLayout(opt.FileAlignment, opt.SectionAlignment, opt.SizeOfHeaders, opt.SizeOfImage)

		if opt.NumberOfRvaAndSizes > peCertificateTableIndex {
			img.certTableEntry = optStart + 112 + peCertificateTableIndex*8
			img.certTableAt = opt.DataDirectory[peCertificateTableIndex].VirtualAddress
		}
	}

	return img, nil
}

func (o *peImage) setLayout(fileAlignment, sectionAlignment, sizeOfHeaders, sizeOfImage uint32) {
	if fileAlignment > 0 {
		o.fileAlignment = uint64(fileAlignment)
	}

	if sectionAlignment > 0 {
		o.sectionAlignment = uint64(sectionAlignment)
	}

	if sizeOfHeaders > 0 {
		o.sizeOfHeaders = uint64(sizeOfHeaders)
	}

	o.sizeOfImage = uint64(sizeOfImage)
}

func patchPE(f *pe.File, in patchInput, strategy Strategy) ([]byte, Result, error) {
	img, err := newPEImage(in.data, f)
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
		return nil, Result{}, fmt.Errorf("unsupported strategy for PE: %s", strategy)
	}
}

func (o *peImage) cave(in patchInput) ([]byte, Result, error) {
	var candidates []region

	for _, prefix := range peCaveSections {
		for _, s := range o.f.Sections {
			if strings.HasPrefix(s.Name, prefix) {
				candidates = append(candidates, region{
					name:   s.Name,
					offset: int(s.Offset),
					size:   int(s.Size),
				})
			}
		}
	}

	headers := region{offset: 0, size: int(o.sizeOfHeaders)}

	return patchCave(in, candidates, complement(len(in.data), []region{headers}), o.locate)
}

func (o *peImage) locate(offset int) location {
	for _, s := range o.f.Sections {
		start := int(s.Offset)
		if offset < start || offset >= start+int(s.Size) {
			continue
		}

		return location{
			name:   s.Name,
			mapped: o.hasOptional,
			va:     o.imageBase + uint64(s.VirtualAddress) + uint64(offset-start),
		}
	}

	return location{}
}

// lastSection returns the index of the section whose raw data ends
// furthest into the file.
func (o *peImage) lastSection() (int, bool) {
	idx := -1
	var furthest uint64

	for i, s := range o.f.Sections {
		end := uint64(s.Offset) + uint64(s.Size)
		if idx < 0 || end >= furthest {
			idx = i
			furthest = end
		}
	}

	return idx, idx >= 0
}

func (o *peImage) section(in patchInput) ([]byte, Result, error) {
	lastIdx, ok := o.lastSection()
	if !ok {
		return nil, Result{}, patchFailed("PE image has no sections")
	}

	last := o.f.Sections[lastIdx]

	numSections := len(o.f.Sections)
	if numSections >= 0xffff {
		return nil, Result{}, patchFailed("PE section table is full")
	}

	headerAt := o.sectionTable + numSections*peSectionHeaderSize
	if uint64(headerAt+peSectionHeaderSize) > o.sizeOfHeaders || headerAt+peSectionHeaderSize > len(in.data) {
		return nil, Result{}, patchFailed("no room for a new section header: table would end at 0x%x, headers end at 0x%x",
			headerAt+peSectionHeaderSize, o.sizeOfHeaders)
	}

	var virtualEnd uint64
	for _, s := range o.f.Sections {
		virtualEnd = max(virtualEnd, uint64(s.VirtualAddress)+uint64(max(s.VirtualSize, s.Size)))
	}

	rawEnd := uint64(last.Offset) + uint64(last.Size)
	newOffset := iokit.AlignUp64(max(rawEnd, uint64(len(in.data))), o.fileAlignment)
	newVA := iokit.AlignUp64(virtualEnd, o.sectionAlignment)

	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		AlignTo(int(o.fileAlignment)).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	newSize := uint64(len(payload))
	if newOffset+newSize > 0xffffffff || newVA+newSize > 0xffffffff {
		return nil, Result{}, ErrStringTooLong
	}

	header := peSectionHeader{
		VirtualSize:      uint32(in.needed()),
		VirtualAddress:   uint32(newVA),
		SizeOfRawData:    uint32(newSize),
		PointerToRawData: uint32(newOffset),
		Characteristics:  peNewSectionCharacteristics,
	}
	copy(header.Name[:], peNewSectionName)

	headerBytes, err := bstruct.StructToBytes(header, binary.LittleEndian, nil)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to encode section header - %w", err)
	}

	err = iokit.OverwriteAt(in.data, headerAt, headerBytes)
	if err != nil {
		return nil, Result{}, err
	}

	err = writePENumberOfSections(in.data, o.lfanew, uint16(numSections+1))
	if err != nil {
		return nil, Result{}, err
	}

	if o.hasOptional {
		err = writePESizeOfImage(in.data, o.lfanew, iokit.AlignUp64(newVA+newSize, o.sectionAlignment))
		if err != nil {
			return nil, Result{}, err
		}
	}

	level.Debug(in.logger).Log("msg", "adding PE section", "name", peNewSectionName,
		"header_offset", headerAt, "raw_offset", newOffset, "raw_size", newSize, "rva", newVA)

	tail, err := iokit.NewPayloadBuilder().
		RepeatByte(0, int(newOffset)-len(in.data)).
		Bytes(payload).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	return append(in.data, tail...), Result{
		StrategyUsed:   "section (" + peNewSectionName + ")",
		Mapped:         o.hasOptional,
		VirtualAddress: o.imageBase + newVA,
		FileOffset:     newOffset,
	}, nil
}

func (o *peImage) extend(in patchInput) ([]byte, Result, error) {
	lastIdx, ok := o.lastSection()
	if !ok {
		return nil, Result{}, patchFailed("PE image has no sections")
	}

	last := o.f.Sections[lastIdx]
	header := o.sectionTable + lastIdx*peSectionHeaderSize
	writeOffset := uint64(last.Offset) + uint64(last.Size)

	if writeOffset > uint64(len(in.data)) {
		return nil, Result{}, patchFailed("section %s ends at 0x%x, past the end of the file (0x%x)",
			last.Name, writeOffset, len(in.data))
	}

	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		AlignTo(int(o.fileAlignment)).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	grow := uint64(len(payload))
	newRawSize := uint64(last.Size) + grow
	newVirtualSize := max(uint64(last.VirtualSize), newRawSize)

	err = writePESectionRawSize(in.data, header, newRawSize)
	if err != nil {
		return nil, Result{}, err
	}

	err = writePESectionVirtualSize(in.data, header, newVirtualSize)
	if err != nil {
		return nil, Result{}, err
	}

	if o.hasOptional {
		imageEnd := iokit.AlignUp64(uint64(last.VirtualAddress)+newVirtualSize, o.sectionAlignment)
		if imageEnd > o.sizeOfImage {
			err = writePESizeOfImage(in.data, o.lfanew, imageEnd)
			if err != nil {
				return nil, Result{}, err
			}
		}
	}

	// The certificate table is addressed by file offset, so it
	// moves along with the bytes after the insertion point.
	if o.certTableEntry > 0 && o.certTableAt > 0 && uint64(o.certTableAt) >= writeOffset {
		err = writePECertificateTableOffset(in.data, o.certTableEntry, uint64(o.certTableAt)+grow)
		if err != nil {
			return nil, Result{}, err
		}
	}

	level.Debug(in.logger).Log("msg", "extending PE section", "name", last.Name,
		"write_offset", writeOffset, "grow", grow)

	out, err := iokit.InsertAt(in.data, int(writeOffset), payload)
	if err != nil {
		return nil, Result{}, err
	}

	return out, Result{
		StrategyUsed:   "extend (" + last.Name + ")",
		Mapped:         o.hasOptional,
		VirtualAddress: o.imageBase + uint64(last.VirtualAddress) + uint64(last.Size),
		FileOffset:     writeOffset,
	}, nil
}
