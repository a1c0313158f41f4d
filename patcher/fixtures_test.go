package patcher

import (
	"bytes"
	"encoding/binary"
)

// Minimal images built field by field. Each one parses with the
// real parsers and has a known zero run in a cave candidate section.

var le = binary.LittleEndian

type image []byte

func newImage(size int) image {
	return make(image, size)
}

func (o image) u16(at int, v uint16) { le.PutUint16(o[at:], v) }
func (o image) u32(at int, v uint32) { le.PutUint32(o[at:], v) }
func (o image) u64(at int, v uint64) { le.PutUint64(o[at:], v) }
func (o image) str(at int, s string) { copy(o[at:], s) }

func (o image) fill(at int, size int, b byte) {
	copy(o[at:at+size], bytes.Repeat([]byte{b}, size))
}

const (
	peFixtureLfanew         = 0x40
	peFixtureLength         = 0x600
	peFixtureSizeOfHeaders  = 0x200
	peFixtureImageBase64    = 0x140000000
	peFixtureImageBase32    = 0x400000
	peFixtureRdataCaveStart = 0x440
	peFixtureRdataCaveSize  = 0x1c0
	peFixtureCertSize       = 0x20
)

type peFixtureOptions struct {
	is64          bool
	sizeOfHeaders uint32

	// certificate appends a certificate table after .rdata and
	// points data directory 4 at it.
	certificate bool
}

// buildPE returns a PE image with a .text section (raw 0x200, all int3)
// and a .rdata section (raw 0x400) whose first 0x40 bytes are used.
func buildPE(opts peFixtureOptions) []byte {
	if opts.sizeOfHeaders == 0 {
		opts.sizeOfHeaders = peFixtureSizeOfHeaders
	}

	length := peFixtureLength
	if opts.certificate {
		length += peFixtureCertSize
	}

	img := newImage(length)

	img.str(0, "MZ")
	img.u32(0x3c, peFixtureLfanew)
	img.str(peFixtureLfanew, "PE\x00\x00")

	coff := peFixtureLfanew + 4
	opt := coff + 20

	sizeOfOptionalHeader := uint16(224)
	machine := uint16(0x14c)
	if opts.is64 {
		sizeOfOptionalHeader = 240
		machine = 0x8664
	}

	img.u16(coff, machine)
	img.u16(coff+2, 2)
	img.u16(coff+16, sizeOfOptionalHeader)
	img.u16(coff+18, 0x0102)

	if opts.is64 {
		img.u16(opt, 0x20b)
		img.u64(opt+24, peFixtureImageBase64)
	} else {
		img.u16(opt, 0x10b)
		img.u32(opt+28, peFixtureImageBase32)
	}

	img.u32(opt+16, 0x1000)
	img.u32(opt+20, 0x1000)
	img.u32(opt+32, 0x1000)
	img.u32(opt+36, 0x200)
	img.u16(opt+40, 6)
	img.u16(opt+48, 6)
	img.u32(opt+56, 0x3000)
	img.u32(opt+60, opts.sizeOfHeaders)
	img.u16(opt+68, 3)

	if opts.is64 {
		img.u32(opt+108, 16)
	} else {
		img.u32(opt+92, 16)
	}

	table := opt + int(sizeOfOptionalHeader)

	writePEFixtureSection(img, table, ".text", 0x1a0, 0x1000, 0x200, 0x200, 0x60000020)
	writePEFixtureSection(img, table+40, ".rdata", 0x200, 0x2000, 0x200, 0x400, 0x40000040)

	img.fill(0x200, 0x200, 0xcc)
	img.fill(0x400, 0x40, 'A')

	if opts.certificate {
		entry := opt + 96 + 4*8
		if opts.is64 {
			entry = opt + 112 + 4*8
		}

		img.u32(entry, peFixtureLength)
		img.u32(entry+4, peFixtureCertSize)

		// WIN_CERTIFICATE: dwLength, wRevision, wCertificateType.
		img.u32(peFixtureLength, peFixtureCertSize)
		img.u16(peFixtureLength+4, 0x0200)
		img.u16(peFixtureLength+6, 0x0002)
		img.fill(peFixtureLength+8, peFixtureCertSize-8, 'C')
	}

	return img
}

func writePEFixtureSection(img image, at int, name string, vsize, va, rawSize, rawPtr, characteristics uint32) {
	img.str(at, name)
	img.u32(at+8, vsize)
	img.u32(at+12, va)
	img.u32(at+16, rawSize)
	img.u32(at+20, rawPtr)
	img.u32(at+36, characteristics)
}

const (
	elfFixtureLength64 = 0x460
	elfFixtureLength32 = 0x3e8
	elfFixtureShoff    = 0x320

	elfFixtureRodataCave     = 0x190
	elfFixtureRodataCaveSize = 0x70
)

// elfFixtureShstrtab holds the section names at offsets 1 (.text),
// 7 (.rodata), 15 (.data) and 21 (.shstrtab).
const elfFixtureShstrtab = "\x00.text\x00.rodata\x00.data\x00.shstrtab\x00"

// buildELF returns an executable with two PT_LOAD segments:
// [0, 0x200) and [0x200, 0x300). Sections are .text at 0x100,
// .rodata at 0x180 (first 0x10 bytes used) and .data at 0x200,
// followed by .shstrtab at 0x300 and the section headers at 0x320.
func buildELF(is64 bool) []byte {
	if is64 {
		return buildELF64()
	}

	return buildELF32()
}

func buildELF64() []byte {
	img := newImage(elfFixtureLength64)

	img.str(0, "\x7fELF")
	img[4] = 2
	img[5] = 1
	img[6] = 1
	img.u16(16, 2)
	img.u16(18, 62)
	img.u32(20, 1)
	img.u64(24, 0x400100)
	img.u64(32, 64)
	img.u64(40, elfFixtureShoff)
	img.u16(52, 64)
	img.u16(54, 56)
	img.u16(56, 2)
	img.u16(58, 64)
	img.u16(60, 5)
	img.u16(62, 4)

	progs := []struct {
		flags  uint32
		off    uint64
		vaddr  uint64
		filesz uint64
	}{
		{flags: 5, off: 0, vaddr: 0x400000, filesz: 0x200},
		{flags: 6, off: 0x200, vaddr: 0x401200, filesz: 0x100},
	}

	for i, p := range progs {
		at := 64 + i*56
		img.u32(at, 1)
		img.u32(at+4, p.flags)
		img.u64(at+8, p.off)
		img.u64(at+16, p.vaddr)
		img.u64(at+24, p.vaddr)
		img.u64(at+32, p.filesz)
		img.u64(at+40, p.filesz)
		img.u64(at+48, 0x1000)
	}

	sections := []struct {
		name   uint32
		typ    uint32
		flags  uint64
		addr   uint64
		offset uint64
		size   uint64
	}{
		{},
		{name: 1, typ: 1, flags: 6, addr: 0x400100, offset: 0x100, size: 0x80},
		{name: 7, typ: 1, flags: 2, addr: 0x400180, offset: 0x180, size: 0x80},
		{name: 15, typ: 1, flags: 3, addr: 0x401200, offset: 0x200, size: 0x100},
		{name: 21, typ: 3, offset: 0x300, size: uint64(len(elfFixtureShstrtab))},
	}

	for i, s := range sections {
		at := elfFixtureShoff + i*64
		img.u32(at, s.name)
		img.u32(at+4, s.typ)
		img.u64(at+8, s.flags)
		img.u64(at+16, s.addr)
		img.u64(at+24, s.offset)
		img.u64(at+32, s.size)
		img.u64(at+48, 1)
	}

	fillELFFixtureContents(img)

	return img
}

func buildELF32() []byte {
	img := newImage(elfFixtureLength32)

	img.str(0, "\x7fELF")
	img[4] = 1
	img[5] = 1
	img[6] = 1
	img.u16(16, 2)
	img.u16(18, 3)
	img.u32(20, 1)
	img.u32(24, 0x8048100)
	img.u32(28, 52)
	img.u32(32, elfFixtureShoff)
	img.u16(40, 52)
	img.u16(42, 32)
	img.u16(44, 2)
	img.u16(46, 40)
	img.u16(48, 5)
	img.u16(50, 4)

	progs := []struct {
		flags  uint32
		off    uint32
		vaddr  uint32
		filesz uint32
	}{
		{flags: 5, off: 0, vaddr: 0x8048000, filesz: 0x200},
		{flags: 6, off: 0x200, vaddr: 0x8049200, filesz: 0x100},
	}

	for i, p := range progs {
		at := 52 + i*32
		img.u32(at, 1)
		img.u32(at+4, p.off)
		img.u32(at+8, p.vaddr)
		img.u32(at+12, p.vaddr)
		img.u32(at+16, p.filesz)
		img.u32(at+20, p.filesz)
		img.u32(at+24, p.flags)
		img.u32(at+28, 0x1000)
	}

	sections := []struct {
		name   uint32
		typ    uint32
		flags  uint32
		addr   uint32
		offset uint32
		size   uint32
	}{
		{},
		{name: 1, typ: 1, flags: 6, addr: 0x8048100, offset: 0x100, size: 0x80},
		{name: 7, typ: 1, flags: 2, addr: 0x8048180, offset: 0x180, size: 0x80},
		{name: 15, typ: 1, flags: 3, addr: 0x8049200, offset: 0x200, size: 0x100},
		{name: 21, typ: 3, offset: 0x300, size: uint32(len(elfFixtureShstrtab))},
	}

	for i, s := range sections {
		at := elfFixtureShoff + i*40
		img.u32(at, s.name)
		img.u32(at+4, s.typ)
		img.u32(at+8, s.flags)
		img.u32(at+12, s.addr)
		img.u32(at+16, s.offset)
		img.u32(at+20, s.size)
		img.u32(at+32, 1)
	}

	fillELFFixtureContents(img)

	return img
}

func fillELFFixtureContents(img image) {
	img.fill(0x100, 0x80, 0xcc)
	img.fill(0x180, 0x10, 'A')
	img.fill(0x200, 0x100, 0x11)
	img.str(0x300, elfFixtureShstrtab)
}

const (
	machoFixtureLength        = 0x440
	machoFixtureCstringCave   = 0x290
	machoFixtureCstringVA64   = 0x100000290
	machoFixtureLinkeditStart = 0x400
	machoFixtureLinkeditSize  = 0x40
	machoFixtureDataVA64      = 0x100001000
	machoFixtureSymoff        = 0x400
	machoFixtureStroff        = 0x410
	machoFixtureFuncStarts    = 0x420
)

type machoFixtureSection struct {
	name   string
	addr   uint64
	size   uint64
	offset uint32
	flags  uint32
}

type machoFixtureSegment struct {
	name     string
	vmaddr   uint64
	fileoff  uint64
	filesize uint64
	prot     uint32
	sections []machoFixtureSection
}

// buildMachO returns an x86 executable with __TEXT (__text at 0x200,
// __cstring at 0x280 with its first 0x10 bytes used), __DATA (__data
// at 0x300) and __LINKEDIT (0x400, 0x40 bytes) segments. __LINKEDIT
// holds a symbol table with one symbol, _main. The 32-bit image also
// has an LC_FUNCTION_STARTS pointing into __LINKEDIT.
func buildMachO(is64 bool) []byte {
	base := uint64(0x1000)
	if is64 {
		base = 0x100000000
	}

	segments := []machoFixtureSegment{
		{
			name: "__TEXT", vmaddr: base, fileoff: 0, filesize: 0x300, prot: 5,
			sections: []machoFixtureSection{
				{name: "__text", addr: base + 0x200, size: 0x80, offset: 0x200, flags: 0x80000400},
				{name: "__cstring", addr: base + 0x280, size: 0x80, offset: 0x280, flags: 0x2},
			},
		},
		{
			name: "__DATA", vmaddr: base + 0x1000, fileoff: 0x300, filesize: 0x100, prot: 3,
			sections: []machoFixtureSection{
				{name: "__data", addr: base + 0x1000, size: 0x100, offset: 0x300},
			},
		},
		{
			name: "__LINKEDIT", vmaddr: base + 0x2000, fileoff: 0x400, filesize: 0x40, prot: 1,
		},
	}

	img := newImage(machoFixtureLength)

	headerSize, segSize, sectSize := 28, 56, 68
	magic, cpu, segCmd := uint32(0xfeedface), uint32(7), uint32(0x1)
	if is64 {
		headerSize, segSize, sectSize = 32, 72, 80
		magic, cpu, segCmd = 0xfeedfacf, 0x01000007, 0x19
	}

	img.u32(0, magic)
	img.u32(4, cpu)
	img.u32(8, 3)
	img.u32(12, 2)

	at := headerSize
	ncmds := len(segments)

	for _, seg := range segments {
		cmdsize := segSize + len(seg.sections)*sectSize

		img.u32(at, segCmd)
		img.u32(at+4, uint32(cmdsize))
		img.str(at+8, seg.name)

		if is64 {
			img.u64(at+24, seg.vmaddr)
			img.u64(at+32, 0x1000)
			img.u64(at+40, seg.fileoff)
			img.u64(at+48, seg.filesize)
			img.u32(at+56, seg.prot)
			img.u32(at+60, seg.prot)
			img.u32(at+64, uint32(len(seg.sections)))
		} else {
			img.u32(at+24, uint32(seg.vmaddr))
			img.u32(at+28, 0x1000)
			img.u32(at+32, uint32(seg.fileoff))
			img.u32(at+36, uint32(seg.filesize))
			img.u32(at+40, seg.prot)
			img.u32(at+44, seg.prot)
			img.u32(at+48, uint32(len(seg.sections)))
		}

		for i, s := range seg.sections {
			sect := at + segSize + i*sectSize

			img.str(sect, s.name)
			img.str(sect+16, seg.name)

			if is64 {
				img.u64(sect+32, s.addr)
				img.u64(sect+40, s.size)
				img.u32(sect+48, s.offset)
				img.u32(sect+64, s.flags)
			} else {
				img.u32(sect+32, uint32(s.addr))
				img.u32(sect+36, uint32(s.size))
				img.u32(sect+40, s.offset)
				img.u32(sect+56, s.flags)
			}
		}

		at += cmdsize
	}

	img.u32(at, 0x2)
	img.u32(at+4, 24)
	img.u32(at+8, machoFixtureSymoff)
	img.u32(at+12, 1)
	img.u32(at+16, machoFixtureStroff)
	img.u32(at+20, 0x10)
	at += 24
	ncmds++

	if !is64 {
		img.u32(at, 0x26)
		img.u32(at+4, 16)
		img.u32(at+8, machoFixtureFuncStarts)
		img.u32(at+12, 0x10)
		at += 16
		ncmds++
	}

	img.u32(16, uint32(ncmds))
	img.u32(20, uint32(at-headerSize))

	img.fill(0x200, 0x80, 0xcc)
	img.fill(0x280, 0x10, 'B')
	img.fill(0x300, 0x100, 0x22)
	img.fill(0x400, 0x40, 0x33)

	// nlist(_64) for _main in __text, then the string table.
	img.fill(machoFixtureSymoff, 0x10, 0)
	img.u32(machoFixtureSymoff, 1)
	img[machoFixtureSymoff+4] = 0x0f
	img[machoFixtureSymoff+5] = 1
	if is64 {
		img.u64(machoFixtureSymoff+8, base+0x200)
	} else {
		img.u32(machoFixtureSymoff+8, uint32(base+0x200))
	}

	img.fill(machoFixtureStroff, 0x10, 0)
	img.str(machoFixtureStroff+1, "_main")

	return img
}

// buildFat returns a universal binary holding the 64-bit Mach-O
// fixture at offset 0x1000.
func buildFat() []byte {
	thin := buildMachO(true)

	header := make([]byte, 0x1000)
	be := binary.BigEndian
	be.PutUint32(header[0:], 0xcafebabe)
	be.PutUint32(header[4:], 1)
	be.PutUint32(header[8:], 0x01000007)
	be.PutUint32(header[12:], 3)
	be.PutUint32(header[16:], 0x1000)
	be.PutUint32(header[20:], uint32(len(thin)))
	be.PutUint32(header[24:], 12)

	return append(header, thin...)
}

// buildJavaClass returns the start of a Java class file, which shares
// its magic number with universal binaries.
func buildJavaClass() []byte {
	b := make([]byte, 64)
	binary.BigEndian.PutUint32(b[0:], 0xcafebabe)
	binary.BigEndian.PutUint16(b[4:], 0)
	binary.BigEndian.PutUint16(b[6:], 52)

	return b
}
