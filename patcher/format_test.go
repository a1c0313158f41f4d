package patcher

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	for _, fix := range thinFixtures() {
		t.Run(fix.name, func(t *testing.T) {
			data := fix.data()

			first, err := Detect(data)
			require.NoError(t, err)
			assert.Equal(t, fix.format, first)

			second, err := Detect(data)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}

	format, err := Detect(buildFat())
	require.NoError(t, err)
	assert.Equal(t, FormatMachOFat, format)
}

func TestDetect_Unknown(t *testing.T) {
	inputs := map[string][]byte{
		"text":       []byte("#!/bin/sh\necho hello\n"),
		"java class": buildJavaClass(),
		"ar archive": []byte("!<arch>\ndebian-binary   "),
		"short":      {'M', 'Z'},
		"empty":      nil,
	}

	for name, data := range inputs {
		format, err := Detect(data)
		assert.NoError(t, err, name)
		assert.Equal(t, FormatUnknown, format, name)
	}
}

func TestDetect_CorruptHeaders(t *testing.T) {
	elfHeader := buildELF(true)[:20]

	_, err := Detect(elfHeader)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "ELF", parseErr.Format)
}

func TestFormat_Text(t *testing.T) {
	assert.Equal(t, "Mach-O Universal (fat)", FormatMachOFat.String())
	assert.Equal(t, "PE 64-bit", FormatPE64.String())
	assert.Equal(t, "MachO64", FormatMachO64.Tag())
	assert.True(t, FormatELF64.Is64Bit())
	assert.False(t, FormatMachOFat.Is64Bit())

	raw, err := json.Marshal(map[string]Format{"binary_format": FormatELF32})
	require.NoError(t, err)
	assert.JSONEq(t, `{"binary_format":"ELF32"}`, string(raw))

	var decoded map[string]Format
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, FormatELF32, decoded["binary_format"])

	var f Format
	assert.Error(t, f.UnmarshalText([]byte("COFF")))
}

func TestParseStrategy(t *testing.T) {
	for _, name := range Strategies() {
		s, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.String())
	}

	s, err := ParseStrategy("OverLay")
	require.NoError(t, err)
	assert.Equal(t, StrategyOverlay, s)

	_, err = ParseStrategy("inject")
	assert.ErrorContains(t, err, "cave, section, extend, overlay")

	assert.Equal(t, "Strategy(9)", Strategy(9).String())
}

func TestFindAll(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, FindAll([]byte("aaaa"), []byte("aa")))
	assert.Equal(t, []int{3}, FindAll([]byte("xyzRTabc"), []byte("RTabc")))
	assert.Nil(t, FindAll([]byte("abc"), []byte("d")))
	assert.Nil(t, FindAll([]byte("abc"), nil))
}

func TestFieldWriters(t *testing.T) {
	data := make([]byte, 16)

	err := putUint32Checked(data, 0, le, math.MaxUint32+1)
	assert.ErrorIs(t, err, ErrStringTooLong)

	err = putUint16(data, 15, le, 1)
	assert.ErrorContains(t, err, "outside of data")

	err = writeELFProgramFilesz(data, elf32Layout, 0, le, 0x1_0000_0000)
	assert.ErrorIs(t, err, ErrStringTooLong)

	require.NoError(t, writeELFProgramFilesz(data, elf32Layout, 0, le, 0x1234))
	assert.Equal(t, uint32(0x1234), le.Uint32(data[elf32Layout.progFilesz:]))

	big := make([]byte, 64)
	require.NoError(t, writeELFProgramMemsz(big, elf64Layout, 0, le, 0x1_0000_0000))
	assert.Equal(t, uint64(0x1_0000_0000), le.Uint64(big[40:]))

	require.NoError(t, writeMachOSectionOffset(big, macho64Layout, 0, le, 0x2000))
	assert.Equal(t, uint32(0x2000), le.Uint32(big[48:]))

	err = writeMachOSegmentFileoff(big, macho32Layout, 0, le, math.MaxUint32+1)
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestPEFieldWriters(t *testing.T) {
	data := buildPE(peFixtureOptions{is64: true})

	header := peSectionTableOffset(peFixtureLfanew, 240)
	assert.Equal(t, 0x148, header)

	require.NoError(t, writePESectionRawSize(data, header, 0x400))
	require.NoError(t, writePESectionVirtualSize(data, header, 0x3ff))

	p, err := parse(data)
	require.NoError(t, err)
	require.Len(t, p.pe.Sections, 2)
	assert.Equal(t, uint32(0x400), p.pe.Sections[0].Size)
	assert.Equal(t, uint32(0x3ff), p.pe.Sections[0].VirtualSize)

	require.NoError(t, writePENumberOfSections(data, peFixtureLfanew, 7))
	assert.Equal(t, uint16(7), le.Uint16(data[peFixtureLfanew+6:]))

	err = writePESizeOfImage(data, peFixtureLfanew, math.MaxUint32+1)
	assert.ErrorIs(t, err, ErrStringTooLong)
}
