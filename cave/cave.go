// Package cave finds code caves: runs of zero bytes inside a binary that
// can hold injected data without growing the file.
//
// The functions in this package know nothing about executable formats.
// Callers that want caves inside a particular section pass the section's
// file range to FindCavesInRange.
package cave

import (
	"sort"
)

// CodeCave is a contiguous run of zero bytes.
type CodeCave struct {
	// FileOffset is the index of the first zero byte.
	FileOffset int

	// Size is the number of zero bytes in the run.
	Size int

	// SectionName is the name of the section or segment that
	// contains the cave. The finder functions leave it empty.
	SectionName string

	// Mapped is true when VirtualAddress is set, meaning the cave
	// is loaded into process memory. The finder functions leave
	// it false.
	Mapped bool

	// VirtualAddress is the address of the cave once the binary
	// is loaded. Only meaningful when Mapped is true.
	VirtualAddress uint64
}

// End returns the offset one past the last byte of the cave.
func (o CodeCave) End() int {
	return o.FileOffset + o.Size
}

// FindCaves returns every maximal run of zero bytes in data that is at
// least minSize bytes long. The result is sorted by size, largest first.
// Caves of equal size keep the order in which they appear in data.
func FindCaves(data []byte, minSize int) []CodeCave {
	var caves []CodeCave

	start := -1

	for i, b := range data {
		if b == 0 {
			if start < 0 {
				start = i
			}

			continue
		}

		if start >= 0 && i-start >= minSize {
			caves = append(caves, CodeCave{
				FileOffset: start,
				Size:       i - start,
			})
		}

		start = -1
	}

	if start >= 0 && len(data)-start >= minSize {
		caves = append(caves, CodeCave{
			FileOffset: start,
			Size:       len(data) - start,
		})
	}

	sort.SliceStable(caves, func(i, j int) bool {
		return caves[i].Size > caves[j].Size
	})

	return caves
}

// FindCavesInRange is like FindCaves, but only considers data[start:end].
// Returned offsets are relative to data, not to start.
//
// An empty result is returned if the range is empty or does not fit
// inside data.
func FindCavesInRange(data []byte, start int, end int, minSize int) []CodeCave {
	if start < 0 || start >= len(data) || end > len(data) || start >= end {
		return nil
	}

	caves := FindCaves(data[start:end], minSize)

	for i := range caves {
		caves[i].FileOffset += start
	}

	return caves
}

// FindBestCave returns the largest cave that can hold neededSize bytes.
// The second return value is false if no such cave exists.
func FindBestCave(data []byte, neededSize int) (CodeCave, bool) {
	caves := FindCaves(data, neededSize)
	if len(caves) == 0 {
		return CodeCave{}, false
	}

	return caves[0], true
}

// LargestCaveSize returns the size of the largest run of zero bytes
// in data, or zero if data contains no zero bytes.
func LargestCaveSize(data []byte) int {
	caves := FindCaves(data, 1)
	if len(caves) == 0 {
		return 0
	}

	return caves[0].Size
}
