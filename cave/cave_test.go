package cave

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCaves(t *testing.T) {
	data := []byte{0x41, 0x00, 0x00, 0x00, 0x00, 0x42, 0x00, 0x00, 0x43}

	caves := FindCaves(data, 2)

	require.Len(t, caves, 2)
	assert.Equal(t, CodeCave{FileOffset: 1, Size: 4}, caves[0])
	assert.Equal(t, CodeCave{FileOffset: 6, Size: 2}, caves[1])
}

func TestFindCaves_RunAtBoundaries(t *testing.T) {
	data := []byte{0x00, 0x00, 0x41, 0x00, 0x00, 0x00}

	caves := FindCaves(data, 1)

	require.Len(t, caves, 2)
	assert.Equal(t, CodeCave{FileOffset: 3, Size: 3}, caves[0])
	assert.Equal(t, CodeCave{FileOffset: 0, Size: 2}, caves[1])
}

func TestFindCaves_TiesKeepEncounterOrder(t *testing.T) {
	data := []byte{0x00, 0x00, 0x41, 0x00, 0x00, 0x41, 0x00, 0x00, 0x00, 0x41, 0x00, 0x00}

	caves := FindCaves(data, 2)

	require.Len(t, caves, 4)
	assert.Equal(t, 6, caves[0].FileOffset)

	var offsets []int
	for _, c := range caves[1:] {
		offsets = append(offsets, c.FileOffset)
	}
	assert.Equal(t, []int{0, 3, 10}, offsets)
}

func TestFindCaves_NoZeroBytes(t *testing.T) {
	assert.Empty(t, FindCaves(bytes.Repeat([]byte{0xff}, 64), 1))
	assert.Empty(t, FindCaves(nil, 1))
}

func TestFindCavesInRange(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x41, 0x00, 0x00, 0x42, 0x00, 0x00, 0x00, 0x00, 0x43, 0x00}

	const start, end = 3, 11

	inRange := FindCavesInRange(data, start, end, 2)

	var want []CodeCave
	for _, c := range FindCaves(data, 2) {
		if c.FileOffset >= start && c.End() <= end {
			want = append(want, c)
		}
	}

	assert.Equal(t, want, inRange)
	require.Len(t, inRange, 2)
	assert.Equal(t, CodeCave{FileOffset: 7, Size: 4}, inRange[0])
	assert.Equal(t, CodeCave{FileOffset: 4, Size: 2}, inRange[1])
}

func TestFindCavesInRange_ClipsRunsAtRangeEdges(t *testing.T) {
	data := []byte{0x41, 0x00, 0x00, 0x00, 0x00, 0x42}

	caves := FindCavesInRange(data, 2, 4, 1)

	require.Len(t, caves, 1)
	assert.Equal(t, CodeCave{FileOffset: 2, Size: 2}, caves[0])
}

func TestFindCavesInRange_BadRange(t *testing.T) {
	data := make([]byte, 16)

	assert.Empty(t, FindCavesInRange(data, 16, 16, 1))
	assert.Empty(t, FindCavesInRange(data, 0, 17, 1))
	assert.Empty(t, FindCavesInRange(data, 8, 8, 1))
	assert.Empty(t, FindCavesInRange(data, 9, 4, 1))
}

func TestFindBestCave(t *testing.T) {
	data := []byte{0x41, 0x00, 0x00, 0x42, 0x00, 0x00, 0x00, 0x00, 0x43}

	c, ok := FindBestCave(data, 3)

	require.True(t, ok)
	assert.Equal(t, 4, c.FileOffset)
	assert.Equal(t, 4, c.Size)

	_, ok = FindBestCave(data, 5)
	assert.False(t, ok)
}

func TestLargestCaveSize(t *testing.T) {
	assert.Equal(t, 4, LargestCaveSize([]byte{0x41, 0x00, 0x00, 0x42, 0x00, 0x00, 0x00, 0x00}))
	assert.Equal(t, 0, LargestCaveSize([]byte{0x41, 0x42}))
}
