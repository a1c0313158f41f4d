package patcher

import (
	"bytes"
)

// Verify returns true if tracking occurs anywhere in data as
// a contiguous byte sequence.
func Verify(data []byte, tracking []byte) bool {
	return bytes.Contains(data, tracking)
}

// FindAll returns the offset of every occurrence of tracking in data,
// including overlapping ones.
func FindAll(data []byte, tracking []byte) []int {
	if len(tracking) == 0 {
		return nil
	}

	var offsets []int

	at := 0

	for {
		i := bytes.Index(data[at:], tracking)
		if i < 0 {
			return offsets
		}

		offsets = append(offsets, at+i)
		at += i + 1
	}
}
