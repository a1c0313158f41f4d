package iokit

import (
	"fmt"
)

// AlignUp rounds n up to the next multiple of alignment.
// Alignments of zero or one return n unchanged.
func AlignUp(n int, alignment int) int {
	if alignment <= 1 {
		return n
	}

	rem := n % alignment
	if rem == 0 {
		return n
	}

	return n + alignment - rem
}

// AlignUp64 is AlignUp for uint64 values.
func AlignUp64(n uint64, alignment uint64) uint64 {
	if alignment <= 1 {
		return n
	}

	rem := n % alignment
	if rem == 0 {
		return n
	}

	return n + alignment - rem
}

// InsertAt returns a new slice containing data with insert placed at
// offset. Bytes that previously started at offset follow insert.
// An offset equal to len(data) appends.
func InsertAt(data []byte, offset int, insert []byte) ([]byte, error) {
	if offset < 0 || offset > len(data) {
		return nil, fmt.Errorf("insert offset %d is outside of data (length %d)",
			offset, len(data))
	}

	out := make([]byte, 0, len(data)+len(insert))
	out = append(out, data[:offset]...)
	out = append(out, insert...)
	out = append(out, data[offset:]...)

	return out, nil
}

// OverwriteAt copies b into data at offset, in place.
// It fails rather than grow data.
func OverwriteAt(data []byte, offset int, b []byte) error {
	if offset < 0 || offset+len(b) > len(data) {
		return fmt.Errorf("write of %d bytes at offset %d exceeds data (length %d)",
			len(b), offset, len(data))
	}

	copy(data[offset:], b)

	return nil
}
