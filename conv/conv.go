// Package conv converts between raw bytes and the textual forms that
// tracking strings take: C-style hex arrays on the command line, YARA
// hex patterns and escaped source-code literals.
package conv

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// HexArrayToBytes converts an array of hexadecimal characters into
// a []byte. It ignores C comments, which allows the function to parse
// blobs of data mixed with comments.
//
// Bytes may be written as bare pairs ("41 42"), with a "0x" prefix
// ("0x41, 0x42") or as C string escapes ("\x41\x42").
func HexArrayToBytes(source io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read hex array - %w", err)
	}

	raw, err = stripComments(raw)
	if err != nil {
		return nil, err
	}

	var digits []byte

	for i := 0; i < len(raw); i++ {
		b := raw[i]

		if b == '0' && i+1 < len(raw) && (raw[i+1] == 'x' || raw[i+1] == 'X') {
			i++
			continue
		}

		if isHexChar(b) {
			digits = append(digits, b)
		}
	}

	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("hex array has an odd number of digits (%d)", len(digits))
	}

	out := make([]byte, len(digits)/2)

	_, err = hex.Decode(out, digits)
	if err != nil {
		return nil, fmt.Errorf("failed to hex-decode array - %w", err)
	}

	return out, nil
}

// HexStringToBytes is HexArrayToBytes for a string.
func HexStringToBytes(str string) ([]byte, error) {
	return HexArrayToBytes(strings.NewReader(str))
}

func stripComments(raw []byte) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, len(raw)))

	for len(raw) > 0 {
		switch {
		case bytes.HasPrefix(raw, []byte("//")):
			end := bytes.IndexByte(raw, '\n')
			if end < 0 {
				return out.Bytes(), nil
			}

			raw = raw[end:]
		case bytes.HasPrefix(raw, []byte("/*")):
			end := bytes.Index(raw[2:], []byte("*/"))
			if end < 0 {
				return nil, errors.New("failed to find corresponding '*/' end of comment")
			}

			raw = raw[2+end+2:]
		default:
			out.WriteByte(raw[0])
			raw = raw[1:]
		}
	}

	return out.Bytes(), nil
}

func isHexChar(b byte) bool {
	return (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') || (b >= '0' && b <= '9')
}
