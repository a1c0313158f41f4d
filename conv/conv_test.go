package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexStringToBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected []byte
	}{
		{input: "41 42 43", expected: []byte("ABC")},
		{input: "414243", expected: []byte("ABC")},
		{input: "0x41,0X42, 0x43", expected: []byte("ABC")},
		{input: `\x41\x42\x43`, expected: []byte("ABC")},
		{input: "41 /* skip 42 */ 43", expected: []byte("AC")},
		{input: "00 ff // trailing", expected: []byte{0x00, 0xff}},
	}

	for _, test := range tests {
		b, err := HexStringToBytes(test.input)
		require.NoError(t, err, test.input)
		assert.Equal(t, test.expected, b, test.input)
	}
}

func TestHexStringToBytes_Errors(t *testing.T) {
	_, err := HexStringToBytes("414")
	assert.Error(t, err)

	_, err = HexStringToBytes("41 /* 42")
	assert.Error(t, err)
}

func TestEscape_NonPrintable(t *testing.T) {
	assert.Equal(t, `a\001b`, CEscapes.Escape("a\x01b"))
	assert.Equal(t, `\303\251`, CEscapes.Escape("é"))
	assert.Equal(t, `\xC3\xA9`, RustByteEscapes.Escape("é"))
	assert.Equal(t, "é", JavaEscapes.Escape("é"))
	assert.Equal(t, `a\0b`, JavaEscapes.Escape("a\x00b"))
	assert.Equal(t, `a\x00b`, GoEscapes.Escape("a\x00b"))
}

func TestEscape_PowerShellKeepsBackslash(t *testing.T) {
	assert.Equal(t, `C:\tools`, PowerShellEscapes.Escape(`C:\tools`))
	assert.Equal(t, "``n", PowerShellEscapes.Escape("`n"))
}
