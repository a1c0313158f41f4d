package token

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	gen := NewGenerator()

	str, err := gen.Generate(12)
	require.NoError(t, err)

	assert.Len(t, str, 12)
	assert.True(t, strings.HasPrefix(str, "RT"))

	for _, c := range str {
		assert.Contains(t, Alphanumeric, string(c))
	}
}

func TestGenerator_GenerateNoPrefix(t *testing.T) {
	gen := &Generator{}

	str, err := gen.Generate(100)
	require.NoError(t, err)
	assert.Len(t, str, 100)
	assert.Empty(t, strings.Trim(str, Alphanumeric))
}

func TestGenerator_GenerateHex(t *testing.T) {
	gen := &Generator{Prefix: "HX-"}

	str, err := gen.GenerateHex(35)
	require.NoError(t, err)

	assert.Len(t, str, 35)
	assert.Equal(t, "HX-", str[:3])
	assert.Empty(t, strings.Trim(str[3:], Hex))
}

func TestGenerator_LengthNotLargerThanPrefix(t *testing.T) {
	gen := &Generator{Prefix: "CANARY"}

	for _, length := range []int{-1, 0, 3, 6} {
		str, err := gen.Generate(length)
		require.NoError(t, err)
		assert.Equal(t, "CANARY", str)
	}
}

func TestGenerator_DiscardsBiasedBytes(t *testing.T) {
	// 248 and above are past the last full run of the 62 character
	// alphabet. 0 maps to 'A', 61 maps to '9'.
	gen := &Generator{
		OptRand: bytes.NewReader([]byte{250, 0, 255, 61, 248}),
	}

	str, err := gen.Generate(2)
	require.NoError(t, err)
	assert.Equal(t, "A9", str)
}

func TestGenerator_RandError(t *testing.T) {
	gen := &Generator{
		Prefix:  "RT",
		OptRand: iotest.ErrReader(errors.New("no entropy")),
	}

	_, err := gen.Generate(12)
	assert.ErrorContains(t, err, "no entropy")
}

func TestGenerator_Unique(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[string]struct{})

	for i := 0; i < 1000; i++ {
		str := gen.GenerateOrExit(DefaultLength)

		_, dup := seen[str]
		require.False(t, dup, str)

		seen[str] = struct{}{}
	}
}
