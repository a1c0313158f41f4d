// Package token generates tracking strings: a fixed prefix followed by
// random characters.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// DefaultPrefix is prepended to strings made by a Generator
	// whose Prefix is not set.
	DefaultPrefix = "RT"

	// DefaultLength is the total length of a generated string when
	// no length is specified.
	DefaultLength = 12

	// Alphanumeric is the alphabet used by Generate.
	Alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Hex is the alphabet used by GenerateHex.
	Hex = "0123456789ABCDEF"
)

// Generator makes tracking strings of the form Prefix + random suffix.
type Generator struct {
	// Prefix is the start of every generated string. An empty
	// Prefix is allowed.
	Prefix string

	// OptRand is the source of random bytes. crypto/rand's Reader
	// is used if nil.
	OptRand io.Reader
}

// NewGenerator returns a Generator that uses DefaultPrefix.
func NewGenerator() *Generator {
	return &Generator{Prefix: DefaultPrefix}
}

// GenerateOrExit calls Generate and calls DefaultExitFn if an error occurs.
func (o *Generator) GenerateOrExit(length int) string {
	str, err := o.Generate(length)
	if err != nil {
		DefaultExitFn(fmt.Errorf("token: failed to generate string of length %d - %w", length, err))
	}

	return str
}

// Generate returns a string of exactly length bytes made of the prefix
// followed by characters from Alphanumeric. If length is not larger
// than the prefix, the prefix is returned as-is.
func (o *Generator) Generate(length int) (string, error) {
	return o.generate(length, Alphanumeric)
}

// GenerateHex is Generate using the upper case Hex alphabet.
func (o *Generator) GenerateHex(length int) (string, error) {
	return o.generate(length, Hex)
}

func (o *Generator) generate(length int, alphabet string) (string, error) {
	suffixLen := length - len(o.Prefix)
	if suffixLen <= 0 {
		return o.Prefix, nil
	}

	suffix, err := o.randomChars(suffixLen, alphabet)
	if err != nil {
		return "", err
	}

	return o.Prefix + string(suffix), nil
}

// randomChars picks n characters from alphabet. Bytes that would bias
// the result towards the start of alphabet are discarded.
func (o *Generator) randomChars(n int, alphabet string) ([]byte, error) {
	r := o.OptRand
	if r == nil {
		r = rand.Reader
	}

	limit := 256 - 256%len(alphabet)

	result := make([]byte, 0, n)
	buf := make([]byte, n)

	for len(result) < n {
		_, err := io.ReadFull(r, buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read random bytes - %w", err)
		}

		for _, b := range buf {
			if int(b) >= limit {
				continue
			}

			result = append(result, alphabet[int(b)%len(alphabet)])
			if len(result) == n {
				break
			}
		}
	}

	return result, nil
}
