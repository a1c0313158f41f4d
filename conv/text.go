package conv

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ToHexPattern formats b as space separated upper case hex pairs,
// which is the body of a YARA hex string.
func ToHexPattern(b []byte) string {
	var sb strings.Builder

	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}

		fmt.Fprintf(&sb, "%02X", c)
	}

	return sb.String()
}

// EscapeRule describes how a language escapes a double quoted
// string literal.
type EscapeRule struct {
	// Table maps characters to their escaped form.
	Table map[rune]string

	// OptOther formats characters that are neither in Table nor
	// printable ASCII. Each UTF-8 byte of the character is passed
	// separately. When nil, such characters are written unchanged.
	OptOther func(b byte) string
}

// Escape rules for the languages that snippets are generated in.
var (
	CEscapes = EscapeRule{
		Table: escapeTable(`\`, map[rune]string{
			'"': `"`, '\\': `\`, '\n': "n", '\r': "r", '\t': "t", 0: "000",
		}),
		// Octal escapes are bounded to three digits, unlike \x.
		OptOther: func(b byte) string { return fmt.Sprintf("\\%03o", b) },
	}

	RustByteEscapes = EscapeRule{
		Table: escapeTable(`\`, map[rune]string{
			'"': `"`, '\\': `\`, '\n': "n", '\r': "r", '\t': "t",
		}),
		OptOther: func(b byte) string { return fmt.Sprintf("\\x%02X", b) },
	}

	GoEscapes = EscapeRule{
		Table: escapeTable(`\`, map[rune]string{
			'"': `"`, '\\': `\`, '\n': "n", '\r': "r", '\t': "t", 0: "x00",
		}),
	}

	// JavaEscapes also serves C# and JavaScript.
	JavaEscapes = EscapeRule{
		Table: escapeTable(`\`, map[rune]string{
			'"': `"`, '\\': `\`, '\n': "n", '\r': "r", '\t': "t", 0: "0",
		}),
	}

	PythonEscapes = EscapeRule{
		Table: escapeTable(`\`, map[rune]string{
			'"': `"`, '\\': `\`, '\n': "n", '\r': "r", '\t': "t", 0: "x00",
		}),
	}

	// YaraEscapes covers YARA text strings and meta values.
	YaraEscapes = EscapeRule{
		Table: escapeTable(`\`, map[rune]string{
			'"': `"`, '\\': `\`, '\n': "n", '\r': "r", '\t': "t",
		}),
	}

	PowerShellEscapes = EscapeRule{
		Table: escapeTable("`", map[rune]string{
			'"': `"`, '`': "`", '$': "$", '\n': "n", '\r': "r", '\t': "t", 0: "0",
		}),
	}
)

func escapeTable(escapeChar string, m map[rune]string) map[rune]string {
	table := make(map[rune]string, len(m))

	for r, suffix := range m {
		table[r] = escapeChar + suffix
	}

	return table
}

// Escape escapes str for use inside a double quoted literal.
func (o EscapeRule) Escape(str string) string {
	var sb strings.Builder

	for _, r := range str {
		if escaped, ok := o.Table[r]; ok {
			sb.WriteString(escaped)
			continue
		}

		if (r >= 0x20 && r < 0x7f) || o.OptOther == nil {
			sb.WriteRune(r)
			continue
		}

		var buf [utf8.UTFMax]byte

		n := utf8.EncodeRune(buf[:], r)

		for _, b := range buf[:n] {
			sb.WriteString(o.OptOther(b))
		}
	}

	return sb.String()
}
