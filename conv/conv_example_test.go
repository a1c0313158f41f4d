package conv

import (
	"bytes"
	"fmt"
	"log"
)

func ExampleHexArrayToBytes() {
	cArrayContents := []byte(
		`/* tracking string "RT-a1" */
"\x52\x54"   // RT
"\x2d"       // -
0x61, 0x31   // a1
`)

	b, err := HexArrayToBytes(bytes.NewReader(cArrayContents))
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Printf("%q\n", b)

	// Output: "RT-a1"
}

func ExampleToHexPattern() {
	fmt.Println(ToHexPattern([]byte("ABC")))

	// Output: 41 42 43
}

func ExampleEscapeRule_Escape() {
	str := "say \"hi\"\t$HOME\\x"

	fmt.Println(CEscapes.Escape(str))
	fmt.Println(PowerShellEscapes.Escape(str))

	// Output:
	// say \"hi\"\t$HOME\\x
	// say `"hi`"`t`$HOME\x
}
