package snippet_test

import (
	"fmt"
	"log"

	"gitlab.com/stephen-fox/bredcrumb/snippet"
)

func ExampleGenerate() {
	lang, err := snippet.ParseLanguage("py")
	if err != nil {
		log.Fatalln(err)
	}

	code, err := snippet.Generate(lang, "RT-canary-01")
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Print(code)

	// Output:
	// # Tracking string - DO NOT REMOVE
	// TRACKING_STRING = "RT-canary-01"
	// TRACKING_STRING_LEN = 12
}

func ExampleGenerate_go() {
	code, err := snippet.Generate(snippet.Go, "RT-\"quoted\"")
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Print(code)

	// Output:
	// package main
	//
	// // Tracking string - DO NOT REMOVE
	// // This string is used for binary attribution/tracking
	//
	// var trackingString = "RT-\"quoted\""
	//
	// // init keeps the string in the binary.
	// func init() {
	// 	_ = trackingString
	// }
}
