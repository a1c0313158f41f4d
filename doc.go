// Package bredcrumb injects tracking strings into compiled executables.
//
// A tracking string is a unique marker that red teams place inside the
// binaries they deploy so that defenders can later attribute those
// binaries to an exercise. bredcrumb writes the string into PE, ELF and
// Mach-O images without rebuilding them, either into an existing run
// of zero bytes (a code cave), into newly added or extended file space,
// or onto the end of the file as an overlay.
//
// APIs are separated into subpackages, and documented accordingly.
// The patcher subpackage is the main entry point. The cmd/bredcrumb
// tool wraps it together with string generation, YARA rule output,
// source snippets and a record of every patched binary.
package bredcrumb
