package patcher

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when the input is not a PE,
	// ELF or Mach-O image.
	ErrUnsupportedFormat = errors.New("unsupported binary format")

	// ErrStringTooLong is returned when the growth needed to store
	// a tracking string does not fit in the container's size fields.
	ErrStringTooLong = errors.New("tracking string is too long for this container")

	// ErrVerificationFailed is returned when the patched output does
	// not contain the tracking string. It indicates a bug in a patch
	// strategy.
	ErrVerificationFailed = errors.New("tracking string not found in patched output")

	// ErrOutputExists is returned by PatchFile when the output file
	// already exists and force was not set.
	ErrOutputExists = errors.New("output file already exists")
)

// ReadError is returned when the input file cannot be read.
type ReadError struct {
	Path string
	Err  error
}

func (o *ReadError) Error() string {
	return fmt.Sprintf("failed to read %q - %s", o.Path, o.Err)
}

func (o *ReadError) Unwrap() error {
	return o.Err
}

// WriteError is returned when the output file cannot be written.
type WriteError struct {
	Path string
	Err  error
}

func (o *WriteError) Error() string {
	return fmt.Sprintf("failed to write %q - %s", o.Path, o.Err)
}

func (o *WriteError) Unwrap() error {
	return o.Err
}

// ParseError is returned when the input has a recognized magic
// number, but its headers are malformed.
type ParseError struct {
	// Format is the container family the parser expected,
	// such as "PE".
	Format string
	Err    error
}

func (o *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s headers - %s", o.Format, o.Err)
}

func (o *ParseError) Unwrap() error {
	return o.Err
}

// NoCaveFoundError is returned by the cave strategy when no run of
// zero bytes is large enough for the tracking string and its
// terminator.
type NoCaveFoundError struct {
	// Needed is the tracking string length plus one.
	Needed int

	// Found is the size of the largest cave that was available.
	Found int
}

func (o *NoCaveFoundError) Error() string {
	return fmt.Sprintf("no code cave large enough: needed %d bytes, largest is %d bytes",
		o.Needed, o.Found)
}

// PatchFailedError is returned when a structural precondition of
// a strategy is not met.
type PatchFailedError struct {
	Reason string
}

func (o *PatchFailedError) Error() string {
	return "patch failed: " + o.Reason
}

func patchFailed(format string, a ...interface{}) error {
	return &PatchFailedError{
		Reason: fmt.Sprintf(format, a...),
	}
}
