// Package patcher injects tracking strings into PE, ELF and Mach-O
// executables.
//
// PatchBuffer is a pure transform from input bytes to output bytes and
// never touches the file system. PatchFile wraps it with file I/O.
//
// Four strategies are available. Cave writes into an existing run of
// zero bytes and never changes the file's length. Extend and Section
// grow the file, updating the minimal set of header fields needed for
// the new bytes to be found again. Overlay appends to the end of the
// file without touching any header, and works for every supported
// format.
//
// Universal (fat) Mach-O binaries are detected but not patched.
package patcher

import (
	"bytes"
	"errors"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
)

// patchInput is the state shared by every strategy.
type patchInput struct {
	// data is a private copy of the input. Strategies may modify it.
	data     []byte
	tracking []byte
	logger   log.Logger
}

// needed is the number of bytes the string occupies, including
// its NUL terminator.
func (o patchInput) needed() int {
	return len(o.tracking) + 1
}

// Patcher injects tracking strings. The zero value is ready to use:
// it logs nothing and uses the OS file system.
type Patcher struct {
	// OptLogger receives debug level messages about the decisions
	// each strategy makes.
	OptLogger log.Logger

	// OptFs is the file system used by PatchFile.
	OptFs afero.Fs
}

func (o *Patcher) logger() log.Logger {
	if o.OptLogger == nil {
		return log.NewNopLogger()
	}

	return o.OptLogger
}

func (o *Patcher) fs() afero.Fs {
	if o.OptFs == nil {
		return afero.NewOsFs()
	}

	return o.OptFs
}

// PatchBuffer is shorthand for a zero-value Patcher's PatchBuffer.
func PatchBuffer(data []byte, tracking []byte, strategy Strategy) ([]byte, Result, error) {
	return (&Patcher{}).PatchBuffer(data, tracking, strategy)
}

// PatchFile is shorthand for a zero-value Patcher's PatchFile.
func PatchFile(inputPath string, outputPath string, tracking []byte, strategy Strategy, force bool) (Result, error) {
	return (&Patcher{}).PatchFile(inputPath, outputPath, tracking, strategy, force)
}

// PatchBuffer writes tracking, followed by a NUL byte, into a copy of
// data using the specified strategy. data is not modified.
//
// The returned buffer is guaranteed to contain tracking. Errors are
// one of the kinds in errors.go and are never retried with another
// strategy.
func (o *Patcher) PatchBuffer(data []byte, tracking []byte, strategy Strategy) ([]byte, Result, error) {
	logger := o.logger()

	if len(tracking) == 0 {
		return nil, Result{}, patchFailed("tracking string is empty")
	}

	p, err := parse(data)
	if err != nil {
		return nil, Result{}, err
	}

	level.Debug(logger).Log("msg", "detected format", "format", p.format.Tag(),
		"size", len(data), "strategy", strategy)

	switch p.format {
	case FormatUnknown:
		return nil, Result{}, ErrUnsupportedFormat
	case FormatMachOFat:
		return nil, Result{}, patchFailed("universal (fat) Mach-O binaries are not supported, " +
			"extract a single architecture first")
	}

	in := patchInput{
		data:     bytes.Clone(data),
		tracking: tracking,
		logger:   logger,
	}

	var out []byte
	var result Result

	if strategy == StrategyOverlay {
		out, result, err = patchOverlay(in)
	} else {
		switch p.format.family() {
		case familyPE:
			out, result, err = patchPE(p.pe, in, strategy)
		case familyELF:
			out, result, err = patchELF(p.elf, in, strategy)
		case familyMachO:
			out, result, err = patchMachO(p.macho, in, strategy)
		default:
			err = ErrUnsupportedFormat
		}
	}
	if err != nil {
		return nil, Result{}, err
	}

	result.Format = p.format

	if !Verify(out, tracking) {
		return nil, Result{}, ErrVerificationFailed
	}

	level.Debug(logger).Log("msg", "patched", "strategy_used", result.StrategyUsed,
		"file_offset", result.FileOffset, "mapped", result.Mapped,
		"virtual_address", result.VirtualAddress, "new_size", len(out))

	return out, result, nil
}

// PatchFile reads inputPath, patches it with PatchBuffer and writes
// the result to outputPath using the input file's permissions.
//
// If outputPath already exists, ErrOutputExists is returned unless
// force is true. Nothing is written if the patch fails. A failed write
// may leave a partial output file behind.
func (o *Patcher) PatchFile(inputPath string, outputPath string, tracking []byte, strategy Strategy, force bool) (Result, error) {
	fs := o.fs()

	if !force {
		exists, err := afero.Exists(fs, outputPath)
		if err != nil {
			return Result{}, &WriteError{Path: outputPath, Err: err}
		}

		if exists {
			return Result{}, &WriteError{Path: outputPath, Err: ErrOutputExists}
		}
	}

	info, err := fs.Stat(inputPath)
	if err != nil {
		return Result{}, &ReadError{Path: inputPath, Err: err}
	}

	data, err := afero.ReadFile(fs, inputPath)
	if err != nil {
		return Result{}, &ReadError{Path: inputPath, Err: err}
	}

	out, result, err := o.PatchBuffer(data, tracking, strategy)
	if err != nil {
		return Result{}, err
	}

	err = afero.WriteFile(fs, outputPath, out, info.Mode().Perm())
	if err != nil {
		return Result{}, &WriteError{Path: outputPath, Err: err}
	}

	level.Info(o.logger()).Log("msg", "wrote patched binary", "input", inputPath,
		"output", outputPath, "strategy_used", result.StrategyUsed)

	return result, nil
}

// IsRetryable returns true if err means that a different strategy or
// a shorter string may succeed where the failed attempt did not.
func IsRetryable(err error) bool {
	var noCave *NoCaveFoundError
	var failed *PatchFailedError

	return errors.As(err, &noCave) || errors.As(err, &failed) || errors.Is(err, ErrStringTooLong)
}
