package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"gitlab.com/stephen-fox/bredcrumb/asmkit"
	"gitlab.com/stephen-fox/bredcrumb/conv"
	"gitlab.com/stephen-fox/bredcrumb/patcher"
	"gitlab.com/stephen-fox/bredcrumb/storage"
)

var errNotPresent = errors.New("tracking string not present")

// defaultOutputPath returns "<stem>_patched<ext>" in the input file's
// directory.
func defaultOutputPath(inputPath string) string {
	dir, base := filepath.Split(inputPath)

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = base
		ext = ""
	}

	return filepath.Join(dir, stem+"_patched"+ext)
}

func trackingBytes(value string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(value), nil
	}

	b, err := conv.HexStringToBytes(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex string - %w", err)
	}

	return b, nil
}

func (o *app) patch(cfg *flags) error {
	strategy := o.config.Patch.Strategy
	if cfg.patch.strategy != "" {
		var err error
		strategy, err = patcher.ParseStrategy(cfg.patch.strategy)
		if err != nil {
			return err
		}
	}

	tracking, err := trackingBytes(cfg.patch.value, cfg.patch.hex)
	if err != nil {
		return err
	}

	outputPath := cfg.patch.output
	if outputPath == "" {
		outputPath = defaultOutputPath(cfg.patch.binary)
	}

	level.Debug(o.logger).Log("msg", "patching binary", "input", cfg.patch.binary,
		"output", outputPath, "strategy", strategy)

	p := &patcher.Patcher{
		OptLogger: o.logger,
		OptFs:     o.fs,
	}

	result, err := p.PatchFile(cfg.patch.binary, outputPath, tracking, strategy, cfg.patch.force)
	if err != nil {
		if patcher.IsRetryable(err) {
			return fmt.Errorf("%w (another strategy may succeed, see --strategy)", err)
		}

		return err
	}

	color.New(color.FgGreen).Fprintln(o.stdout, "Successfully patched binary!")
	fmt.Fprintf(o.stdout, "  Format:          %s\n", result.Format)
	fmt.Fprintf(o.stdout, "  Strategy:        %s\n", result.StrategyUsed)
	if result.Mapped {
		fmt.Fprintf(o.stdout, "  Virtual Address: 0x%X\n", result.VirtualAddress)
	}
	fmt.Fprintf(o.stdout, "  File Offset:     0x%X\n", result.FileOffset)
	fmt.Fprintf(o.stdout, "  Output:          %s\n", outputPath)

	record := storage.NewPatchRecord(cfg.patch.binary, outputPath, result, o.now())

	err = o.store.RecordPatch(string(tracking), record)
	switch {
	case err == nil:
		level.Debug(o.logger).Log("msg", "recorded patch in database", "database", o.store.Path)
	case errors.Is(err, storage.ErrNotFound):
		level.Info(o.logger).Log("msg", "string is not tracked, patch not recorded")
	default:
		return fmt.Errorf("failed to record patch - %w", err)
	}

	return nil
}

func (o *app) detect(cfg *flags) error {
	var failed int

	for _, path := range cfg.detect.binaries {
		data, err := afero.ReadFile(o.fs, path)
		if err != nil {
			level.Error(o.logger).Log("msg", "failed to read file", "path", path, "err", err)
			failed++
			continue
		}

		format, err := patcher.Detect(data)
		if err != nil {
			level.Error(o.logger).Log("msg", "failed to parse file", "path", path, "err", err)
			failed++
			continue
		}

		fmt.Fprintf(o.stdout, "%s: %s (%s)\n", path, format, humanize.IBytes(uint64(len(data))))
	}

	if failed > 0 {
		return fmt.Errorf("failed to detect the format of %d file(s)", failed)
	}

	return nil
}

func (o *app) caves(cfg *flags) error {
	if cfg.caves.minSize <= 0 {
		return fmt.Errorf("minimum cave size must be greater than zero (got %d)", cfg.caves.minSize)
	}

	data, err := afero.ReadFile(o.fs, cfg.caves.binary)
	if err != nil {
		return fmt.Errorf("failed to read %q - %w", cfg.caves.binary, err)
	}

	view, err := patcher.Inspect(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(o.stdout, "%s: %s, %s\n", cfg.caves.binary, view.Format, view.Machine)

	if view.Format == patcher.FormatMachOFat {
		fmt.Fprintln(o.stdout, "Universal binaries contain several images, extract one to list its caves.")
		return nil
	}

	classifiers := make(map[string]*asmkit.ZeroRunClassifier)

	table := tablewriter.NewWriter(o.stdout)
	table.SetHeader([]string{"Region", "Offset", "Size", "Virtual Address", "Kind"})

	caves := view.Caves(data, cfg.caves.minSize)
	for _, c := range caves {
		va := "-"
		if c.Mapped {
			va = fmt.Sprintf("0x%X", c.VirtualAddress)
		}

		kind := "data"

		region, _ := view.Region(c.SectionName)
		if region.Executable {
			kind = asmkit.RunAmbiguous.String()

			if view.X86Bits != 0 {
				classifier, ok := classifiers[region.Name]
				if !ok {
					classifier, err = asmkit.NewZeroRunClassifier(data[region.Offset:region.End()], asmkit.DisassemblerConfig{
						ArchConfig: asmkit.X86Config{Bits: view.X86Bits},
					})
					if err != nil {
						return err
					}

					classifiers[region.Name] = classifier
				}

				runKind, _ := classifier.Classify(c.FileOffset - int(region.Offset))
				kind = runKind.String()
			}
		}

		table.Append([]string{
			c.SectionName,
			fmt.Sprintf("0x%X", c.FileOffset),
			humanize.Comma(int64(c.Size)),
			va,
			kind,
		})
	}

	table.Render()

	fmt.Fprintf(o.stdout, "%d cave(s) of at least %d bytes\n", len(caves), cfg.caves.minSize)

	return nil
}

func (o *app) verify(cfg *flags) error {
	tracking, err := trackingBytes(cfg.verify.value, cfg.verify.hex)
	if err != nil {
		return err
	}

	data, err := afero.ReadFile(o.fs, cfg.verify.binary)
	if err != nil {
		return fmt.Errorf("failed to read %q - %w", cfg.verify.binary, err)
	}

	offsets := patcher.FindAll(data, tracking)
	if len(offsets) == 0 {
		return fmt.Errorf("%s: %w", cfg.verify.binary, errNotPresent)
	}

	color.New(color.FgGreen).Fprintf(o.stdout, "Found %d occurrence(s)\n", len(offsets))

	for _, offset := range offsets {
		fmt.Fprintf(o.stdout, "  0x%X\n", offset)
	}

	return nil
}
