package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"gitlab.com/stephen-fox/bredcrumb/storage"
)

func (o *app) list(cfg *flags) error {
	var tracked []*storage.TrackedString
	var err error

	if cfg.list.tag != "" {
		tracked, err = o.store.ListByTag(cfg.list.tag)
	} else {
		tracked, err = o.store.List()
	}
	if err != nil {
		return err
	}

	if cfg.list.json {
		if tracked == nil {
			tracked = []*storage.TrackedString{}
		}

		raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(tracked, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode tracked strings - %w", err)
		}

		fmt.Fprintln(o.stdout, string(raw))

		return nil
	}

	if len(tracked) == 0 {
		fmt.Fprintln(o.stdout, "No tracked strings found.")
		return nil
	}

	table := tablewriter.NewWriter(o.stdout)
	table.SetHeader([]string{"ID", "Value", "Name", "Created", "Tags", "Patches"})

	for _, s := range tracked {
		table.Append([]string{
			s.ID.String(),
			s.Value,
			s.Name,
			s.CreatedAt.Format("2006-01-02 15:04"),
			strings.Join(s.Tags, ", "),
			fmt.Sprint(len(s.PatchedBinaries)),
		})
	}

	table.Render()

	return nil
}

func (o *app) show(cfg *flags) error {
	s, err := o.store.FindByID(cfg.show.identifier)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)

	bold.Fprint(o.stdout, "ID:      ")
	fmt.Fprintln(o.stdout, s.ID)
	bold.Fprint(o.stdout, "Value:   ")
	fmt.Fprintln(o.stdout, s.Value)
	if s.Name != "" {
		bold.Fprint(o.stdout, "Name:    ")
		fmt.Fprintln(o.stdout, s.Name)
	}
	bold.Fprint(o.stdout, "Tags:    ")
	fmt.Fprintln(o.stdout, strings.Join(s.Tags, ", "))
	bold.Fprint(o.stdout, "Created: ")
	fmt.Fprintf(o.stdout, "%s (%s)\n", s.CreatedAt.UTC().Format(time.RFC3339), humanize.RelTime(s.CreatedAt, o.now(), "ago", "from now"))

	if len(s.PatchedBinaries) == 0 {
		return nil
	}

	fmt.Fprintln(o.stdout)
	bold.Fprintln(o.stdout, "Patched Binaries:")

	for _, pb := range s.PatchedBinaries {
		fmt.Fprintf(o.stdout, "  - %s -> %s\n", pb.OriginalPath, pb.OutputPath)
		fmt.Fprintf(o.stdout, "    Format: %s, Strategy: %s\n", pb.BinaryFormat, pb.Strategy)
		if pb.VirtualAddress != nil {
			fmt.Fprintf(o.stdout, "    VA: 0x%X\n", *pb.VirtualAddress)
		}
		if pb.FileOffset != nil {
			fmt.Fprintf(o.stdout, "    File Offset: 0x%X\n", *pb.FileOffset)
		}
		fmt.Fprintf(o.stdout, "    Patched: %s\n", pb.PatchedAt.UTC().Format(time.RFC3339))
	}

	return nil
}
