package patcher

import (
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gitlab.com/stephen-fox/bredcrumb/cave"
	"gitlab.com/stephen-fox/bredcrumb/iokit"
)

// region is a named file range that may contain a cave.
type region struct {
	name   string
	offset int
	size   int
}

func (o region) end() int {
	return o.offset + o.size
}

// location is what a format knows about a file offset.
type location struct {
	name   string
	mapped bool
	va     uint64
}

// complement returns the parts of [0, total) not covered by excluded.
func complement(total int, excluded []region) []region {
	sorted := append([]region(nil), excluded...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].offset < sorted[j].offset
	})

	var remaining []region

	at := 0

	for _, r := range sorted {
		if r.size <= 0 {
			continue
		}

		if r.offset > at {
			remaining = append(remaining, region{offset: at, size: min(r.offset, total) - at})
		}

		at = max(at, r.end())
		if at >= total {
			return remaining
		}
	}

	if at < total {
		remaining = append(remaining, region{offset: at, size: total - at})
	}

	return remaining
}

// bestCaveIn returns the largest first-per-region cave across regions.
// Regions that do not fit inside data are skipped. The earliest region
// wins ties.
func bestCaveIn(data []byte, regions []region, needed int, logger log.Logger) (cave.CodeCave, bool) {
	var best cave.CodeCave
	found := false

	for _, r := range regions {
		if r.size <= 0 || r.offset < 0 || r.end() > len(data) {
			level.Debug(logger).Log("msg", "skipping cave region outside of file",
				"region", r.name, "offset", r.offset, "size", r.size)
			continue
		}

		caves := cave.FindCavesInRange(data, r.offset, r.end(), needed)
		if len(caves) == 0 {
			continue
		}

		c := caves[0]
		c.SectionName = r.name

		level.Debug(logger).Log("msg", "found cave candidate", "region", r.name,
			"offset", c.FileOffset, "size", c.Size)

		if !found || c.Size > best.Size {
			best = c
			found = true
		}
	}

	return best, found
}

// patchCave writes the tracking string into the largest cave from the
// candidate regions, falling back to the fallback regions when the
// candidates have no cave that is large enough.
func patchCave(in patchInput, candidates []region, fallback []region, locate func(offset int) location) ([]byte, Result, error) {
	needed := in.needed()

	c, ok := bestCaveIn(in.data, candidates, needed, in.logger)
	if !ok {
		level.Debug(in.logger).Log("msg", "no cave in candidate regions, scanning the rest of the file",
			"needed", needed)

		c, ok = bestCaveIn(in.data, fallback, needed, in.logger)
	}

	if !ok {
		found := 0
		for _, r := range fallback {
			if r.offset >= 0 && r.end() <= len(in.data) {
				found = max(found, cave.LargestCaveSize(in.data[r.offset:r.end()]))
			}
		}

		return nil, Result{}, &NoCaveFoundError{
			Needed: needed,
			Found:  found,
		}
	}

	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	err = iokit.OverwriteAt(in.data, c.FileOffset, payload)
	if err != nil {
		return nil, Result{}, err
	}

	loc := locate(c.FileOffset)

	name := c.SectionName
	if name == "" {
		name = loc.name
	}

	if name == "" {
		name = "file"
	}

	return in.data, Result{
		StrategyUsed:   fmt.Sprintf("cave (%s)", name),
		Mapped:         loc.mapped,
		VirtualAddress: loc.va,
		FileOffset:     uint64(c.FileOffset),
	}, nil
}
