package storage

import (
	"time"

	"github.com/google/uuid"
	"gitlab.com/stephen-fox/bredcrumb/patcher"
)

// CurrentVersion is the database schema version written by Save.
const CurrentVersion = 1

// Database is the on-disk record of every tracked string.
type Database struct {
	Version int              `json:"version"`
	Strings []*TrackedString `json:"strings"`
}

// NewDatabase returns an empty database at CurrentVersion.
func NewDatabase() *Database {
	return &Database{
		Version: CurrentVersion,
		Strings: []*TrackedString{},
	}
}

// TrackedString is a generated or custom tracking string and the
// binaries it was written to.
type TrackedString struct {
	ID              uuid.UUID        `json:"id"`
	Value           string           `json:"value"`
	Name            string           `json:"name,omitempty"`
	Tags            []string         `json:"tags"`
	CreatedAt       time.Time        `json:"created_at"`
	PatchedBinaries []*PatchedBinary `json:"patched_binaries"`
}

// NewTrackedString returns a TrackedString with a random ID.
func NewTrackedString(value string, name string, tags []string, createdAt time.Time) *TrackedString {
	if tags == nil {
		tags = []string{}
	}

	return &TrackedString{
		ID:              uuid.New(),
		Value:           value,
		Name:            name,
		Tags:            tags,
		CreatedAt:       createdAt.UTC(),
		PatchedBinaries: []*PatchedBinary{},
	}
}

// PatchedBinary records one successful patch.
type PatchedBinary struct {
	OriginalPath string         `json:"original_path"`
	OutputPath   string         `json:"output_path"`
	BinaryFormat patcher.Format `json:"binary_format"`
	Strategy     string         `json:"strategy"`

	// VirtualAddress is nil when the string is not mapped.
	VirtualAddress *uint64 `json:"virtual_address"`
	FileOffset     *uint64 `json:"file_offset"`

	PatchedAt time.Time `json:"patched_at"`
}

// NewPatchRecord converts a patch result into a PatchedBinary.
func NewPatchRecord(originalPath string, outputPath string, result patcher.Result, patchedAt time.Time) *PatchedBinary {
	record := &PatchedBinary{
		OriginalPath: originalPath,
		OutputPath:   outputPath,
		BinaryFormat: result.Format,
		Strategy:     result.StrategyUsed,
		FileOffset:   &result.FileOffset,
		PatchedAt:    patchedAt.UTC(),
	}

	if result.Mapped {
		va := result.VirtualAddress
		record.VirtualAddress = &va
	}

	return record
}
