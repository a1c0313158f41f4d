// Package storage persists tracked strings and their patch history
// in a JSON file.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const (
	appDirName       = "redteamstrings"
	databaseFileName = "database.json"
)

// ErrNotFound is returned when no tracked string matches a lookup.
var ErrNotFound = errors.New("tracked string not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPath returns the database path in the user's configuration
// directory, such as ~/.config/redteamstrings/database.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to find user config directory")
	}

	return filepath.Join(dir, appDirName, databaseFileName), nil
}

// Store reads and writes a database file. Every operation loads the
// file, so a Store does not cache records between calls.
type Store struct {
	// Path is the database file path.
	Path string

	// OptFs is the file system the database lives on. The OS file
	// system is used if nil.
	OptFs afero.Fs
}

func (o *Store) fs() afero.Fs {
	if o.OptFs == nil {
		return afero.NewOsFs()
	}

	return o.OptFs
}

// Load reads the database. A missing file is an empty database.
func (o *Store) Load() (*Database, error) {
	raw, err := afero.ReadFile(o.fs(), o.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDatabase(), nil
		}

		return nil, errors.Wrapf(err, "failed to read database %q", o.Path)
	}

	db := NewDatabase()

	err = json.Unmarshal(raw, db)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse database %q", o.Path)
	}

	return db, nil
}

// Save writes db as indented JSON, creating parent directories as
// needed.
func (o *Store) Save(db *Database) error {
	fs := o.fs()

	err := fs.MkdirAll(filepath.Dir(o.Path), 0o700)
	if err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	raw, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode database")
	}

	err = afero.WriteFile(fs, o.Path, raw, 0o600)
	if err != nil {
		return errors.Wrapf(err, "failed to write database %q", o.Path)
	}

	return nil
}

// Add appends tracked to the database.
func (o *Store) Add(tracked *TrackedString) error {
	db, err := o.Load()
	if err != nil {
		return err
	}

	db.Strings = append(db.Strings, tracked)

	return o.Save(db)
}

// FindByValue returns the tracked string whose value is value.
func (o *Store) FindByValue(value string) (*TrackedString, error) {
	db, err := o.Load()
	if err != nil {
		return nil, err
	}

	tracked, ok := lo.Find(db.Strings, func(s *TrackedString) bool {
		return s.Value == value
	})
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no string with value %q", value)
	}

	return tracked, nil
}

// FindByID returns the tracked string whose ID is idOrValue. Strings
// whose value equals idOrValue also match, so the argument may be
// either.
func (o *Store) FindByID(idOrValue string) (*TrackedString, error) {
	db, err := o.Load()
	if err != nil {
		return nil, err
	}

	id, parseErr := uuid.Parse(idOrValue)

	tracked, ok := lo.Find(db.Strings, func(s *TrackedString) bool {
		return (parseErr == nil && s.ID == id) || s.Value == idOrValue
	})
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no string with id or value %q", idOrValue)
	}

	return tracked, nil
}

// Update replaces the tracked string that has the same ID as tracked.
func (o *Store) Update(tracked *TrackedString) error {
	db, err := o.Load()
	if err != nil {
		return err
	}

	_, i, ok := lo.FindIndexOf(db.Strings, func(s *TrackedString) bool {
		return s.ID == tracked.ID
	})
	if !ok {
		return errors.Wrapf(ErrNotFound, "no string with id %s", tracked.ID)
	}

	db.Strings[i] = tracked

	return o.Save(db)
}

// List returns every tracked string in insertion order.
func (o *Store) List() ([]*TrackedString, error) {
	db, err := o.Load()
	if err != nil {
		return nil, err
	}

	return db.Strings, nil
}

// ListByTag returns the tracked strings that have a tag containing
// tag as a substring.
func (o *Store) ListByTag(tag string) ([]*TrackedString, error) {
	db, err := o.Load()
	if err != nil {
		return nil, err
	}

	return lo.Filter(db.Strings, func(s *TrackedString, _ int) bool {
		return lo.ContainsBy(s.Tags, func(t string) bool {
			return strings.Contains(t, tag)
		})
	}), nil
}

// RecordPatch appends record to the history of the string whose value
// is value.
func (o *Store) RecordPatch(value string, record *PatchedBinary) error {
	db, err := o.Load()
	if err != nil {
		return err
	}

	tracked, ok := lo.Find(db.Strings, func(s *TrackedString) bool {
		return s.Value == value
	})
	if !ok {
		return errors.Wrapf(ErrNotFound, "no string with value %q", value)
	}

	tracked.PatchedBinaries = append(tracked.PatchedBinaries, record)

	return o.Save(db)
}
