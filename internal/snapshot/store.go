// Package snapshot implements the on-disk snapshot store: one immutable
// YYYY-MM-DD.json file per trading date, written by atomic rename.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

const fileExt = ".json"

// Store implements domain.SnapshotStore on a local directory.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a snapshot directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file location of the snapshot for date.
func (s *Store) Path(date time.Time) string {
	return filepath.Join(s.dir, FileName(date))
}

// FileName is the canonical snapshot file name for date.
func FileName(date time.Time) string {
	return domain.FormatDate(date) + fileExt
}

// ParseFileName extracts the date from a canonical snapshot file name.
// Temp files, resource forks and anything else are rejected.
func ParseFileName(name string) (time.Time, bool) {
	if len(name) != len(domain.DateLayout)+len(fileExt) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	d, err := domain.ParseDate(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Dates lists every date with a snapshot file, ascending.
func (s *Store) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list %s: %w", s.dir, err)
	}

	var dates []time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := ParseFileName(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Latest returns the most recent snapshot date, if any.
func (s *Store) Latest() (time.Time, bool, error) {
	dates, err := s.Dates()
	if err != nil {
		return time.Time{}, false, err
	}
	if len(dates) == 0 {
		return time.Time{}, false, nil
	}
	return dates[len(dates)-1], true, nil
}

// Has reports whether a valid snapshot exists for date. The file is fully
// decoded, so a damaged trade list counts as absent and goes back into the
// backlog. Only I/O errors other than a missing file are returned.
func (s *Store) Has(date time.Time) (bool, error) {
	data, err := os.ReadFile(s.Path(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("snapshot: has %s: %w", domain.FormatDate(date), err)
	}
	snap, err := Decode(data, date)
	if err != nil {
		return false, nil
	}
	return snap.Complete && snap.Date.Equal(domain.Day(date)), nil
}

// Read loads the snapshot for date.
func (s *Store) Read(date time.Time) (domain.Snapshot, error) {
	data, err := os.ReadFile(s.Path(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, fmt.Errorf("snapshot: read %s: %w", domain.FormatDate(date), domain.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("snapshot: read %s: %w", domain.FormatDate(date), err)
	}
	return Decode(data, date)
}

// Write atomically persists a complete snapshot. Incomplete snapshots are
// rejected so a truncated fetch can never masquerade as a real day.
func (s *Store) Write(snap domain.Snapshot) error {
	if !snap.Complete {
		return fmt.Errorf("snapshot: write %s: %w", domain.FormatDate(snap.Date), domain.ErrIncompleteSnapshot)
	}
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return s.writeAtomic(snap.Date, data)
}

// WriteRaw validates an encoded payload for date and stores it atomically.
func (s *Store) WriteRaw(date time.Time, payload []byte) error {
	snap, err := Decode(payload, date)
	if err != nil {
		return err
	}
	if !snap.Date.Equal(domain.Day(date)) {
		return fmt.Errorf("snapshot: write %s: payload is dated %s", domain.FormatDate(date), domain.FormatDate(snap.Date))
	}
	if !snap.Complete {
		return fmt.Errorf("snapshot: write %s: %w", domain.FormatDate(date), domain.ErrIncompleteSnapshot)
	}
	return s.writeAtomic(date, payload)
}

// Remove deletes the snapshot for date. Removing a missing file is not an
// error.
func (s *Store) Remove(date time.Time) error {
	if err := os.Remove(s.Path(date)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("snapshot: remove %s: %w", domain.FormatDate(date), err)
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory, fsyncs it and
// renames it over the final path. Readers see either the old file or the
// complete new one.
func (s *Store) writeAtomic(date time.Time, data []byte) error {
	name := domain.FormatDate(date)

	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: write temp for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync temp for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp for %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("snapshot: chmod temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, s.Path(date)); err != nil {
		return fmt.Errorf("snapshot: rename %s: %w", name, err)
	}
	committed = true
	return nil
}

var _ domain.SnapshotStore = (*Store)(nil)

// Backlog returns every date in rng that still needs fetching, ascending.
// With overwrite set, every date in rng is returned.
func (s *Store) Backlog(rng domain.DateRange, overwrite bool) ([]time.Time, error) {
	var backlog []time.Time
	for _, d := range rng.Days() {
		if overwrite {
			backlog = append(backlog, d)
			continue
		}
		ok, err := s.Has(d)
		if err != nil {
			return nil, fmt.Errorf("snapshot: backlog %s: %w", domain.FormatDate(d), err)
		}
		if !ok {
			backlog = append(backlog, d)
		}
	}
	return backlog, nil
}

// WalkFunc receives each snapshot in date order. A non-nil err means the
// file for date could not be decoded; returning an error stops the walk.
type WalkFunc func(date time.Time, snap domain.Snapshot, err error) error

// Walk visits every snapshot in ascending date order, holding one decoded
// file in memory at a time. It returns domain.ErrEmptyStore when the store
// has no snapshot files.
func (s *Store) Walk(fn WalkFunc) error {
	dates, err := s.Dates()
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return fmt.Errorf("snapshot: walk %s: %w", s.dir, domain.ErrEmptyStore)
	}
	for _, d := range dates {
		snap, readErr := s.Read(d)
		if err := fn(d, snap, readErr); err != nil {
			return err
		}
	}
	return nil
}
