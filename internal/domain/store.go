package domain

import "time"

// SnapshotStore persists one immutable snapshot per trading date.
type SnapshotStore interface {
	// Has reports whether a valid (complete, parseable) snapshot exists.
	Has(date time.Time) (bool, error)
	// Write atomically persists a complete snapshot, replacing any previous
	// file for the same date.
	Write(snap Snapshot) error
	// WriteRaw validates an encoded snapshot payload and atomically stores it.
	WriteRaw(date time.Time, payload []byte) error
	// Read loads the snapshot for date. Returns ErrNotFound when absent.
	Read(date time.Time) (Snapshot, error)
	// Path returns the file location of the snapshot for date.
	Path(date time.Time) string
	// Dates lists every date with a snapshot file, ascending.
	Dates() ([]time.Time, error)
}
