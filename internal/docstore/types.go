package docstore

import "time"

// Record is a single version of a logical item. Records are append-only:
// once ValidTo is set the row is never touched again.
type Record struct {
	ID          string
	Source      string
	Identity    string
	Collection  string
	Title       string
	Content     string
	Fingerprint string
	ValidFrom   time.Time
	ValidTo     *time.Time
	// SupersededBy points at the record that replaced this one. It stays
	// nil on a retracted (repealed) record, which is terminal.
	SupersededBy *string
	LastChecked  time.Time
}

// Current reports whether this record is the currently valid version.
func (r *Record) Current() bool { return r.ValidTo == nil }

// ChangeKind classifies a journal entry.
type ChangeKind string

const (
	// ChangeCurrent marks a record that became the current version.
	ChangeCurrent ChangeKind = "current"
	// ChangeRetired marks a record whose validity ended.
	ChangeRetired ChangeKind = "retired"
)

// Change is one entry of the append-only change journal consumed by the
// indexer.
type Change struct {
	Seq        int64
	RecordID   string
	Source     string
	Identity   string
	Collection string
	Kind       ChangeKind
	At         time.Time
}
