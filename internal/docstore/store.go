// Package docstore is the versioned system of record. Every ingested
// item is stored as a chain of immutable record versions with temporal
// validity; at most one version per (source, identity) is current at any
// time. All validity transitions are journaled so the indexer can follow
// the store incrementally.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datamancy/corpusd/internal/db"
)

// ErrConflict is returned when a supersede or retract targets a record
// that is no longer current. By construction one source worker owns its
// identities, so hitting this indicates an internal consistency bug.
var ErrConflict = errors.New("docstore: record is not current")

// Store provides the append-only write path and the temporal read paths.
type Store struct {
	db *db.DB
}

// NewStore creates a document store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const recordColumns = `id, source, identity, collection, title, content, fingerprint, valid_from, valid_to, superseded_by, last_checked`

// Insert adds a brand-new current record for an identity with no prior
// chain.
func (s *Store) Insert(ctx context.Context, rec Record) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	out, err := insertCurrent(ctx, tx, rec)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}
	return out, nil
}

// Supersede atomically ends the validity of the record oldID and inserts
// newRec as the current version, linking the chain.
func (s *Store) Supersede(ctx context.Context, oldID string, newRec Record) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning supersede: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if newRec.ID == "" {
		newRec.ID = uuid.New().String()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET valid_to = ?, superseded_by = ? WHERE id = ? AND valid_to IS NULL`,
		now, newRec.ID, oldID,
	)
	if err != nil {
		return nil, fmt.Errorf("closing superseded record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("superseding %s: %w", oldID, ErrConflict)
	}

	var closed Record
	if err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, oldID), &closed); err != nil {
		return nil, fmt.Errorf("reading superseded record: %w", err)
	}

	if err := journal(ctx, tx, &closed, ChangeRetired, now); err != nil {
		return nil, err
	}

	out, err := insertCurrent(ctx, tx, newRec)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing supersede: %w", err)
	}
	return out, nil
}

// Retract ends the validity of the record without a successor. The
// record's superseded_by stays null forever; a later reappearance of the
// identity starts a new chain via Insert.
func (s *Store) Retract(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning retract: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE records SET valid_to = ? WHERE id = ? AND valid_to IS NULL`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("retracting record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("retracting %s: %w", id, ErrConflict)
	}

	var closed Record
	if err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id), &closed); err != nil {
		return fmt.Errorf("reading retracted record: %w", err)
	}

	if err := journal(ctx, tx, &closed, ChangeRetired, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing retract: %w", err)
	}
	return nil
}

// TouchLastChecked records that an unchanged item was re-confirmed
// upstream without creating a new version.
func (s *Store) TouchLastChecked(ctx context.Context, source, identity string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET last_checked = ? WHERE source = ? AND identity = ? AND valid_to IS NULL`,
		time.Now().UTC(), source, identity,
	)
	if err != nil {
		return fmt.Errorf("touching record: %w", err)
	}
	return nil
}

// CurrentFor returns the currently valid record for an identity, or nil.
func (s *Store) CurrentFor(ctx context.Context, source, identity string) (*Record, error) {
	var rec Record
	err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE source = ? AND identity = ? AND valid_to IS NULL`, source, identity), &rec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading current record: %w", err)
	}
	return &rec, nil
}

// GetByID returns a record by its version id, or nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id), &rec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return &rec, nil
}

// HistoryFor returns the full version chain for an identity in
// valid_from order.
func (s *Store) HistoryFor(ctx context.Context, source, identity string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE source = ? AND identity = ? ORDER BY valid_from ASC, id ASC`, source, identity,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CurrentInCollection pages through the currently valid records of a
// collection. The cursor is an opaque row position; pass 0 to start and
// feed the returned cursor back in until no records come back.
func (s *Store) CurrentInCollection(ctx context.Context, collection string, sinceCursor int64, limit int) ([]Record, int64, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid, `+recordColumns+` FROM records
		 WHERE collection = ? AND valid_to IS NULL AND rowid > ?
		 ORDER BY rowid ASC LIMIT ?`, collection, sinceCursor, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing current records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	next := sinceCursor
	for rows.Next() {
		var rec Record
		var validTo sql.NullTime
		var supersededBy sql.NullString
		if err := rows.Scan(&next, &rec.ID, &rec.Source, &rec.Identity, &rec.Collection, &rec.Title,
			&rec.Content, &rec.Fingerprint, &rec.ValidFrom, &validTo, &supersededBy, &rec.LastChecked); err != nil {
			return nil, 0, fmt.Errorf("scanning record: %w", err)
		}
		applyNullables(&rec, validTo, supersededBy)
		recs = append(recs, rec)
	}
	return recs, next, rows.Err()
}

// CountCurrentInCollection returns how many records are currently valid
// in a collection.
func (s *Store) CountCurrentInCollection(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ? AND valid_to IS NULL`, collection,
	).Scan(&n)
	return n, err
}

// ChangesSince returns up to limit journal entries for a collection with
// seq greater than the given cursor, oldest first.
func (s *Store) ChangesSince(ctx context.Context, collection string, seq int64, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, record_id, source, identity, collection, kind, at FROM record_events
		 WHERE collection = ? AND seq > ? ORDER BY seq ASC LIMIT ?`, collection, seq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.RecordID, &c.Source, &c.Identity, &c.Collection, &c.Kind, &c.At); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// MaxSeq returns the newest journal sequence number for a collection.
func (s *Store) MaxSeq(ctx context.Context, collection string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM record_events WHERE collection = ?`, collection,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("reading max seq: %w", err)
	}
	return seq.Int64, nil
}

// querier abstracts *sql.Tx and *sql.DB for the shared helpers.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertCurrent(ctx context.Context, tx *sql.Tx, rec Record) (*Record, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ValidFrom.IsZero() {
		rec.ValidFrom = now
	}
	if rec.LastChecked.IsZero() {
		rec.LastChecked = now
	}
	rec.ValidTo = nil
	rec.SupersededBy = nil

	_, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, source, identity, collection, title, content, fingerprint, valid_from, last_checked)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Identity, rec.Collection, rec.Title, rec.Content, rec.Fingerprint,
		rec.ValidFrom, rec.LastChecked,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}

	if err := journal(ctx, tx, &rec, ChangeCurrent, now); err != nil {
		return nil, err
	}
	return &rec, nil
}

func journal(ctx context.Context, q querier, rec *Record, kind ChangeKind, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO record_events (record_id, source, identity, collection, kind, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Identity, rec.Collection, kind, at,
	)
	if err != nil {
		return fmt.Errorf("journaling %s event: %w", kind, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner, rec *Record) error {
	var validTo sql.NullTime
	var supersededBy sql.NullString
	err := row.Scan(&rec.ID, &rec.Source, &rec.Identity, &rec.Collection, &rec.Title,
		&rec.Content, &rec.Fingerprint, &rec.ValidFrom, &validTo, &supersededBy, &rec.LastChecked)
	if err != nil {
		return err
	}
	applyNullables(rec, validTo, supersededBy)
	return nil
}

func applyNullables(rec *Record, validTo sql.NullTime, supersededBy sql.NullString) {
	if validTo.Valid {
		t := validTo.Time
		rec.ValidTo = &t
	}
	if supersededBy.Valid {
		s := supersededBy.String
		rec.SupersededBy = &s
	}
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var rec Record
		var validTo sql.NullTime
		var supersededBy sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Identity, &rec.Collection, &rec.Title,
			&rec.Content, &rec.Fingerprint, &rec.ValidFrom, &validTo, &supersededBy, &rec.LastChecked); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		applyNullables(&rec, validTo, supersededBy)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
