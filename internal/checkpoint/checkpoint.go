// Package checkpoint persists per-(source, stream) reconciliation
// cursors. Commits are append-only: every successful cycle writes a new
// generation rather than mutating the previous one, so crash recovery
// only ever sees fully committed cursors.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/datamancy/corpusd/internal/db"
)

// Checkpoint is a durable cursor marking reconciliation progress.
type Checkpoint struct {
	Source      string
	Stream      string
	Cursor      string
	Generation  int64
	CommittedAt time.Time
}

// Store manages checkpoint persistence.
type Store struct {
	db *db.DB
}

// NewStore creates a checkpoint store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Latest returns the most recently committed checkpoint for the given
// source and stream, or nil if none has ever been committed.
func (s *Store) Latest(ctx context.Context, source, stream string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT source, stream, cursor, generation, committed_at
		 FROM checkpoints WHERE source = ? AND stream = ?
		 ORDER BY generation DESC LIMIT 1`, source, stream,
	).Scan(&cp.Source, &cp.Stream, &cp.Cursor, &cp.Generation, &cp.CommittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	return &cp, nil
}

// Commit appends a new checkpoint generation. It must only be called
// once all item-level writes of the cycle are durably applied.
func (s *Store) Commit(ctx context.Context, source, stream, cursor string) (*Checkpoint, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning checkpoint commit: %w", err)
	}
	defer tx.Rollback()

	var gen sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(generation) FROM checkpoints WHERE source = ? AND stream = ?`,
		source, stream,
	).Scan(&gen)
	if err != nil {
		return nil, fmt.Errorf("reading last generation: %w", err)
	}

	cp := &Checkpoint{
		Source:      source,
		Stream:      stream,
		Cursor:      cursor,
		Generation:  gen.Int64 + 1,
		CommittedAt: now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (source, stream, cursor, generation, committed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cp.Source, cp.Stream, cp.Cursor, cp.Generation, cp.CommittedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing checkpoint: %w", err)
	}
	return cp, nil
}

// History returns up to limit checkpoint generations, newest first.
func (s *Store) History(ctx context.Context, source, stream string, limit int) ([]Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, stream, cursor, generation, committed_at
		 FROM checkpoints WHERE source = ? AND stream = ?
		 ORDER BY generation DESC LIMIT ?`, source, stream, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.Source, &cp.Stream, &cp.Cursor, &cp.Generation, &cp.CommittedAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}
