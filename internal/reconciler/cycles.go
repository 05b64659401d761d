package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datamancy/corpusd/internal/db"
)

// CycleStore persists cycle status rows for introspection.
type CycleStore struct {
	db *db.DB
}

// NewCycleStore creates a cycle store.
func NewCycleStore(database *db.DB) *CycleStore {
	return &CycleStore{db: database}
}

// Create records the start of a cycle and returns it.
func (s *CycleStore) Create(ctx context.Context, source string) (*Cycle, error) {
	c := &Cycle{
		ID:        uuid.New().String(),
		Source:    source,
		State:     StateRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, source, state, started_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Source, c.State, c.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting cycle: %w", err)
	}
	return c, nil
}

// Finish closes a cycle with its final state and counts.
func (s *CycleStore) Finish(ctx context.Context, id string, state CycleState, counts Counts, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET state = ?, finished_at = ?, new_count = ?, updated_count = ?,
		 unchanged_count = ?, repealed_count = ?, failed_count = ?, error = ?
		 WHERE id = ?`,
		state, time.Now().UTC(), counts.New, counts.Updated, counts.Unchanged,
		counts.Repealed, counts.Failed, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("finishing cycle: %w", err)
	}
	return nil
}

const cycleColumns = `id, source, state, started_at, finished_at, new_count, updated_count, unchanged_count, repealed_count, failed_count, error`

// Get returns a cycle by ID, or nil.
func (s *CycleStore) Get(ctx context.Context, id string) (*Cycle, error) {
	var c Cycle
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id,
	).Scan(&c.ID, &c.Source, &c.State, &c.StartedAt, &finished,
		&c.Counts.New, &c.Counts.Updated, &c.Counts.Unchanged, &c.Counts.Repealed, &c.Counts.Failed, &c.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cycle: %w", err)
	}
	if finished.Valid {
		c.FinishedAt = &finished.Time
	}
	return &c, nil
}

// List returns recent cycles, newest first, optionally filtered by
// source.
func (s *CycleStore) List(ctx context.Context, source string, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + cycleColumns + ` FROM cycles`
	args := []interface{}{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		var finished sql.NullTime
		if err := rows.Scan(&c.ID, &c.Source, &c.State, &c.StartedAt, &finished,
			&c.Counts.New, &c.Counts.Updated, &c.Counts.Unchanged, &c.Counts.Repealed, &c.Counts.Failed, &c.Error); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		if finished.Valid {
			c.FinishedAt = &finished.Time
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
