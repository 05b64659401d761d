package fingerprint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/datamancy/corpusd/internal/db"
)

// Store is the durable mapping from (source, item identity) to the
// last-seen content fingerprint. Partitioned by source so workers for
// different sources never contend on the same keys.
type Store struct {
	db *db.DB
}

// NewStore creates a fingerprint store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Get returns the stored fingerprint for an identity, or "" if the
// identity has never been seen for this source.
func (s *Store) Get(ctx context.Context, source, identity string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM fingerprints WHERE source = ? AND identity = ?`,
		source, identity,
	).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading fingerprint: %w", err)
	}
	return fp, nil
}

// Put records the fingerprint last observed for an identity.
func (s *Store) Put(ctx context.Context, source, identity, fp string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (source, identity, fingerprint, last_checked)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(source, identity) DO UPDATE SET fingerprint = excluded.fingerprint, last_checked = excluded.last_checked`,
		source, identity, fp, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing fingerprint: %w", err)
	}
	return nil
}

// Touch updates last_checked for an identity without changing its
// fingerprint.
func (s *Store) Touch(ctx context.Context, source, identity string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fingerprints SET last_checked = ? WHERE source = ? AND identity = ?`,
		time.Now().UTC(), source, identity,
	)
	if err != nil {
		return fmt.Errorf("touching fingerprint: %w", err)
	}
	return nil
}

// Delete removes an identity's fingerprint. Called on repeal so that a
// reappearing identity is classified new and starts a fresh record
// chain instead of reviving the old one.
func (s *Store) Delete(ctx context.Context, source, identity string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE source = ? AND identity = ?`,
		source, identity,
	)
	if err != nil {
		return fmt.Errorf("deleting fingerprint: %w", err)
	}
	return nil
}

// KnownIdentities returns every identity currently tracked for a
// source. The reconciler diffs this set against the identities observed
// upstream to detect repeals.
func (s *Store) KnownIdentities(ctx context.Context, source string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity FROM fingerprints WHERE source = ? ORDER BY identity`, source,
	)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
