// Package indexer drains the document store's change journal into the
// vector and lexical indexes. Progress is tracked with a per-collection
// cursor over journal sequence numbers; a batch that fails never
// advances its cursor, so reindexing a partially applied batch is the
// normal recovery path and every apply must be idempotent.
package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/datamancy/corpusd/internal/db"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/embeddings"
	"github.com/datamancy/corpusd/internal/events"
	"github.com/datamancy/corpusd/internal/lexical"
	"github.com/datamancy/corpusd/internal/vectordb"
)

// Indexer applies document store changes to both search indexes.
type Indexer struct {
	database  *db.DB
	store     *docstore.Store
	embedder  embeddings.Embedder
	vectors   *vectordb.Store
	lexicon   *lexical.Index
	hub       *events.Hub
	batchSize int

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an indexer over the given stores.
func New(database *db.DB, store *docstore.Store, embedder embeddings.Embedder,
	vectors *vectordb.Store, lexicon *lexical.Index, hub *events.Hub, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Indexer{
		database:  database,
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		lexicon:   lexicon,
		hub:       hub,
		batchSize: batchSize,
	}
}

// Cursor returns the last applied journal sequence for a collection.
func (ix *Indexer) Cursor(ctx context.Context, collection string) (int64, error) {
	var seq int64
	err := ix.database.QueryRowContext(ctx,
		`SELECT seq FROM index_cursors WHERE collection = ?`, collection,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index cursor: %w", err)
	}
	return seq, nil
}

func (ix *Indexer) commitCursor(ctx context.Context, collection string, seq int64) error {
	_, err := ix.database.ExecContext(ctx,
		`INSERT INTO index_cursors (collection, seq, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(collection) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at`,
		collection, seq, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("committing index cursor: %w", err)
	}
	return nil
}

// Lag reports how many journal entries a collection's indexes are
// behind the document store.
func (ix *Indexer) Lag(ctx context.Context, collection string) (int64, error) {
	cursor, err := ix.Cursor(ctx, collection)
	if err != nil {
		return 0, err
	}
	max, err := ix.store.MaxSeq(ctx, collection)
	if err != nil {
		return 0, err
	}
	lag := max - cursor
	if lag < 0 {
		lag = 0
	}
	return lag, nil
}

// Sync drains pending journal entries for one collection, batch by
// batch, and returns how many changes it applied.
func (ix *Indexer) Sync(ctx context.Context, collection string) (int, error) {
	return ix.SyncWithBatch(ctx, collection, ix.batchSize)
}

// SyncWithBatch is Sync with a one-off batch size override.
func (ix *Indexer) SyncWithBatch(ctx context.Context, collection string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = ix.batchSize
	}
	applied := 0
	for {
		n, err := ix.syncBatch(ctx, collection, batchSize)
		applied += n
		if err != nil {
			return applied, err
		}
		if n == 0 {
			break
		}
	}
	if applied > 0 && ix.hub != nil {
		ix.hub.Publish(events.Event{
			Type:       events.TypeIndexerApplied,
			Collection: collection,
			Detail:     map[string]any{"applied": applied},
		})
	}
	return applied, nil
}

// syncBatch applies at most one batch of journal entries. The cursor
// only moves after both indexes accepted the whole batch; a crash or
// error in between replays the batch on the next pass.
func (ix *Indexer) syncBatch(ctx context.Context, collection string, batchSize int) (int, error) {
	cursor, err := ix.Cursor(ctx, collection)
	if err != nil {
		return 0, err
	}

	changes, err := ix.store.ChangesSince(ctx, collection, cursor, batchSize)
	if err != nil {
		return 0, fmt.Errorf("reading change journal: %w", err)
	}
	if len(changes) == 0 {
		return 0, nil
	}

	// Per identity only the latest change in the batch matters: a
	// record superseded twice within one batch indexes once.
	latest := make(map[string]docstore.Change, len(changes))
	order := make([]string, 0, len(changes))
	for _, ch := range changes {
		if _, seen := latest[ch.Identity]; !seen {
			order = append(order, ch.Identity)
		}
		latest[ch.Identity] = ch
	}

	var upserts []docstore.Record
	var deletes []string
	for _, identity := range order {
		ch := latest[identity]
		if ch.Kind == docstore.ChangeRetired {
			// Retirement by supersession is followed by a current
			// event for the successor within the same journal; only a
			// retirement with no current record is a true removal.
			cur, err := ix.store.CurrentFor(ctx, ch.Source, ch.Identity)
			if err != nil {
				return 0, err
			}
			if cur == nil {
				deletes = append(deletes, identity)
				continue
			}
			upserts = append(upserts, *cur)
			continue
		}
		rec, err := ix.store.GetByID(ctx, ch.RecordID)
		if err != nil {
			return 0, err
		}
		if rec == nil || !rec.Current() {
			// Superseded later in the journal; the newer entry in this
			// or a following batch carries the replacement.
			cur, err := ix.store.CurrentFor(ctx, ch.Source, ch.Identity)
			if err != nil {
				return 0, err
			}
			if cur == nil {
				deletes = append(deletes, identity)
			} else {
				upserts = append(upserts, *cur)
			}
			continue
		}
		upserts = append(upserts, *rec)
	}

	if err := ix.apply(ctx, collection, upserts, deletes); err != nil {
		return 0, err
	}

	lastSeq := changes[len(changes)-1].Seq
	if err := ix.commitCursor(ctx, collection, lastSeq); err != nil {
		return 0, err
	}
	return len(changes), nil
}

// apply pushes one deduplicated batch into both indexes.
func (ix *Indexer) apply(ctx context.Context, collection string, upserts []docstore.Record, deletes []string) error {
	if len(upserts) > 0 {
		texts := make([]string, len(upserts))
		for i, rec := range upserts {
			texts[i] = embeddingText(rec)
		}
		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
		if len(vectors) != len(upserts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(upserts))
		}

		docs := make([]vectordb.Document, len(upserts))
		for i, rec := range upserts {
			docs[i] = vectordb.Document{
				ID:        rec.Identity,
				Content:   rec.Content,
				Embedding: vectors[i],
				Metadata: vectordb.Metadata{
					Source:      rec.Source,
					Identity:    rec.Identity,
					Title:       rec.Title,
					Fingerprint: rec.Fingerprint,
					RecordID:    rec.ID,
					LastChecked: rec.LastChecked,
				},
			}
		}
		if err := ix.vectors.Upsert(ctx, collection, docs); err != nil {
			return fmt.Errorf("upserting vectors: %w", err)
		}
		for _, rec := range upserts {
			ix.lexicon.Upsert(collection, lexical.Entry{
				Identity:    rec.Identity,
				Title:       rec.Title,
				Content:     rec.Content,
				LastChecked: rec.LastChecked,
			})
		}
	}

	for _, identity := range deletes {
		if err := ix.vectors.Delete(ctx, collection, identity); err != nil {
			return fmt.Errorf("deleting %s from vectors: %w", identity, err)
		}
		ix.lexicon.Delete(collection, identity)
	}
	return nil
}

// Rebuild discards both indexes for a collection and re-indexes every
// currently valid record from scratch, then fast-forwards the cursor
// past the journal as of the start of the rebuild. Emptying first is
// what makes a rebuild converge a diverged index: entries with no
// backing current record do not survive it.
func (ix *Indexer) Rebuild(ctx context.Context, collection string) (int, error) {
	maxSeq, err := ix.store.MaxSeq(ctx, collection)
	if err != nil {
		return 0, err
	}

	if err := ix.vectors.Reset(collection); err != nil {
		return 0, fmt.Errorf("resetting vector index: %w", err)
	}
	ix.lexicon.Reset(collection)

	total := 0
	cursor := int64(0)
	for {
		records, next, err := ix.store.CurrentInCollection(ctx, collection, cursor, ix.batchSize)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			break
		}
		if err := ix.apply(ctx, collection, records, nil); err != nil {
			return total, err
		}
		total += len(records)
		cursor = next
	}

	// Changes journaled after maxSeq during the rebuild are picked up
	// by the next Sync pass.
	if err := ix.commitCursor(ctx, collection, maxSeq); err != nil {
		return total, err
	}
	return total, nil
}

// Start polls every collection with pending journal entries at the
// given interval until Stop is called.
func (ix *Indexer) Start(collections []string, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	ix.mu.Lock()
	ix.cancel = cancel
	ix.mu.Unlock()

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, collection := range collections {
					if _, err := ix.Sync(ctx, collection); err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("indexer[%s]: sync pass: %v", collection, err)
					}
				}
			}
		}
	}()
}

// Stop halts the polling loop and waits for the in-flight pass.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	cancel := ix.cancel
	ix.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	ix.wg.Wait()
}

// embeddingText is what gets embedded for a record: the title carries
// weight for short queries, so it is prepended to the body.
func embeddingText(rec docstore.Record) string {
	if rec.Title == "" {
		return rec.Content
	}
	return rec.Title + "\n\n" + rec.Content
}
