package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/datamancy/corpusd/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func testRecord(identity, content string) Record {
	return Record{
		Source:      "feed",
		Identity:    identity,
		Collection:  "news",
		Title:       "title for " + identity,
		Content:     content,
		Fingerprint: "fp-" + content,
	}
}

func TestInsertAndCurrentFor(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	inserted, err := store.Insert(ctx, testRecord("item-1", "v1"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if inserted.ID == "" {
		t.Error("expected generated ID")
	}
	if !inserted.Current() {
		t.Error("inserted record should be current")
	}

	cur, err := store.CurrentFor(ctx, "feed", "item-1")
	if err != nil {
		t.Fatalf("CurrentFor: %v", err)
	}
	if cur == nil || cur.ID != inserted.ID {
		t.Fatalf("CurrentFor = %+v, want id %s", cur, inserted.ID)
	}

	missing, err := store.CurrentFor(ctx, "feed", "nope")
	if err != nil {
		t.Fatalf("CurrentFor missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown identity, got %+v", missing)
	}
}

func TestSupersedeChainsVersions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	v1, _ := store.Insert(ctx, testRecord("item-1", "v1"))
	v2, err := store.Supersede(ctx, v1.ID, testRecord("item-1", "v2"))
	if err != nil {
		t.Fatalf("Supersede: %v", err)
	}

	old, _ := store.GetByID(ctx, v1.ID)
	if old.ValidTo == nil {
		t.Error("superseded record should have valid_to set")
	}
	if old.SupersededBy == nil || *old.SupersededBy != v2.ID {
		t.Errorf("superseded_by = %v, want %s", old.SupersededBy, v2.ID)
	}

	cur, _ := store.CurrentFor(ctx, "feed", "item-1")
	if cur.ID != v2.ID {
		t.Errorf("current = %s, want %s", cur.ID, v2.ID)
	}

	hist, err := store.HistoryFor(ctx, "feed", "item-1")
	if err != nil {
		t.Fatalf("HistoryFor: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(hist))
	}
	if hist[0].ID != v1.ID || hist[1].ID != v2.ID {
		t.Error("history not in valid_from order")
	}
}

func TestSupersedeNonCurrentConflicts(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	v1, _ := store.Insert(ctx, testRecord("item-1", "v1"))
	if _, err := store.Supersede(ctx, v1.ID, testRecord("item-1", "v2")); err != nil {
		t.Fatalf("first supersede: %v", err)
	}

	// The old row is closed; superseding it again must fail.
	_, err := store.Supersede(ctx, v1.ID, testRecord("item-1", "v3"))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestRetractIsTerminal(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	v1, _ := store.Insert(ctx, testRecord("item-1", "v1"))
	if err := store.Retract(ctx, v1.ID); err != nil {
		t.Fatalf("Retract: %v", err)
	}

	closed, _ := store.GetByID(ctx, v1.ID)
	if closed.ValidTo == nil {
		t.Error("retracted record should have valid_to set")
	}
	if closed.SupersededBy != nil {
		t.Error("retracted record must keep superseded_by null")
	}

	if cur, _ := store.CurrentFor(ctx, "feed", "item-1"); cur != nil {
		t.Errorf("expected no current record after retract, got %+v", cur)
	}

	// Reappearance starts a new chain rather than reviving the old one.
	v2, err := store.Insert(ctx, testRecord("item-1", "v1"))
	if err != nil {
		t.Fatalf("Insert after retract: %v", err)
	}
	stillClosed, _ := store.GetByID(ctx, v1.ID)
	if stillClosed.SupersededBy != nil {
		t.Error("old chain must not be linked to the new record")
	}
	hist, _ := store.HistoryFor(ctx, "feed", "item-1")
	if len(hist) != 2 || hist[1].ID != v2.ID {
		t.Errorf("unexpected history after reappearance: %d versions", len(hist))
	}
}

func TestTouchLastChecked(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	v1, _ := store.Insert(ctx, testRecord("item-1", "v1"))
	before, _ := store.GetByID(ctx, v1.ID)

	if err := store.TouchLastChecked(ctx, "feed", "item-1"); err != nil {
		t.Fatalf("TouchLastChecked: %v", err)
	}
	after, _ := store.GetByID(ctx, v1.ID)
	if after.LastChecked.Before(before.LastChecked) {
		t.Error("last_checked went backwards")
	}
	// Content untouched.
	if after.Fingerprint != before.Fingerprint || after.Content != before.Content {
		t.Error("touch must not modify content")
	}
}

func TestCurrentInCollectionPaging(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Insert(ctx, testRecord(id, "v1")); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}
	// Retire one; it must not appear in the current listing.
	cur, _ := store.CurrentFor(ctx, "feed", "b")
	store.Retract(ctx, cur.ID)

	var all []Record
	var cursor int64
	for {
		page, next, err := store.CurrentInCollection(ctx, "news", cursor, 2)
		if err != nil {
			t.Fatalf("CurrentInCollection: %v", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		cursor = next
	}

	if len(all) != 2 {
		t.Fatalf("expected 2 current records, got %d", len(all))
	}
	for _, r := range all {
		if r.Identity == "b" {
			t.Error("retired record appeared in current listing")
		}
	}
}

func TestChangeJournal(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	v1, _ := store.Insert(ctx, testRecord("item-1", "v1"))
	store.Supersede(ctx, v1.ID, testRecord("item-1", "v2"))

	changes, err := store.ChangesSince(ctx, "news", 0, 10)
	if err != nil {
		t.Fatalf("ChangesSince: %v", err)
	}
	// insert(current), supersede(retired + current)
	if len(changes) != 3 {
		t.Fatalf("expected 3 journal entries, got %d", len(changes))
	}
	if changes[0].Kind != ChangeCurrent || changes[1].Kind != ChangeRetired || changes[2].Kind != ChangeCurrent {
		t.Errorf("unexpected journal kinds: %v %v %v", changes[0].Kind, changes[1].Kind, changes[2].Kind)
	}

	// Cursoring past the journal yields nothing.
	tail, _ := store.ChangesSince(ctx, "news", changes[2].Seq, 10)
	if len(tail) != 0 {
		t.Errorf("expected empty tail, got %d entries", len(tail))
	}

	maxSeq, err := store.MaxSeq(ctx, "news")
	if err != nil {
		t.Fatalf("MaxSeq: %v", err)
	}
	if maxSeq != changes[2].Seq {
		t.Errorf("MaxSeq = %d, want %d", maxSeq, changes[2].Seq)
	}
}
