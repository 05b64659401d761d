package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/datamancy/corpusd/internal/checkpoint"
	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/db"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/fingerprint"
	"github.com/datamancy/corpusd/internal/source"
)

// fakeAdapter serves a scripted listing from memory and counts fetches.
type fakeAdapter struct {
	listing      source.Listing
	listingErr   error
	items        map[string]source.Item
	conditional  bool
	listingCalls int
	itemCalls    int
	lastCursor   string
}

func (f *fakeAdapter) Name() string                   { return "fake" }
func (f *fakeAdapter) SupportsConditionalFetch() bool { return f.conditional }

func (f *fakeAdapter) FetchListing(_ context.Context, cursor string) (*source.Listing, error) {
	f.listingCalls++
	f.lastCursor = cursor
	if f.listingErr != nil {
		return nil, f.listingErr
	}
	l := f.listing
	return &l, nil
}

func (f *fakeAdapter) FetchItem(_ context.Context, identity string, modifiedSince time.Time) (*source.Item, error) {
	f.itemCalls++
	item, ok := f.items[identity]
	if !ok {
		return nil, fmt.Errorf("no such item %s", identity)
	}
	if f.conditional && !modifiedSince.IsZero() && !item.Published.After(modifiedSince) {
		return &source.Item{Identity: identity, NotModified: true}, nil
	}
	return &item, nil
}

type fixture struct {
	adapter *fakeAdapter
	rec     *Reconciler
	cycles  *CycleStore
	store   *docstore.Store
	fps     *fingerprint.Store
	cps     *checkpoint.Store
}

func newFixture(t *testing.T, adapter *fakeAdapter, opts ...func(*config.SourceConfig)) *fixture {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.SourceConfig{
		Name:        "statutes",
		Collection:  "law",
		MaxAttempts: 3,
		Concurrency: 2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		adapter: adapter,
		cycles:  NewCycleStore(database),
		store:   docstore.NewStore(database),
		fps:     fingerprint.NewStore(database),
		cps:     checkpoint.NewStore(database),
	}
	f.rec = New(cfg, adapter, f.cps, f.fps, f.store, f.cycles, nil)
	f.rec.backoffBase = time.Millisecond
	return f
}

func (f *fixture) runCycle(t *testing.T) Counts {
	t.Helper()
	cycle, err := f.cycles.Create(context.Background(), "statutes")
	if err != nil {
		t.Fatalf("creating cycle: %v", err)
	}
	counts, err := f.rec.Run(context.Background(), cycle.ID)
	if err != nil {
		t.Fatalf("running cycle: %v", err)
	}
	got, err := f.cycles.Get(context.Background(), cycle.ID)
	if err != nil {
		t.Fatalf("reading cycle: %v", err)
	}
	if got.State != StateCompleted {
		t.Fatalf("cycle state = %s, want completed", got.State)
	}
	return counts
}

func item(identity, title, content string) source.Item {
	return source.Item{Identity: identity, Title: title, Content: content}
}

func TestFirstCycleClassifiesEverythingNew(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:      []source.Item{item("s-1", "Act One", "body one"), item("s-2", "Act Two", "body two")},
			NextCursor: "c1",
			Complete:   true,
		},
	}
	f := newFixture(t, adapter)

	counts := f.runCycle(t)
	if counts.New != 2 || counts.Updated != 0 || counts.Unchanged != 0 || counts.Repealed != 0 {
		t.Fatalf("counts = %+v, want 2 new", counts)
	}

	cur, err := f.store.CurrentFor(context.Background(), "statutes", "s-1")
	if err != nil || cur == nil {
		t.Fatalf("CurrentFor(s-1) = %v, %v", cur, err)
	}
	if cur.Content != "body one" {
		t.Errorf("content = %q", cur.Content)
	}

	cp, err := f.cps.Latest(context.Background(), "statutes", listingStream)
	if err != nil {
		t.Fatalf("reading checkpoint: %v", err)
	}
	if cp == nil || cp.Cursor != "c1" {
		t.Fatalf("checkpoint = %+v, want cursor c1", cp)
	}
}

func TestSecondCycleIsIdempotentForUnchangedContent(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("s-1", "Act One", "body one")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter)

	f.runCycle(t)
	counts := f.runCycle(t)

	if counts.Unchanged != 1 || counts.New != 0 || counts.Updated != 0 {
		t.Fatalf("counts = %+v, want 1 unchanged", counts)
	}
	history, err := f.store.HistoryFor(context.Background(), "statutes", "s-1")
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1 (no new version for unchanged content)", len(history))
	}
}

func TestChangedContentSupersedesPriorVersion(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("s-1", "Act One", "original body")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)

	adapter.listing.Items = []source.Item{item("s-1", "Act One", "amended body")}
	counts := f.runCycle(t)

	if counts.Updated != 1 {
		t.Fatalf("counts = %+v, want 1 updated", counts)
	}
	history, err := f.store.HistoryFor(context.Background(), "statutes", "s-1")
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	cur, err := f.store.CurrentFor(context.Background(), "statutes", "s-1")
	if err != nil || cur == nil {
		t.Fatalf("CurrentFor = %v, %v", cur, err)
	}
	if cur.Content != "amended body" {
		t.Errorf("current content = %q", cur.Content)
	}
}

func TestCompleteListingRepealsMissingIdentities(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("s-1", "Act One", "body one"), item("s-2", "Act Two", "body two")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)

	adapter.listing.Items = []source.Item{item("s-1", "Act One", "body one")}
	counts := f.runCycle(t)

	if counts.Repealed != 1 || counts.Unchanged != 1 {
		t.Fatalf("counts = %+v, want 1 unchanged 1 repealed", counts)
	}
	cur, err := f.store.CurrentFor(context.Background(), "statutes", "s-2")
	if err != nil {
		t.Fatalf("CurrentFor(s-2): %v", err)
	}
	if cur != nil {
		t.Fatalf("s-2 still current after repeal")
	}
}

func TestIncompleteListingDoesNotRepeal(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("s-1", "Act One", "body one")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)

	// An empty incomplete window, like a 304 short-circuit.
	adapter.listing = source.Listing{Complete: false}
	counts := f.runCycle(t)

	if counts.Repealed != 0 {
		t.Fatalf("counts = %+v, want no repeals from an incomplete listing", counts)
	}
	cur, err := f.store.CurrentFor(context.Background(), "statutes", "s-1")
	if err != nil || cur == nil {
		t.Fatalf("s-1 should stay current, got %v, %v", cur, err)
	}
}

func TestReappearanceAfterRepealStartsNewChain(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("s-1", "Act One", "body one")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)

	adapter.listing.Items = nil
	f.runCycle(t)

	adapter.listing.Items = []source.Item{item("s-1", "Act One", "body one")}
	counts := f.runCycle(t)

	if counts.New != 1 {
		t.Fatalf("counts = %+v, want reappearance classified as new", counts)
	}
	history, err := f.store.HistoryFor(context.Background(), "statutes", "s-1")
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2 (retired chain plus fresh one)", len(history))
	}
	old := history[0]
	if old.ValidTo == nil || old.SupersededBy != nil {
		t.Errorf("retired record should stay terminal: validTo=%v supersededBy=%v", old.ValidTo, old.SupersededBy)
	}
}

func TestFailedListingLeavesCheckpointUntouched(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{Items: []source.Item{item("s-1", "Act One", "body")}, NextCursor: "c1", Complete: true},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)

	adapter.listingErr = fmt.Errorf("upstream unavailable")
	cycle, err := f.cycles.Create(context.Background(), "statutes")
	if err != nil {
		t.Fatalf("creating cycle: %v", err)
	}
	if _, err := f.rec.Run(context.Background(), cycle.ID); err == nil {
		t.Fatal("expected cycle failure")
	}

	got, err := f.cycles.Get(context.Background(), cycle.ID)
	if err != nil {
		t.Fatalf("reading cycle: %v", err)
	}
	if got.State != StateFailed {
		t.Fatalf("cycle state = %s, want failed", got.State)
	}
	if got.Error == "" {
		t.Error("failed cycle should record its error")
	}

	cp, err := f.cps.Latest(context.Background(), "statutes", listingStream)
	if err != nil {
		t.Fatalf("reading checkpoint: %v", err)
	}
	if cp == nil || cp.Cursor != "c1" {
		t.Fatalf("checkpoint = %+v, want prior cursor c1 preserved", cp)
	}
	if adapter.listingCalls < 4 {
		t.Errorf("listingCalls = %d, want retries before giving up", adapter.listingCalls)
	}
}

func TestListingFetchResumesFromCheckpoint(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{NextCursor: "c1", Complete: true},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)
	f.runCycle(t)

	if adapter.lastCursor != "c1" {
		t.Fatalf("second cycle fetched with cursor %q, want c1", adapter.lastCursor)
	}
}

func TestConditionalFetchShortCircuitsUnchangedItems(t *testing.T) {
	published := time.Now().Add(-24 * time.Hour)
	adapter := &fakeAdapter{
		conditional: true,
		listing: source.Listing{
			Items:    []source.Item{{Identity: "s-1", Published: published}},
			Complete: true,
		},
		items: map[string]source.Item{
			"s-1": {Identity: "s-1", Title: "Act One", Content: "body one", Published: published},
		},
	}
	f := newFixture(t, adapter, func(c *config.SourceConfig) { c.Conditional = true })

	counts := f.runCycle(t)
	if counts.New != 1 {
		t.Fatalf("counts = %+v, want 1 new", counts)
	}

	counts = f.runCycle(t)
	if counts.Unchanged != 1 {
		t.Fatalf("counts = %+v, want 1 unchanged via conditional fetch", counts)
	}
	if adapter.itemCalls != 2 {
		t.Errorf("itemCalls = %d, want one per cycle", adapter.itemCalls)
	}
}

func TestItemFailureCountsButDoesNotAbortCycle(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			// s-2 has no content inline and no backing item, so its
			// per-item fetch fails every attempt.
			Items:    []source.Item{item("s-1", "Act One", "body one"), {Identity: "s-2"}},
			Complete: true,
		},
		items: map[string]source.Item{},
	}
	f := newFixture(t, adapter)

	counts := f.runCycle(t)
	if counts.New != 1 || counts.Failed != 1 {
		t.Fatalf("counts = %+v, want 1 new 1 failed", counts)
	}
	// The failed item was still observed, so it must not be repealed
	// in a later cycle just because this one could not fetch it.
	cur, err := f.store.CurrentFor(context.Background(), "statutes", "s-2")
	if err != nil {
		t.Fatalf("CurrentFor(s-2): %v", err)
	}
	if cur != nil {
		t.Fatal("failed item should not have been stored")
	}
}

func TestFailedItemsHoldTheCheckpointBack(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:      []source.Item{item("s-1", "Act One", "body one")},
			NextCursor: "c1",
			Complete:   true,
		},
		items: map[string]source.Item{},
	}
	f := newFixture(t, adapter)
	f.runCycle(t)

	// One good item, one that fails every fetch attempt. The cursor
	// must stay at c1: advancing to c2 would let a conditional origin
	// short-circuit the next cycle and the failed item would never be
	// retried.
	adapter.listing = source.Listing{
		Items:      []source.Item{item("s-1", "Act One", "body one"), {Identity: "s-2"}},
		NextCursor: "c2",
		Complete:   true,
	}
	counts := f.runCycle(t)
	if counts.Failed != 1 {
		t.Fatalf("counts = %+v, want 1 failed", counts)
	}

	cp, err := f.cps.Latest(context.Background(), "statutes", listingStream)
	if err != nil {
		t.Fatalf("reading checkpoint: %v", err)
	}
	if cp == nil || cp.Cursor != "c1" {
		t.Fatalf("checkpoint = %+v, want cursor held at c1 while an item is failing", cp)
	}

	// Once every item settles, the cursor moves.
	adapter.listing.Items = []source.Item{item("s-1", "Act One", "body one"), item("s-2", "Act Two", "body two")}
	f.runCycle(t)
	cp, err = f.cps.Latest(context.Background(), "statutes", listingStream)
	if err != nil {
		t.Fatalf("reading checkpoint: %v", err)
	}
	if cp == nil || cp.Cursor != "c2" {
		t.Fatalf("checkpoint = %+v, want cursor c2 after a clean cycle", cp)
	}
}

func TestMarkdownSourceIgnoresMarkupOnlyChanges(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("s-1", "Act One", "The *act* is amended as follows.")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter, func(c *config.SourceConfig) { c.Format = config.FormatMarkdown })
	f.runCycle(t)

	// Same prose, different emphasis syntax. Rendering before the hash
	// keeps this from being classified as an update.
	adapter.listing.Items = []source.Item{item("s-1", "Act One", "The _act_ is amended as follows.")}
	counts := f.runCycle(t)
	if counts.Unchanged != 1 || counts.Updated != 0 {
		t.Fatalf("counts = %+v, want markup-only change classified unchanged", counts)
	}

	adapter.listing.Items = []source.Item{item("s-1", "Act One", "The *act* is repealed.")}
	counts = f.runCycle(t)
	if counts.Updated != 1 {
		t.Fatalf("counts = %+v, want prose change classified updated", counts)
	}
}

func TestIdentityFilterExcludesBeforeClassification(t *testing.T) {
	adapter := &fakeAdapter{
		listing: source.Listing{
			Items:    []source.Item{item("keep/a", "A", "body a"), item("drop/b", "B", "body b")},
			Complete: true,
		},
	}
	f := newFixture(t, adapter, func(c *config.SourceConfig) { c.Include = []string{"keep/*"} })

	counts := f.runCycle(t)
	if counts.New != 1 {
		t.Fatalf("counts = %+v, want only the included identity", counts)
	}
	cur, err := f.store.CurrentFor(context.Background(), "statutes", "drop/b")
	if err != nil {
		t.Fatalf("CurrentFor: %v", err)
	}
	if cur != nil {
		t.Fatal("excluded identity should never be stored")
	}
}

func TestManagerRejectsConcurrentCyclesPerSource(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{
		Sources: []config.SourceConfig{{
			Name: "statutes", Kind: config.SourceJSON, URL: "http://example.invalid",
			Collection: "law", MaxAttempts: 1, Concurrency: 1,
		}},
	}
	m, err := NewManager(cfg, checkpoint.NewStore(database), fingerprint.NewStore(database),
		docstore.NewStore(database), NewCycleStore(database), nil)
	if err != nil {
		t.Fatalf("building manager: %v", err)
	}

	m.mu.Lock()
	m.running["statutes"] = true
	m.mu.Unlock()

	if _, err := m.Trigger(context.Background(), "statutes"); err != ErrCycleRunning {
		t.Fatalf("Trigger = %v, want ErrCycleRunning", err)
	}
	if _, err := m.Trigger(context.Background(), "nope"); err != ErrUnknownSource {
		t.Fatalf("Trigger unknown = %v, want ErrUnknownSource", err)
	}
}
