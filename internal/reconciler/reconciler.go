// Package reconciler runs the per-source fetch-classify-write cycle.
// Each cycle performs three-way reconciliation between the upstream
// listing, the fingerprint store, and the versioned document store,
// then commits its checkpoint only once every item-level write has
// settled.
package reconciler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/datamancy/corpusd/internal/checkpoint"
	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/events"
	"github.com/datamancy/corpusd/internal/fingerprint"
	"github.com/datamancy/corpusd/internal/source"
)

// listingStream is the checkpoint stream name for the listing cursor.
const listingStream = "listing"

// Reconciler reconciles one source against the document store.
type Reconciler struct {
	cfg          config.SourceConfig
	adapter      source.Adapter
	filter       *source.IdentityFilter
	checkpoints  *checkpoint.Store
	fingerprints *fingerprint.Store
	store        *docstore.Store
	cycles       *CycleStore
	hub          *events.Hub

	// backoffBase is the first retry delay; doubled per attempt.
	// Overridable in tests.
	backoffBase time.Duration
}

// New creates a reconciler for one source.
func New(cfg config.SourceConfig, adapter source.Adapter, checkpoints *checkpoint.Store,
	fingerprints *fingerprint.Store, store *docstore.Store, cycles *CycleStore, hub *events.Hub) *Reconciler {
	return &Reconciler{
		cfg:          cfg,
		adapter:      adapter,
		filter:       source.NewIdentityFilter(cfg.Include, cfg.Exclude),
		checkpoints:  checkpoints,
		fingerprints: fingerprints,
		store:        store,
		cycles:       cycles,
		hub:          hub,
		backoffBase:  time.Second,
	}
}

// Run executes one reconciliation cycle under the given cycle ID. The
// cycle ID must already exist in the cycle store (created by Trigger).
// Cancellation mid-cycle behaves like a crash: item writes already
// applied stay applied, the checkpoint does not advance, and the next
// cycle resumes from the previous checkpoint.
func (r *Reconciler) Run(ctx context.Context, cycleID string) (Counts, error) {
	r.publish(events.TypeCycleStarted, cycleID, nil)

	counts, err := r.run(ctx, cycleID)

	switch {
	case err == nil:
		r.finish(cycleID, StateCompleted, counts, "")
	case ctx.Err() != nil:
		r.finish(cycleID, StateCancelled, counts, ctx.Err().Error())
	default:
		r.finish(cycleID, StateFailed, counts, err.Error())
	}
	return counts, err
}

func (r *Reconciler) run(ctx context.Context, cycleID string) (Counts, error) {
	var counts Counts

	cursor := ""
	cp, err := r.checkpoints.Latest(ctx, r.cfg.Name, listingStream)
	if err != nil {
		return counts, fmt.Errorf("reading checkpoint: %w", err)
	}
	if cp != nil {
		cursor = cp.Cursor
	}

	// A fully failed listing fetch leaves the checkpoint untouched so
	// the next cycle retries the same window.
	listing, err := r.fetchListing(ctx, cursor)
	if err != nil {
		return counts, fmt.Errorf("fetching listing for %s: %w", r.cfg.Name, err)
	}

	observed := make(map[string]bool, len(listing.Items))
	for _, item := range listing.Items {
		if item.Identity == "" || !r.filter.Match(item.Identity) {
			continue
		}
		observed[item.Identity] = true
	}

	// Item-level writes run in parallel under a bounded semaphore; the
	// WaitGroup is the barrier before the checkpoint commit.
	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, item := range listing.Items {
		if !observed[item.Identity] {
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return counts, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(it source.Item) {
			defer wg.Done()
			defer func() { <-sem }()

			class, err := r.processItem(ctx, it)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				counts.Failed++
				log.Printf("reconciler[%s]: item %s failed this cycle: %v", r.cfg.Name, it.Identity, err)
				return
			}
			switch class {
			case ClassNew:
				counts.New++
			case ClassUpdated:
				counts.Updated++
			case ClassUnchanged:
				counts.Unchanged++
			}
		}(item)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return counts, err
	}

	// Repeal pass: identities previously known to this source that a
	// complete listing no longer mentions are retracted. Incomplete
	// listings (e.g. a 304 short-circuit) observe nothing and must not
	// repeal anything.
	if listing.Complete {
		repealed, err := r.repealMissing(ctx, observed)
		counts.Repealed = repealed
		if err != nil {
			return counts, err
		}
	}

	if err := ctx.Err(); err != nil {
		return counts, err
	}

	// Durability boundary: committing the checkpoint declares this
	// cycle safe to never retry. A cycle with failed items must not
	// move past them, so it re-commits the prior cursor instead and
	// the next cycle re-observes the same window.
	next := listing.NextCursor
	if counts.Failed > 0 {
		next = cursor
	}
	if _, err := r.checkpoints.Commit(ctx, r.cfg.Name, listingStream, next); err != nil {
		return counts, fmt.Errorf("committing checkpoint: %w", err)
	}

	return counts, nil
}

// processItem classifies a single observed item and applies its write.
func (r *Reconciler) processItem(ctx context.Context, item source.Item) (Classification, error) {
	cur, err := r.store.CurrentFor(ctx, r.cfg.Name, item.Identity)
	if err != nil {
		return "", err
	}

	// Items listed without content need a per-item fetch; send the
	// last-checked indicator when the origin honours it.
	if item.Content == "" && !item.NotModified {
		var modifiedSince time.Time
		if r.adapter.SupportsConditionalFetch() && cur != nil {
			modifiedSince = cur.LastChecked
		}
		fetched, err := r.fetchItem(ctx, item.Identity, modifiedSince)
		if err != nil {
			return "", err
		}
		item = *fetched
	}

	if item.NotModified {
		// Conditional short-circuit: trust it only as a cost saving,
		// never to invent state we do not have.
		if cur == nil {
			return "", fmt.Errorf("origin reported not-modified for unknown item %s", item.Identity)
		}
		return ClassUnchanged, r.touchUnchanged(ctx, item.Identity)
	}

	fp, err := r.fingerprintItem(item)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", item.Identity, err)
	}

	prior, err := r.fingerprints.Get(ctx, r.cfg.Name, item.Identity)
	if err != nil {
		return "", err
	}

	switch {
	case prior == "":
		rec := r.buildRecord(item, fp)
		if _, err := r.store.Insert(ctx, rec); err != nil {
			return "", fmt.Errorf("inserting %s: %w", item.Identity, err)
		}
		if err := r.fingerprints.Put(ctx, r.cfg.Name, item.Identity, fp); err != nil {
			return "", err
		}
		return ClassNew, nil

	case prior != fp:
		if cur == nil {
			// Fingerprint known but no current record: internal
			// inconsistency. Repair by starting a fresh chain.
			log.Printf("reconciler[%s]: fingerprint for %s has no current record, reinserting", r.cfg.Name, item.Identity)
			if _, err := r.store.Insert(ctx, r.buildRecord(item, fp)); err != nil {
				return "", fmt.Errorf("reinserting %s: %w", item.Identity, err)
			}
		} else {
			// A fetched body's fingerprint is authoritative over any
			// conditional-fetch signal that claimed no change.
			if r.adapter.SupportsConditionalFetch() && !item.Published.IsZero() && !item.Published.After(cur.LastChecked) {
				log.Printf("reconciler[%s]: %s content changed although upstream modification time predates last check; trusting fingerprint", r.cfg.Name, item.Identity)
			}
			if _, err := r.store.Supersede(ctx, cur.ID, r.buildRecord(item, fp)); err != nil {
				return "", fmt.Errorf("superseding %s: %w", item.Identity, err)
			}
		}
		if err := r.fingerprints.Put(ctx, r.cfg.Name, item.Identity, fp); err != nil {
			return "", err
		}
		return ClassUpdated, nil

	default:
		return ClassUnchanged, r.touchUnchanged(ctx, item.Identity)
	}
}

// fingerprintItem hashes an item's significant content per the
// source's declared body format.
func (r *Reconciler) fingerprintItem(item source.Item) (string, error) {
	if r.cfg.Format == config.FormatMarkdown {
		return fingerprint.ComputeMarkdownContent(item.Title, item.Content)
	}
	return fingerprint.ComputeContent(item.Title, item.Content)
}

func (r *Reconciler) touchUnchanged(ctx context.Context, identity string) error {
	if err := r.store.TouchLastChecked(ctx, r.cfg.Name, identity); err != nil {
		return err
	}
	return r.fingerprints.Touch(ctx, r.cfg.Name, identity)
}

func (r *Reconciler) buildRecord(item source.Item, fp string) docstore.Record {
	return docstore.Record{
		Source:      r.cfg.Name,
		Identity:    item.Identity,
		Collection:  r.cfg.Collection,
		Title:       item.Title,
		Content:     item.Content,
		Fingerprint: fp,
	}
}

// repealMissing retracts every identity known to this source that the
// complete listing did not mention.
func (r *Reconciler) repealMissing(ctx context.Context, observed map[string]bool) (int, error) {
	known, err := r.fingerprints.KnownIdentities(ctx, r.cfg.Name)
	if err != nil {
		return 0, err
	}

	repealed := 0
	for _, identity := range known {
		if observed[identity] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return repealed, err
		}

		cur, err := r.store.CurrentFor(ctx, r.cfg.Name, identity)
		if err != nil {
			return repealed, err
		}
		if cur != nil {
			if err := r.store.Retract(ctx, cur.ID); err != nil {
				return repealed, fmt.Errorf("retracting %s: %w", identity, err)
			}
		}
		// Dropping the fingerprint makes a reappearance classify as
		// new, starting a fresh record chain.
		if err := r.fingerprints.Delete(ctx, r.cfg.Name, identity); err != nil {
			return repealed, err
		}
		repealed++
	}
	return repealed, nil
}

// fetchListing retries transient listing failures with exponential
// backoff up to the configured attempt bound.
func (r *Reconciler) fetchListing(ctx context.Context, cursor string) (*source.Listing, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := r.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		listing, err := r.adapter.FetchListing(ctx, cursor)
		if err == nil {
			return listing, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Reconciler) fetchItem(ctx context.Context, identity string, modifiedSince time.Time) (*source.Item, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := r.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		item, err := r.adapter.FetchItem(ctx, identity, modifiedSince)
		if err == nil {
			return item, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoff sleeps 0, base, 2*base, 4*base... per attempt.
func (r *Reconciler) backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return ctx.Err()
	}
	delay := r.backoffBase << (attempt - 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (r *Reconciler) finish(cycleID string, state CycleState, counts Counts, errMsg string) {
	// Status bookkeeping uses a background context so a cancelled cycle
	// still records its terminal state.
	if err := r.cycles.Finish(context.Background(), cycleID, state, counts, errMsg); err != nil {
		log.Printf("reconciler[%s]: recording cycle %s: %v", r.cfg.Name, cycleID, err)
	}
	r.publish(events.TypeCycleFinished, cycleID, map[string]any{
		"state":     string(state),
		"new":       counts.New,
		"updated":   counts.Updated,
		"unchanged": counts.Unchanged,
		"repealed":  counts.Repealed,
		"failed":    counts.Failed,
	})
}

func (r *Reconciler) publish(eventType, cycleID string, detail map[string]any) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(events.Event{
		Type:    eventType,
		Source:  r.cfg.Name,
		CycleID: cycleID,
		Detail:  detail,
	})
}
