// Package source contains the fetch adapters for external origins. Each
// adapter implements the same capability interface; the reconciler never
// knows which kind of origin it is talking to.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/datamancy/corpusd/internal/config"
)

// Item is one upstream item as observed during a listing or content
// fetch.
type Item struct {
	// Identity is the source-scoped canonical key, stable across cycles.
	Identity string
	Title    string
	// Content is the normalized plain-text body. Empty when NotModified.
	Content string
	// Published is the upstream publication timestamp, if reported.
	Published time.Time
	// NotModified is set when a conditional fetch reported no change
	// without returning content.
	NotModified bool
}

// Listing is the result of one listing fetch.
type Listing struct {
	Items []Item
	// NextCursor is the resumption point to persist after this cycle.
	NextCursor string
	// Complete reports whether Items enumerates the origin's full
	// current corpus. Repeal detection only runs on complete listings.
	Complete bool
}

// Adapter is the capability interface implemented per origin kind.
type Adapter interface {
	Name() string

	// SupportsConditionalFetch reports whether FetchItem can short-cut
	// to NotModified given a modifiedSince hint.
	SupportsConditionalFetch() bool

	// FetchListing enumerates the origin starting from cursor.
	FetchListing(ctx context.Context, cursor string) (*Listing, error)

	// FetchItem retrieves one item's content. When the adapter supports
	// conditional fetch and the item is unchanged since modifiedSince,
	// the returned item has NotModified set and no content.
	FetchItem(ctx context.Context, identity string, modifiedSince time.Time) (*Item, error)
}

// New builds the adapter for a source configuration.
func New(cfg config.SourceConfig) (Adapter, error) {
	switch cfg.Kind {
	case config.SourceFeed:
		return NewFeedAdapter(cfg), nil
	case config.SourceJSON:
		return NewJSONAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
