package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/fingerprint"
)

// JSONAdapter fetches paginated JSON listing endpoints of the shape
//
//	GET {url}?cursor=...  -> { "items": [{"id","title","updated"}], "next": "..." }
//	GET {url}/{id}        -> { "id","title","content","updated" }
//
// The listing is cheap (ids and timestamps only); item content is
// fetched separately, which is where conditional fetch pays off: an
// If-Modified-Since request answered with 304 skips the body entirely.
type JSONAdapter struct {
	cfg    config.SourceConfig
	client *client
}

// NewJSONAdapter creates a JSON listing adapter for the given source.
func NewJSONAdapter(cfg config.SourceConfig) *JSONAdapter {
	return &JSONAdapter{cfg: cfg, client: newClient(cfg.RatePerSecond)}
}

func (a *JSONAdapter) Name() string { return a.cfg.Name }

func (a *JSONAdapter) SupportsConditionalFetch() bool { return a.cfg.Conditional }

type jsonListing struct {
	Items []jsonListingItem `json:"items"`
	Next  string            `json:"next"`
}

type jsonListingItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Updated string `json:"updated"`
}

type jsonItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Updated string `json:"updated"`
}

// FetchListing walks all pages starting from cursor. The returned
// cursor is empty (each cycle re-lists from the beginning), and the
// listing is complete unless a page fetch fails partway.
func (a *JSONAdapter) FetchListing(ctx context.Context, cursor string) (*Listing, error) {
	listing := &Listing{Complete: true}
	page := cursor

	for {
		endpoint := a.cfg.URL
		if page != "" {
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint += sep + "cursor=" + url.QueryEscape(page)
		}

		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating listing request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := a.client.do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetching listing: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("listing %s returned %d: %s", endpoint, resp.StatusCode, string(body))
		}

		var pl jsonListing
		err = json.NewDecoder(resp.Body).Decode(&pl)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding listing: %w", err)
		}

		for _, it := range pl.Items {
			listing.Items = append(listing.Items, Item{
				Identity:  it.ID,
				Title:     it.Title,
				Published: parseJSONTime(it.Updated),
			})
		}

		if pl.Next == "" {
			break
		}
		page = pl.Next
	}

	return listing, nil
}

// FetchItem retrieves one item's content, conditionally when the origin
// supports it.
func (a *JSONAdapter) FetchItem(ctx context.Context, identity string, modifiedSince time.Time) (*Item, error) {
	endpoint := strings.TrimRight(a.cfg.URL, "/") + "/" + url.PathEscape(identity)

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating item request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.cfg.Conditional && !modifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", modifiedSince.UTC().Format(http.TimeFormat))
	}

	resp, err := a.client.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching item %s: %w", identity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Item{Identity: identity, NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("item %s returned %d: %s", endpoint, resp.StatusCode, string(body))
	}

	var it jsonItem
	if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
		return nil, fmt.Errorf("decoding item %s: %w", identity, err)
	}

	return &Item{
		Identity:  identity,
		Title:     it.Title,
		Content:   fingerprint.HTMLToText(it.Content),
		Published: parseJSONTime(it.Updated),
	}, nil
}

func parseJSONTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
