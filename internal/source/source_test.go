package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/datamancy/corpusd/internal/config"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>First &lt;b&gt;post&lt;/b&gt;</title>
      <link>https://example.org/1</link>
      <description>&lt;p&gt;Hello world&lt;/p&gt;</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
    </item>
    <item>
      <title>Second post</title>
      <guid>urn:example:2</guid>
      <description>More text</description>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Atom entry</title>
    <id>urn:atom:1</id>
    <link rel="alternate" href="https://example.org/atom/1"/>
    <summary>Summary text</summary>
    <updated>2024-03-01T10:00:00Z</updated>
  </entry>
</feed>`

func feedSource(url string, conditional bool) config.SourceConfig {
	cfg := config.SourceConfig{
		Name:       "test-feed",
		Kind:       config.SourceFeed,
		URL:        url,
		Collection: "news",
	}
	cfg.Conditional = conditional
	config.ApplySourceDefaults(&cfg)
	return cfg
}

func TestFeedAdapterRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Tue, 05 Mar 2024 10:00:00 GMT")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	a := NewFeedAdapter(feedSource(srv.URL, false))
	listing, err := a.FetchListing(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if !listing.Complete {
		t.Error("feed listing should be complete")
	}
	if len(listing.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(listing.Items))
	}
	if listing.Items[0].Identity != "https://example.org/1" {
		t.Errorf("identity = %q, want link", listing.Items[0].Identity)
	}
	if listing.Items[0].Title != "First post" {
		t.Errorf("title not stripped of markup: %q", listing.Items[0].Title)
	}
	if listing.Items[0].Content != "Hello world" {
		t.Errorf("content = %q", listing.Items[0].Content)
	}
	// GUID fallback when no link.
	if listing.Items[1].Identity != "urn:example:2" {
		t.Errorf("guid fallback identity = %q", listing.Items[1].Identity)
	}
	if listing.NextCursor != "Tue, 05 Mar 2024 10:00:00 GMT" {
		t.Errorf("cursor = %q, want Last-Modified header", listing.NextCursor)
	}
}

func TestFeedAdapterAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleAtom))
	}))
	defer srv.Close()

	a := NewFeedAdapter(feedSource(srv.URL, false))
	listing, err := a.FetchListing(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if len(listing.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(listing.Items))
	}
	it := listing.Items[0]
	if it.Identity != "https://example.org/atom/1" {
		t.Errorf("identity = %q, want alternate link", it.Identity)
	}
	if it.Content != "Summary text" {
		t.Errorf("content = %q", it.Content)
	}
	if it.Published.IsZero() {
		t.Error("expected parsed updated timestamp")
	}
}

func TestFeedAdapterNotModified(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	a := NewFeedAdapter(feedSource(srv.URL, true))
	cursor := "Tue, 05 Mar 2024 10:00:00 GMT"
	listing, err := a.FetchListing(context.Background(), cursor)
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if gotHeader != cursor {
		t.Errorf("If-Modified-Since = %q, want cursor", gotHeader)
	}
	if listing.Complete {
		t.Error("a 304 listing must not be treated as a complete enumeration")
	}
	if len(listing.Items) != 0 {
		t.Errorf("expected no items, got %d", len(listing.Items))
	}
	if listing.NextCursor != cursor {
		t.Errorf("cursor must be preserved on 304, got %q", listing.NextCursor)
	}
}

func TestJSONAdapterPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/items", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]string{{"id": "a", "title": "A", "updated": "2024-03-01T00:00:00Z"}},
				"next":  "p2",
			})
		case "p2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]string{{"id": "b", "title": "B", "updated": "2024-03-02T00:00:00Z"}},
			})
		default:
			http.Error(w, "bad cursor", http.StatusBadRequest)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.SourceConfig{Name: "api", Kind: config.SourceJSON, URL: srv.URL + "/api/items", Collection: "docs"}
	config.ApplySourceDefaults(&cfg)

	a := NewJSONAdapter(cfg)
	listing, err := a.FetchListing(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if len(listing.Items) != 2 {
		t.Fatalf("expected 2 items across pages, got %d", len(listing.Items))
	}
	if listing.Items[0].Identity != "a" || listing.Items[1].Identity != "b" {
		t.Errorf("unexpected identities: %v", listing.Items)
	}
	if !listing.Complete {
		t.Error("fully paginated listing should be complete")
	}
}

func TestJSONAdapterConditionalFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/items/a", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id": "a", "title": "A", "content": "<p>body</p>", "updated": "2024-03-01T00:00:00Z",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.SourceConfig{Name: "api", Kind: config.SourceJSON, URL: srv.URL + "/api/items", Collection: "docs", Conditional: true}
	config.ApplySourceDefaults(&cfg)
	a := NewJSONAdapter(cfg)

	// Unconditional fetch returns content.
	it, err := a.FetchItem(context.Background(), "a", time.Time{})
	if err != nil {
		t.Fatalf("FetchItem: %v", err)
	}
	if it.NotModified || it.Content != "body" {
		t.Errorf("unexpected item: %+v", it)
	}

	// Conditional fetch short-circuits.
	it, err = a.FetchItem(context.Background(), "a", time.Now())
	if err != nil {
		t.Fatalf("conditional FetchItem: %v", err)
	}
	if !it.NotModified {
		t.Error("expected NotModified for 304 response")
	}
}

func TestIdentityFilter(t *testing.T) {
	tests := []struct {
		name     string
		include  []string
		exclude  []string
		identity string
		want     bool
	}{
		{"no patterns admits all", nil, nil, "anything", true},
		{"include match", []string{"https://example.org/docs/**"}, nil, "https://example.org/docs/a/b", true},
		{"include miss", []string{"https://example.org/docs/**"}, nil, "https://example.org/blog/a", false},
		{"exclude wins", []string{"**"}, []string{"**/draft-*"}, "docs/draft-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewIdentityFilter(tt.include, tt.exclude)
			if got := f.Match(tt.identity); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.identity, got, tt.want)
			}
		})
	}
}

func TestNewSelectsAdapter(t *testing.T) {
	feed := config.SourceConfig{Name: "f", Kind: config.SourceFeed, URL: "http://x", Collection: "c"}
	a, err := New(feed)
	if err != nil {
		t.Fatalf("New(feed): %v", err)
	}
	if _, ok := a.(*FeedAdapter); !ok {
		t.Errorf("expected FeedAdapter, got %T", a)
	}

	js := config.SourceConfig{Name: "j", Kind: config.SourceJSON, URL: "http://x", Collection: "c"}
	a, err = New(js)
	if err != nil {
		t.Fatalf("New(json): %v", err)
	}
	if _, ok := a.(*JSONAdapter); !ok {
		t.Errorf("expected JSONAdapter, got %T", a)
	}

	if _, err := New(config.SourceConfig{Kind: "ftp"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
