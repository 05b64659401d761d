// Package lexical maintains an in-memory inverted index per collection
// with TF-IDF ranking. It is a derived view, rebuilt from the document
// store on startup and kept in step by the indexer.
package lexical

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one indexed document.
type Entry struct {
	Identity    string
	Title       string
	Content     string
	LastChecked time.Time
}

// Hit is one ranked lexical search result.
type Hit struct {
	Identity    string
	Score       float64
	Snippet     string
	Title       string
	LastChecked time.Time
}

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Index holds the per-collection inverted indexes.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collectionIndex
}

type collectionIndex struct {
	entries map[string]*indexedEntry // by identity
	// postings maps a term to the identities containing it.
	postings map[string]map[string]int
}

type indexedEntry struct {
	entry     Entry
	termFreqs map[string]int
	length    int
}

// NewIndex creates an empty lexical index.
func NewIndex() *Index {
	return &Index{collections: make(map[string]*collectionIndex)}
}

// EnsureCollection creates the collection if it does not exist.
func (ix *Index) EnsureCollection(name string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.collections[name]; !ok {
		ix.collections[name] = &collectionIndex{
			entries:  make(map[string]*indexedEntry),
			postings: make(map[string]map[string]int),
		}
	}
}

// Reset drops every entry in a collection, leaving it empty. Used by
// full reindexes.
func (ix *Index) Reset(name string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.collections[name]; ok {
		ix.collections[name] = &collectionIndex{
			entries:  make(map[string]*indexedEntry),
			postings: make(map[string]map[string]int),
		}
	}
}

// Upsert indexes an entry, replacing any previous entry for the same
// identity.
func (ix *Index) Upsert(collection string, e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ci, ok := ix.collections[collection]
	if !ok {
		ci = &collectionIndex{
			entries:  make(map[string]*indexedEntry),
			postings: make(map[string]map[string]int),
		}
		ix.collections[collection] = ci
	}

	ci.remove(e.Identity)

	freqs := make(map[string]int)
	total := 0
	for _, tok := range tokenize(e.Title + " " + e.Content) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		freqs[tok]++
		total++
	}

	ci.entries[e.Identity] = &indexedEntry{entry: e, termFreqs: freqs, length: total}
	for term, n := range freqs {
		posting, ok := ci.postings[term]
		if !ok {
			posting = make(map[string]int)
			ci.postings[term] = posting
		}
		posting[e.Identity] = n
	}
}

// Delete removes an identity from a collection.
func (ix *Index) Delete(collection, identity string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ci, ok := ix.collections[collection]; ok {
		ci.remove(identity)
	}
}

func (ci *collectionIndex) remove(identity string) {
	ie, ok := ci.entries[identity]
	if !ok {
		return
	}
	for term := range ie.termFreqs {
		delete(ci.postings[term], identity)
		if len(ci.postings[term]) == 0 {
			delete(ci.postings, term)
		}
	}
	delete(ci.entries, identity)
}

// Count returns the number of indexed entries in a collection.
func (ix *Index) Count(collection string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ci, ok := ix.collections[collection]; ok {
		return len(ci.entries)
	}
	return 0
}

// Search ranks entries of a collection against the query by summed
// TF-IDF weight. Documents matching no query term are not returned.
func (ix *Index) Search(collection, query string, limit int) []Hit {
	if limit <= 0 {
		limit = 10
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ci, ok := ix.collections[collection]
	if !ok || len(ci.entries) == 0 {
		return nil
	}

	terms := tokenize(query)
	n := float64(len(ci.entries))

	scores := make(map[string]float64)
	for _, term := range terms {
		if _, stop := stopwords[term]; stop {
			continue
		}
		posting, ok := ci.postings[term]
		if !ok {
			continue
		}
		// Smoothed IDF, as in a standard sublinear TF-IDF scheme.
		idf := math.Log((1+n)/(1+float64(len(posting)))) + 1.0
		for identity, tf := range posting {
			length := ci.entries[identity].length
			if length == 0 {
				continue
			}
			scores[identity] += (1 + math.Log(float64(tf))) * idf / math.Sqrt(float64(length))
		}
	}

	hits := make([]Hit, 0, len(scores))
	for identity, score := range scores {
		ie := ci.entries[identity]
		hits = append(hits, Hit{
			Identity:    identity,
			Score:       score,
			Snippet:     snippet(ie.entry.Content, terms),
			Title:       ie.entry.Title,
			LastChecked: ie.entry.LastChecked,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Identity < hits[j].Identity
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

const snippetRadius = 120

// snippet extracts a window of content around the first query term
// occurrence, falling back to the leading content.
func snippet(content string, terms []string) string {
	lower := strings.ToLower(content)
	pos := -1
	for _, term := range terms {
		if i := strings.Index(lower, term); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}

	start := 0
	if pos > snippetRadius {
		start = pos - snippetRadius
	}
	end := len(content)
	if pos >= 0 && pos+snippetRadius < end {
		end = pos + snippetRadius
	} else if pos < 0 && 2*snippetRadius < end {
		end = 2 * snippetRadius
	}

	s := strings.TrimSpace(content[start:end])
	if start > 0 {
		s = "…" + s
	}
	if end < len(content) {
		s += "…"
	}
	return s
}

// stopwords is a small English stopword list; enough to keep common
// glue words from dominating scores.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {},
}
