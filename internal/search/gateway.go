package search

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/lexical"
	"github.com/datamancy/corpusd/internal/vectordb"
)

const defaultLimit = 10

// Gateway answers search requests against the vector and lexical
// indexes. It holds no state of its own beyond the collection
// configuration used for audience filtering.
type Gateway struct {
	vectors     *vectordb.Store
	lexicon     *lexical.Index
	collections []config.CollectionConfig
}

// NewGateway creates a gateway over both index backends.
func NewGateway(vectors *vectordb.Store, lexicon *lexical.Index, collections []config.CollectionConfig) *Gateway {
	return &Gateway{vectors: vectors, lexicon: lexicon, collections: collections}
}

// Search runs one query. Hybrid mode fuses both backends with
// reciprocal rank fusion; if exactly one backend fails the other's
// ranking is returned with Degraded set. A backend failure in a
// single-backend mode is an error, never an empty result.
func (g *Gateway) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	collections, err := g.resolveCollections(req)
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return &Response{Results: []Result{}}, nil
	}

	// Each backend contributes one globally ranked list across the
	// admitted collections; the audience filter has already run.
	switch mode {
	case ModeVector:
		ranking, err := g.vectorRanking(ctx, collections, req.Query, limit)
		if err != nil {
			return nil, err
		}
		return &Response{Results: fuse([][]ranked{ranking}, limit)}, nil

	case ModeLexical:
		ranking := g.lexicalRanking(collections, req.Query, limit)
		return &Response{Results: fuse([][]ranked{ranking}, limit)}, nil

	case ModeHybrid:
		lexRanking := g.lexicalRanking(collections, req.Query, limit)
		vecRanking, vecErr := g.vectorRanking(ctx, collections, req.Query, limit)
		if vecErr != nil {
			log.Printf("search: vector backend failed, serving lexical only: %v", vecErr)
			return &Response{Results: fuse([][]ranked{lexRanking}, limit), Degraded: true}, nil
		}
		return &Response{Results: fuse([][]ranked{vecRanking, lexRanking}, limit)}, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}
}

// resolveCollections expands the request's collection selector and
// applies the audience filter before any backend is queried.
func (g *Gateway) resolveCollections(req Request) ([]string, error) {
	admitted := make(map[string]bool, len(g.collections))
	for _, cc := range g.collections {
		if req.Audience != "" && cc.Audience != "" && cc.Audience != req.Audience {
			continue
		}
		admitted[cc.Name] = true
	}

	wildcard := len(req.Collections) == 0
	for _, name := range req.Collections {
		if name == "*" {
			wildcard = true
			break
		}
	}

	var out []string
	if wildcard {
		for name := range admitted {
			out = append(out, name)
		}
		sort.Strings(out)
		return out, nil
	}

	for _, name := range req.Collections {
		if !g.knownCollection(name) {
			return nil, fmt.Errorf("%w %q", ErrUnknownCollection, name)
		}
		if admitted[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

func (g *Gateway) knownCollection(name string) bool {
	for _, cc := range g.collections {
		if cc.Name == name {
			return true
		}
	}
	return false
}

// vectorRanking queries each collection and merges by similarity into
// one ranked list.
func (g *Gateway) vectorRanking(ctx context.Context, collections []string, query string, limit int) ([]ranked, error) {
	type scored struct {
		ranked
		similarity float32
	}
	var all []scored
	for _, collection := range collections {
		results, err := g.vectors.Search(ctx, collection, query, limit)
		if err != nil {
			return nil, fmt.Errorf("vector search in %s: %w", collection, err)
		}
		for _, r := range results {
			all = append(all, scored{
				ranked: ranked{
					identity:    r.Document.ID,
					collection:  collection,
					title:       r.Document.Metadata.Title,
					snippet:     snippetFrom(r.Document.Content),
					lastChecked: r.Document.Metadata.LastChecked,
				},
				similarity: r.Similarity,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].similarity > all[j].similarity })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]ranked, len(all))
	for i, s := range all {
		out[i] = s.ranked
	}
	return out, nil
}

// lexicalRanking queries each collection and merges by score. The
// in-process index cannot fail, so no error path.
func (g *Gateway) lexicalRanking(collections []string, query string, limit int) []ranked {
	type scored struct {
		ranked
		score float64
	}
	var all []scored
	for _, collection := range collections {
		for _, hit := range g.lexicon.Search(collection, query, limit) {
			all = append(all, scored{
				ranked: ranked{
					identity:    hit.Identity,
					collection:  collection,
					title:       hit.Title,
					snippet:     hit.Snippet,
					lastChecked: hit.LastChecked,
				},
				score: hit.Score,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]ranked, len(all))
	for i, s := range all {
		out[i] = s.ranked
	}
	return out
}

// snippetFrom truncates content to a short preview for vector hits,
// which carry no query-anchored snippet of their own.
func snippetFrom(content string) string {
	const max = 240
	if len(content) <= max {
		return content
	}
	return content[:max] + "…"
}
