package search

import (
	"sort"
	"time"
)

// rrfK is the reciprocal rank fusion constant. 60 keeps the fused
// ordering stable against small rank perturbations in either backend.
const rrfK = 60

// ranked is one backend's ordered result list for fusion. Position in
// the slice is the rank.
type ranked struct {
	identity    string
	collection  string
	title       string
	snippet     string
	lastChecked time.Time
}

// fuse merges per-backend rankings with reciprocal rank fusion:
// score(d) = sum over backends of 1/(k + rank(d)). An identity absent
// from a backend simply contributes nothing from it. Ties break toward
// the more recently checked document, then identity for determinism.
func fuse(rankings [][]ranked, limit int) []Result {
	type fused struct {
		ranked
		score float64
	}
	byKey := make(map[string]*fused)

	for _, ranking := range rankings {
		for rank, doc := range ranking {
			key := doc.collection + "\x00" + doc.identity
			f, ok := byKey[key]
			if !ok {
				f = &fused{ranked: doc}
				byKey[key] = f
			}
			f.score += 1.0 / float64(rrfK+rank+1)
			// Prefer the richer snippet when backends disagree.
			if f.snippet == "" {
				f.snippet = doc.snippet
			}
		}
	}

	out := make([]fused, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if !out[i].lastChecked.Equal(out[j].lastChecked) {
			return out[i].lastChecked.After(out[j].lastChecked)
		}
		if out[i].collection != out[j].collection {
			return out[i].collection < out[j].collection
		}
		return out[i].identity < out[j].identity
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	results := make([]Result, len(out))
	for i, f := range out {
		results[i] = Result{
			Identity:    f.identity,
			Collection:  f.collection,
			Title:       f.title,
			Score:       f.score,
			Snippet:     f.snippet,
			LastChecked: f.lastChecked,
		}
	}
	return results
}
