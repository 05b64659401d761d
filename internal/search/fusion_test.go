package search

import (
	"testing"
	"time"
)

func rankedDoc(identity string) ranked {
	return ranked{identity: identity, collection: "law"}
}

func TestFuseRewardsPresenceInBothRankings(t *testing.T) {
	// "b" is mid-ranked in both lists; "a" and "c" each top one list
	// but miss the other entirely. RRF puts "b" first.
	vector := []ranked{rankedDoc("a"), rankedDoc("b")}
	lexical := []ranked{rankedDoc("c"), rankedDoc("b")}

	results := fuse([][]ranked{vector, lexical}, 10)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Identity != "b" {
		t.Fatalf("top result = %s, want b (present in both rankings)", results[0].Identity)
	}

	wantTop := 1.0/61.0 + 1.0/62.0
	if diff := results[0].Score - wantTop; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want %v", results[0].Score, wantTop)
	}
}

func TestFuseIsDeterministicAcrossRuns(t *testing.T) {
	vector := []ranked{rankedDoc("a"), rankedDoc("b"), rankedDoc("c")}
	lexical := []ranked{rankedDoc("c"), rankedDoc("a"), rankedDoc("b")}

	first := fuse([][]ranked{vector, lexical}, 10)
	for i := 0; i < 50; i++ {
		again := fuse([][]ranked{vector, lexical}, 10)
		for j := range first {
			if again[j].Identity != first[j].Identity {
				t.Fatalf("run %d: position %d = %s, want %s", i, j, again[j].Identity, first[j].Identity)
			}
		}
	}
}

func TestFuseBreaksTiesByRecency(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	// Same single-list rank structure: a at rank 1 of list one, b at
	// rank 1 of list two. Identical scores, recency decides.
	listOne := []ranked{{identity: "a", collection: "law", lastChecked: older}}
	listTwo := []ranked{{identity: "b", collection: "law", lastChecked: newer}}

	results := fuse([][]ranked{listOne, listTwo}, 10)
	if results[0].Identity != "b" {
		t.Fatalf("top result = %s, want the more recently checked b", results[0].Identity)
	}
}

func TestFuseDedupesByCollectionAndIdentity(t *testing.T) {
	// The same identity may exist in two collections; those are
	// distinct results, not duplicates.
	vector := []ranked{{identity: "x", collection: "law"}, {identity: "x", collection: "rulings"}}

	results := fuse([][]ranked{vector}, 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 distinct collection entries", len(results))
	}
}

func TestFuseTruncatesToLimit(t *testing.T) {
	var ranking []ranked
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		ranking = append(ranking, rankedDoc(id))
	}
	results := fuse([][]ranked{ranking}, 2)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Identity != "a" || results[1].Identity != "b" {
		t.Fatalf("results = %v, want the two top-ranked", results)
	}
}
