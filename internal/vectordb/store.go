// Package vectordb keeps per-collection embedding indexes in
// chromem-go. Entries are keyed by item identity; upserting the same
// identity replaces the previous vector, which is what makes an updated
// record supersede its old entry rather than sit beside it.
package vectordb

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/datamancy/corpusd/internal/embeddings"
)

// Store manages one chromem collection per configured collection.
type Store struct {
	db        *chromem.DB
	embedder  embeddings.Embedder
	embedFunc chromem.EmbeddingFunc

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	dims        map[string]int
}

// NewStore creates an in-memory vector store.
func NewStore(embedder embeddings.Embedder) *Store {
	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		embedFunc:   embeddings.ToChromemFunc(embedder),
		collections: make(map[string]*chromem.Collection),
		dims:        make(map[string]int),
	}
}

// EnsureCollection creates or opens a collection with the declared
// dimensionality.
func (s *Store) EnsureCollection(name string, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; ok {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embedFunc)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.collections[name] = col
	s.dims[name] = dimensions
	return nil
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return col, nil
}

// Reset drops every entry in a collection while keeping its dimension
// declaration. Used by full reindexes to shed entries the journal no
// longer accounts for.
func (s *Store) Reset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("unknown collection %q", name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embedFunc)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", name, err)
	}
	s.collections[name] = col
	return nil
}

// Upsert adds or replaces documents in a collection, keyed by identity.
func (s *Store) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	s.mu.RLock()
	dims := s.dims[collection]
	s.mu.RUnlock()

	chromDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if dims > 0 && doc.Embedding != nil && len(doc.Embedding) != dims {
			return fmt.Errorf("collection %s expects %d dimensions, got %d for %s",
				collection, dims, len(doc.Embedding), doc.ID)
		}
		chromDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  metadataToMap(doc.Metadata),
		}
	}

	return col.AddDocuments(ctx, chromDocs, 1)
}

// Delete removes the entry for an identity, if present.
func (s *Store) Delete(ctx context.Context, collection, identity string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	return col.Delete(ctx, nil, nil, identity)
}

// Search performs nearest-neighbour search over one collection.
func (s *Store) Search(ctx context.Context, collection, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// Count returns the number of entries in a collection, or zero if the
// collection does not exist.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return 0
	}
	return col.Count()
}

// Collections lists the known collections sorted by name.
func (s *Store) Collections() []CollectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]CollectionInfo, 0, len(s.collections))
	for name, col := range s.collections {
		infos = append(infos, CollectionInfo{
			Name:       name,
			Count:      col.Count(),
			Dimensions: s.dims[name],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

const exportFile = "vectordb.gob.gz"

// Persist saves the store's data to the given directory.
func (s *Store) Persist(ctx context.Context, dir string) error {
	return s.db.ExportToFile(filepath.Join(dir, exportFile), true, "")
}

// Load restores the store's data from the given directory. Collections
// must be re-ensured by the caller before use so dimension declarations
// survive the round trip.
func (s *Store) Load(ctx context.Context, dir string) error {
	if err := s.db.ImportFromFile(filepath.Join(dir, exportFile), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection references after import.
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.collections {
		if col := s.db.GetCollection(name, s.embedFunc); col != nil {
			s.collections[name] = col
		}
	}
	return nil
}

// metadataToMap converts Metadata to a flat map[string]string for chromem.
func metadataToMap(m Metadata) map[string]string {
	return map[string]string{
		"source":       m.Source,
		"identity":     m.Identity,
		"title":        m.Title,
		"fingerprint":  m.Fingerprint,
		"record_id":    m.RecordID,
		"last_checked": strconv.FormatInt(m.LastChecked.UTC().UnixNano(), 10),
	}
}

// mapToMetadata converts a flat map[string]string back to Metadata.
func mapToMetadata(m map[string]string) Metadata {
	var lastChecked time.Time
	if ns, err := strconv.ParseInt(m["last_checked"], 10, 64); err == nil {
		lastChecked = time.Unix(0, ns).UTC()
	}
	return Metadata{
		Source:      m["source"],
		Identity:    m["identity"],
		Title:       m["title"],
		Fingerprint: m["fingerprint"],
		RecordID:    m["record_id"],
		LastChecked: lastChecked,
	}
}
