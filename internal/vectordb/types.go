package vectordb

import "time"

// Document is one indexed entry, keyed by item identity so that a
// superseding version overwrites its predecessor instead of
// duplicating it.
type Document struct {
	// ID is the item identity within the collection.
	ID      string
	Content string
	// Embedding, when non-nil, is used directly instead of calling the
	// embedder. The indexer batches its embedding calls and passes the
	// vectors through here.
	Embedding []float32
	Metadata  Metadata
}

// Metadata holds structured information about an indexed document.
type Metadata struct {
	Source      string
	Identity    string
	Title       string
	Fingerprint string
	RecordID    string
	LastChecked time.Time
}

// Result pairs a document with its similarity score.
type Result struct {
	Document   Document
	Similarity float32
}

// CollectionInfo summarizes one collection for introspection.
type CollectionInfo struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Dimensions int    `json:"dimensions"`
}
