// Package search is the stateless retrieval gateway over the vector and
// lexical indexes.
package search

import (
	"errors"
	"time"
)

// Request validation errors. Anything the gateway returns that does not
// match one of these is a backend failure, not the caller's fault.
var (
	ErrEmptyQuery        = errors.New("empty query")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownMode       = errors.New("unknown search mode")
)

// Mode selects which backends serve a query.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
	ModeHybrid  Mode = "hybrid"
)

// Request is one search query.
type Request struct {
	Query string `json:"query"`
	// Collections restricts the search. Empty or ["*"] means every
	// collection the audience filter admits.
	Collections []string `json:"collections,omitempty"`
	Mode        Mode     `json:"mode,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	// Audience restricts to collections tagged for this audience.
	Audience string `json:"audience,omitempty"`
}

// Result is one ranked search hit.
type Result struct {
	Identity    string    `json:"identity"`
	Collection  string    `json:"collection"`
	Title       string    `json:"title,omitempty"`
	Score       float64   `json:"score"`
	Snippet     string    `json:"snippet,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
}

// Response carries the ranked results plus the degraded flag, set when
// a hybrid query lost one of its backends and was served by the other.
type Response struct {
	Results  []Result `json:"results"`
	Degraded bool     `json:"degraded"`
}
