package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/datamancy/corpusd/internal/reconciler"
	"github.com/datamancy/corpusd/internal/search"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrigger starts a reconciliation cycle for one source and
// returns immediately with the cycle ID.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	sourceName := chi.URLParam(r, "source")

	cycleID, err := s.manager.Trigger(r.Context(), sourceName)
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrUnknownSource):
			writeError(w, http.StatusNotFound, "unknown source")
		case errors.Is(err, reconciler.ErrCycleRunning):
			writeError(w, http.StatusConflict, "a cycle is already running for this source")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"cycleId": cycleID})
}

type indexRequest struct {
	Collection  string `json:"collection"`
	BatchSize   int    `json:"batchSize,omitempty"`
	FullReindex bool   `json:"fullReindex"`
}

// handleIndex kicks off an index pass for a collection; full reindex
// rebuilds from the current corpus instead of draining the journal.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}
	known := false
	for _, cc := range s.colConfigs {
		if cc.Name == req.Collection {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}

	// Detached from the request context: the pass outlives the 202.
	go func() {
		ctx := context.Background()
		var err error
		if req.FullReindex {
			_, err = s.ix.Rebuild(ctx, req.Collection)
		} else {
			_, err = s.ix.SyncWithBatch(ctx, req.Collection, req.BatchSize)
		}
		if err != nil {
			log.Printf("server: index pass for %s: %v", req.Collection, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"collection": req.Collection, "status": "started"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.gateway.Search(r.Context(), req)
	if err != nil {
		// Malformed requests are the caller's problem; anything else
		// is a backend failure and must not masquerade as one.
		switch {
		case errors.Is(err, search.ErrEmptyQuery),
			errors.Is(err, search.ErrUnknownCollection),
			errors.Is(err, search.ErrUnknownMode):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	if resp.Results == nil {
		resp.Results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type collectionView struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Dimensions int    `json:"dimensions"`
	Audience   string `json:"audience,omitempty"`
	IndexLag   int64  `json:"indexLag"`
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	out := make([]collectionView, 0, len(s.colConfigs))
	for _, cc := range s.colConfigs {
		lag, err := s.ix.Lag(r.Context(), cc.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, collectionView{
			Name:       cc.Name,
			Count:      s.vectors.Count(cc.Name),
			Dimensions: cc.Dimensions,
			Audience:   cc.Audience,
			IndexLag:   lag,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cycle, err := s.cycles.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycle == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

type checkpointView struct {
	Stream      string    `json:"stream"`
	Cursor      string    `json:"cursor"`
	Generation  int64     `json:"generation"`
	CommittedAt time.Time `json:"committedAt"`
}

// handleCheckpoints exposes a source's committed cursor generations,
// newest first. Useful when working out how far a stuck source got.
func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	sourceName := chi.URLParam(r, "source")
	known := false
	for _, name := range s.manager.Sources() {
		if name == sourceName {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = "listing"
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.checkpoints.History(r.Context(), sourceName, stream, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]checkpointView, len(history))
	for i, cp := range history {
		out[i] = checkpointView{
			Stream:      cp.Stream,
			Cursor:      cp.Cursor,
			Generation:  cp.Generation,
			CommittedAt: cp.CommittedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	sourceName := r.URL.Query().Get("source")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	cycles, err := s.cycles.List(r.Context(), sourceName, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycles == nil {
		cycles = []reconciler.Cycle{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
