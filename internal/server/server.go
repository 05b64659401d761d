// Package server wires the pipeline's HTTP surface: sync triggers,
// index control, search, and introspection.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/datamancy/corpusd/internal/checkpoint"
	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/events"
	"github.com/datamancy/corpusd/internal/indexer"
	"github.com/datamancy/corpusd/internal/reconciler"
	"github.com/datamancy/corpusd/internal/search"
	"github.com/datamancy/corpusd/internal/vectordb"
)

// Server is the corpusd HTTP front end.
type Server struct {
	cfg         config.ServerConfig
	manager     *reconciler.Manager
	cycles      *reconciler.CycleStore
	ix          *indexer.Indexer
	vectors     *vectordb.Store
	gateway     *search.Gateway
	hub         *events.Hub
	checkpoints *checkpoint.Store
	colConfigs  []config.CollectionConfig
	router      chi.Router
	httpServer  *http.Server
}

// New creates the server with all dependencies wired.
func New(cfg config.ServerConfig, manager *reconciler.Manager, cycles *reconciler.CycleStore,
	ix *indexer.Indexer, vectors *vectordb.Store, gateway *search.Gateway,
	hub *events.Hub, checkpoints *checkpoint.Store, colConfigs []config.CollectionConfig) *Server {
	s := &Server{
		cfg:         cfg,
		manager:     manager,
		cycles:      cycles,
		ix:          ix,
		vectors:     vectors,
		gateway:     gateway,
		hub:         hub,
		checkpoints: checkpoints,
		colConfigs:  colConfigs,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/health", s.handleHealth)
	r.Post("/trigger/{source}", s.handleTrigger)
	r.Post("/index", s.handleIndex)
	r.Post("/search", s.handleSearch)
	r.Get("/collections", s.handleCollections)
	r.Get("/cycles", s.handleListCycles)
	r.Get("/cycles/{id}", s.handleGetCycle)
	r.Get("/sources/{source}/checkpoints", s.handleCheckpoints)
	if s.hub != nil {
		r.Get("/events", s.hub.Handler())
	}

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("corpusd server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
