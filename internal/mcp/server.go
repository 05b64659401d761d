// Package mcp exposes corpus retrieval to agents over the Model Context
// Protocol on stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/search"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes corpus search tools.
type Server struct {
	gateway *search.Gateway
	store   *docstore.Store
	mcp     *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(gateway *search.Gateway, store *docstore.Store) *Server {
	s := &Server{
		gateway: gateway,
		store:   store,
	}

	s.mcp = server.NewMCPServer(
		"corpusd",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchCorpusTool, s.handleSearchCorpus)
	s.mcp.AddTool(getDocumentTool, s.handleGetDocument)
	s.mcp.AddTool(getHistoryTool, s.handleGetHistory)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
