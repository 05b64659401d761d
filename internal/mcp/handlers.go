package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/datamancy/corpusd/internal/search"
)

// handleSearchCorpus runs one retrieval query through the gateway.
func (s *Server) handleSearchCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	req := search.Request{
		Query:    query,
		Mode:     search.Mode(request.GetString("mode", string(search.ModeHybrid))),
		Limit:    request.GetInt("limit", 10),
		Audience: request.GetString("audience", ""),
	}
	if collection := request.GetString("collection", ""); collection != "" {
		req.Collections = []string{collection}
	}

	resp, err := s.gateway.Search(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(resp.Results) == 0 {
		return mcp.NewToolResultText("No results found. The corpus may still be syncing or indexing."), nil
	}

	return mcp.NewToolResultText(formatResults(resp)), nil
}

// handleGetDocument returns the full current text of one document.
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := request.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: source"), nil
	}
	identity, err := request.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: identity"), nil
	}

	rec, err := s.store.CurrentFor(ctx, source, identity)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if rec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no current document %s/%s; it may have been repealed", source, identity)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Title)
	fmt.Fprintf(&b, "Source: %s | Identity: %s | Valid from: %s\n\n", rec.Source, rec.Identity, rec.ValidFrom.Format("2006-01-02"))
	b.WriteString(rec.Content)
	return mcp.NewToolResultText(b.String()), nil
}

// handleGetHistory lists every stored version of a document.
func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := request.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: source"), nil
	}
	identity, err := request.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: identity"), nil
	}

	history, err := s.store.HistoryFor(ctx, source, identity)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if len(history) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No versions stored for %s/%s.", source, identity)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Versions of %s/%s (oldest first):\n\n", source, identity)
	for i, rec := range history {
		validity := fmt.Sprintf("since %s", rec.ValidFrom.Format("2006-01-02"))
		if rec.ValidTo != nil {
			validity = fmt.Sprintf("%s to %s", rec.ValidFrom.Format("2006-01-02"), rec.ValidTo.Format("2006-01-02"))
		}
		status := "current"
		if rec.ValidTo != nil {
			status = "superseded"
			if rec.SupersededBy == nil {
				status = "retired"
			}
		}
		fmt.Fprintf(&b, "%d. %s (%s, %s)\n", i+1, rec.Title, validity, status)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// formatResults renders ranked hits as readable text for the agent.
func formatResults(resp *search.Response) string {
	var b strings.Builder
	if resp.Degraded {
		b.WriteString("Note: one retrieval backend was unavailable; results are partial.\n\n")
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "## %d. %s (%s)\n", i+1, r.Title, r.Identity)
		fmt.Fprintf(&b, "Collection: %s | Score: %.4f\n\n", r.Collection, r.Score)
		if r.Snippet != "" {
			b.WriteString(r.Snippet)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
