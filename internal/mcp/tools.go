package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchCorpusTool defines the search_corpus MCP tool.
var searchCorpusTool = mcp.NewTool("search_corpus",
	mcp.WithDescription("Search the ingested document corpus. Hybrid semantic and keyword retrieval; returns ranked snippets with their identities."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language or keyword search query"),
	),
	mcp.WithString("collection",
		mcp.Description("Restrict the search to one collection (default: all)"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
	mcp.WithString("mode",
		mcp.Description("Retrieval mode"),
		mcp.Enum("hybrid", "vector", "lexical"),
	),
	mcp.WithString("audience",
		mcp.Description("Only search collections tagged for this audience"),
	),
)

// getDocumentTool defines the get_document MCP tool.
var getDocumentTool = mcp.NewTool("get_document",
	mcp.WithDescription("Fetch the full current text of one document by source and identity."),
	mcp.WithString("source",
		mcp.Required(),
		mcp.Description("Source the document belongs to"),
	),
	mcp.WithString("identity",
		mcp.Required(),
		mcp.Description("Canonical identity of the document within its source"),
	),
)

// getHistoryTool defines the get_document_history MCP tool.
var getHistoryTool = mcp.NewTool("get_document_history",
	mcp.WithDescription("List every stored version of a document with its validity window, oldest first."),
	mcp.WithString("source",
		mcp.Required(),
		mcp.Description("Source the document belongs to"),
	),
	mcp.WithString("identity",
		mcp.Required(),
		mcp.Description("Canonical identity of the document within its source"),
	),
)
