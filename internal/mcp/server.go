// Package mcp exposes open cases to MCP clients as tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/store"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var caseIDParam = mcp.WithString("id", mcp.Required(), mcp.Description("Case ID"))

var toolRegistry = []toolEntry{
	{
		def: mcp.NewTool("case_list",
			mcp.WithDescription("List open cases with their current view and input status."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	{
		def: mcp.NewTool("case_create",
			mcp.WithDescription("Open a new case, optionally seeded with clinical notes."),
			mcp.WithString("notes", mcp.Description("Initial free-text notes")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreate },
	},
	{
		def: mcp.NewTool("case_get",
			mcp.WithDescription("Fetch the full state of a case."),
			caseIDParam,
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	{
		def: mcp.NewTool("case_set_notes",
			mcp.WithDescription("Replace the clinical notes of a case."),
			caseIDParam,
			mcp.WithString("notes", mcp.Required(), mcp.Description("Free-text notes")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetNotes },
	},
	{
		def: mcp.NewTool("case_diagnose",
			mcp.WithDescription("Generate a differential diagnosis from the case notes and image analysis."),
			caseIDParam,
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDiagnose },
	},
	{
		def: mcp.NewTool("case_management_plan",
			mcp.WithDescription("Fetch a search-grounded management plan for one diagnosis."),
			caseIDParam,
			mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based diagnosis index")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlan },
	},
	{
		def: mcp.NewTool("case_chat",
			mcp.WithDescription("Ask a follow-up question about the case. Starts the chat if needed."),
			caseIDParam,
			mcp.WithString("message", mcp.Required(), mcp.Description("Question for the assistant")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChat },
	},
}

// ToolNames returns the registered tool names in registration order.
func ToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for _, entry := range toolRegistry {
		names = append(names, entry.def.Name)
	}
	return names
}

// NewServer creates an MCP server with the case tools registered.
func NewServer(repo store.Repository, svc *consult.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"medendorse",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(repo, svc)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}
