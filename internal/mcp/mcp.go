// Package mcp implements the Model Context Protocol server for hoken.
//
// The MCP server exposes the same card operations as the HTTP API
// through MCP tools, allowing MCP-compatible AI agents to create,
// update, search, and claim insurance cards. All tools delegate to the
// cards service, so the fan-out semantics are identical on both
// surfaces.
package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hoken/internal/service/cards"
)

// Server wraps the MCP server with hoken's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	cards     *cards.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(svc *cards.Service, logger *slog.Logger) *Server {
	s := &Server{
		cards:  svc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"hoken",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// hoken_create_card — create a card with its agent profile.
	s.mcpServer.AddTool(
		mcplib.NewTool("hoken_create_card",
			mcplib.WithDescription("Create an insurance card, register it on the ledger, and index it for search"),
			mcplib.WithString("name", mcplib.Description("Card name"), mcplib.Required()),
			mcplib.WithString("detail", mcplib.Description("Card coverage detail"), mcplib.Required()),
			mcplib.WithString("creator", mcplib.Description("Creator identifier"), mcplib.Required()),
			mcplib.WithString("status", mcplib.Description("Initial status: FINISHED, ACTIVE, WAITING, or FAILED (default WAITING)")),
			mcplib.WithObject("metadata", mcplib.Description("Arbitrary card metadata")),
			mcplib.WithString("system_prompt", mcplib.Description("System prompt for the card's agent profile")),
			mcplib.WithArray("tools", mcplib.Description("Tool definitions for the card's agent profile")),
			mcplib.WithArray("sources", mcplib.Description("Knowledge source identifiers for the card's agent profile")),
			mcplib.WithObject("agent_metadata", mcplib.Description("Arbitrary agent profile metadata")),
			mcplib.WithBoolean("taleb_made", mcplib.Description("Whether the card was machine-generated (default false)")),
		),
		s.handleCreateCard,
	)

	// hoken_get_card — fetch one card with its agent profile.
	s.mcpServer.AddTool(
		mcplib.NewTool("hoken_get_card",
			mcplib.WithDescription("Fetch an insurance card by id, including its agent profile"),
			mcplib.WithString("card_id", mcplib.Description("Card UUID"), mcplib.Required()),
		),
		s.handleGetCard,
	)

	// hoken_update_card — sparse field update.
	s.mcpServer.AddTool(
		mcplib.NewTool("hoken_update_card",
			mcplib.WithDescription("Update insurance card fields. Omitted fields keep their current values."),
			mcplib.WithString("card_id", mcplib.Description("Card UUID"), mcplib.Required()),
			mcplib.WithString("name", mcplib.Description("New card name")),
			mcplib.WithString("detail", mcplib.Description("New coverage detail")),
			mcplib.WithString("creator", mcplib.Description("New creator identifier")),
			mcplib.WithObject("metadata", mcplib.Description("Replacement card metadata")),
			mcplib.WithString("status", mcplib.Description("New status: FINISHED, ACTIVE, WAITING, or FAILED")),
			mcplib.WithBoolean("taleb_made", mcplib.Description("New machine-generated flag")),
		),
		s.handleUpdateCard,
	)

	// hoken_update_status — bare status transition.
	s.mcpServer.AddTool(
		mcplib.NewTool("hoken_update_status",
			mcplib.WithDescription("Move an insurance card to a new status and record the transition on the ledger"),
			mcplib.WithString("card_id", mcplib.Description("Card UUID"), mcplib.Required()),
			mcplib.WithString("status", mcplib.Description("Target status: FINISHED, ACTIVE, WAITING, or FAILED"), mcplib.Required()),
		),
		s.handleUpdateStatus,
	)

	// hoken_search_cards — semantic search over indexed cards.
	s.mcpServer.AddTool(
		mcplib.NewTool("hoken_search_cards",
			mcplib.WithDescription("Search insurance cards by semantic similarity. Each query returns its top matches; results keep query order."),
			mcplib.WithArray("queries", mcplib.Description("Free-text search queries"), mcplib.Required()),
		),
		s.handleSearchCards,
	)

	// hoken_claim — claim the card's ledger entry.
	s.mcpServer.AddTool(
		mcplib.NewTool("hoken_claim",
			mcplib.WithDescription("Claim an insurance card's ledger entry. Fails if the entry is unknown or already claimed."),
			mcplib.WithString("card_id", mcplib.Description("Card UUID"), mcplib.Required()),
		),
		s.handleClaim,
	)
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// jsonResult marshals v as indented JSON text content.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}
