package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/penny-assistant/penny/internal/calendar"
	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/retrieval"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Caps Capabilities
}

// NewMCPServer creates an MCP server with all penny tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"penny",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("penny: personal assistant for lists, recall over stored context, and calendar."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("create_list",
			mcp.WithDescription("Create a new named list for the user."),
			mcp.WithString("owner_id", mcp.Description("Owner of the list"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Name of the list"), mcp.Required()),
		),
		mcpCreateList(deps),
	)

	s.AddTool(
		mcp.NewTool("get_lists",
			mcp.WithDescription("Return all of the user's lists with their items."),
			mcp.WithString("owner_id", mcp.Description("Owner of the lists"), mcp.Required()),
		),
		mcpGetLists(deps),
	)

	s.AddTool(
		mcp.NewTool("update_list_items",
			mcp.WithDescription("Replace the items of an existing list."),
			mcp.WithString("list_id", mcp.Description("ID of the list"), mcp.Required()),
			mcp.WithArray("items", mcp.Description("New items, replacing the old ones"), mcp.Required()),
		),
		mcpUpdateListItems(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_list",
			mcp.WithDescription("Delete a list."),
			mcp.WithString("list_id", mcp.Description("ID of the list"), mcp.Required()),
		),
		mcpDeleteList(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the user's stored context."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("owner_id", mcp.Description("Whose context to search"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("add_context",
			mcp.WithDescription("Store a piece of text into the user's context for later recall."),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithString("owner_id", mcp.Description("Owner of the context"), mcp.Required()),
			mcp.WithString("source", mcp.Description("Where the text came from")),
		),
		mcpAddContext(deps),
	)

	s.AddTool(
		mcp.NewTool("upcoming_events",
			mcp.WithDescription("List the user's next calendar events in chronological order."),
			mcp.WithString("owner_id", mcp.Description("Owner of the calendar"), mcp.Required()),
			mcp.WithNumber("max", mcp.Description("Maximum number of events (default 5)")),
		),
		mcpUpcomingEvents(deps),
	)

	s.AddTool(
		mcp.NewTool("create_event",
			mcp.WithDescription("Create a calendar event."),
			mcp.WithString("owner_id", mcp.Description("Owner of the calendar"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Event title"), mcp.Required()),
			mcp.WithString("start", mcp.Description("Start time, RFC 3339"), mcp.Required()),
			mcp.WithString("end", mcp.Description("End time, RFC 3339; defaults to one hour after start")),
			mcp.WithString("location", mcp.Description("Event location")),
		),
		mcpCreateEvent(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"penny://status",
			"Capability Status",
			mcp.WithResourceDescription("Per-capability tier readiness as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func mcpCreateList(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		return mcpEnvelope(deps.Caps.Lists().Create(ctx, ownerID, name))
	}
}

func mcpGetLists(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		return mcpEnvelope(deps.Caps.Lists().ForOwner(ctx, ownerID))
	}
}

func mcpUpdateListItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		listID, err := req.RequireString("list_id")
		if err != nil {
			return mcpError("list_id is required"), nil
		}
		items := req.GetStringSlice("items", nil)
		if items == nil {
			items = []string{}
		}
		return mcpEnvelope(deps.Caps.Lists().UpdateItems(ctx, listID, items))
	}
}

func mcpDeleteList(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		listID, err := req.RequireString("list_id")
		if err != nil {
			return mcpError("list_id is required"), nil
		}
		return mcpEnvelope(deps.Caps.Lists().Delete(ctx, listID))
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		return mcpEnvelope(deps.Caps.Retrieval().Query(ctx, question, ownerID))
	}
}

func mcpAddContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		source := req.GetString("source", "mcp")

		rs := deps.Caps.Retrieval()
		embedded := rs.Embed(ctx, []string{content})
		if !embedded.OK() {
			return mcpError(fmt.Sprintf("embedding failed: %s", embedded.Diagnostic)), nil
		}
		meta := make([]retrieval.Meta, len(embedded.Payload))
		for i := range meta {
			meta[i] = retrieval.Meta{OwnerID: ownerID, Source: source}
		}
		return mcpEnvelope(rs.Store(ctx, embedded.Payload, meta))
	}
}

func mcpUpcomingEvents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		max := req.GetInt("max", 5)
		if max <= 0 {
			max = 5
		}
		if max > 50 {
			max = 50
		}
		return mcpEnvelope(deps.Caps.Calendar().Upcoming(ctx, ownerID, max))
	}
}

func mcpCreateEvent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		startStr, err := req.RequireString("start")
		if err != nil {
			return mcpError("start is required"), nil
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid start time: %v", err)), nil
		}

		ev := calendar.Event{
			Title:    title,
			Start:    start,
			Location: req.GetString("location", ""),
		}
		if endStr := req.GetString("end", ""); endStr != "" {
			end, err := time.Parse(time.RFC3339, endStr)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid end time: %v", err)), nil
			}
			ev.End = end
		}

		return mcpEnvelope(deps.Caps.Calendar().Create(ctx, ownerID, ev))
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		status := map[string][]resolver.TierStatus{
			"lists":     deps.Caps.Lists().Status(ctx),
			"retrieval": deps.Caps.Retrieval().Status(ctx),
			"calendar":  deps.Caps.Calendar().Status(ctx),
		}
		b, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpEnvelope renders a result envelope as tool output. An exhausted chain
// is reported as a tool error with the diagnostic.
func mcpEnvelope[T any](env resolver.Envelope[T]) (*mcp.CallToolResult, error) {
	if env.Outcome == resolver.Failure {
		return mcpError(fmt.Sprintf("all backends failed: %s", env.Diagnostic)), nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
