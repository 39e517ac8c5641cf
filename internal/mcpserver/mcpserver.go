// Package mcpserver exposes bridge status and the task registry to MCP
// clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/task"
)

// Store is the registry slice exposed to MCP clients.
type Store interface {
	LatestSummaries() ([]registry.RunSummary, error)
	History(bridge string, limit int) ([]registry.RunSummary, error)
	PendingForProvider(provider string) ([]task.Task, error)
	TaskCountsFor(bridge string) (registry.TaskCounts, error)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Store   Store
	Version string
}

// NewServer creates an MCP server with all inkbridge tools registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"inkbridge",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("inkbridge — handwritten note sync status and extracted task registry."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("bridge_status",
			mcp.WithDescription("Report the latest sync run for every bridge, or run history for one bridge."),
			mcp.WithString("bridge", mcp.Description("Bridge name; omit for the latest run of all bridges")),
			mcp.WithNumber("limit", mcp.Description("History entries to return when bridge is set (default 10)")),
		),
		mcpBridgeStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("pending_tasks",
			mcp.WithDescription("List extracted tasks not yet delivered to a task provider."),
			mcp.WithString("provider", mcp.Description("Task provider name (e.g. todoist)"), mcp.Required()),
		),
		mcpPendingTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("task_counts",
			mcp.WithDescription("Count total, open, and completed tasks registered for a bridge."),
			mcp.WithString("bridge", mcp.Description("Bridge name"), mcp.Required()),
		),
		mcpTaskCounts(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"inkbridge://status",
			"Bridge Status",
			mcp.WithResourceDescription("Latest run summary per bridge as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func mcpBridgeStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bridge := req.GetString("bridge", "")

		var (
			sums []registry.RunSummary
			err  error
		)
		if bridge == "" {
			sums, err = deps.Store.LatestSummaries()
		} else {
			limit := req.GetInt("limit", 10)
			if limit <= 0 {
				limit = 10
			}
			sums, err = deps.Store.History(bridge, limit)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("reading status failed: %v", err)), nil
		}
		if len(sums) == 0 {
			return mcpText("[]"), nil
		}

		type runResult struct {
			Bridge     string `json:"bridge"`
			FinishedAt string `json:"finished_at"`
			NotesFound int    `json:"notes_found"`
			Converted  int    `json:"converted"`
			Skipped    int    `json:"skipped"`
			NoText     int    `json:"no_text"`
			Errors     bool   `json:"errors"`
		}
		results := make([]runResult, len(sums))
		for i, s := range sums {
			results[i] = runResult{
				Bridge:     s.Bridge,
				FinishedAt: s.FinishedAt.Format(time.RFC3339),
				NotesFound: s.NotesFound,
				Converted:  s.Converted,
				Skipped:    s.Skipped,
				NoText:     s.NoText,
				Errors:     s.HasErrors(),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPendingTasks(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		provider, err := req.RequireString("provider")
		if err != nil {
			return mcpError("provider is required"), nil
		}

		pending, err := deps.Store.PendingForProvider(provider)
		if err != nil {
			return mcpError(fmt.Sprintf("listing pending tasks failed: %v", err)), nil
		}
		if len(pending) == 0 {
			return mcpText("[]"), nil
		}

		type taskResult struct {
			LocalID  string `json:"local_id"`
			Bridge   string `json:"bridge"`
			NotePath string `json:"note_path"`
			Line     int    `json:"line"`
			Title    string `json:"title"`
		}
		results := make([]taskResult, len(pending))
		for i, t := range pending {
			results[i] = taskResult{
				LocalID:  t.LocalID,
				Bridge:   t.Bridge,
				NotePath: t.NotePath,
				Line:     t.Line,
				Title:    t.Title,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTaskCounts(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bridge, err := req.RequireString("bridge")
		if err != nil {
			return mcpError("bridge is required"), nil
		}

		counts, err := deps.Store.TaskCountsFor(bridge)
		if err != nil {
			return mcpError(fmt.Sprintf("counting tasks failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf(`{"total":%d,"open":%d,"completed":%d}`,
			counts.Total, counts.Open, counts.Completed)), nil
	}
}

func mcpResourceStatus(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sums, err := deps.Store.LatestSummaries()
		if err != nil {
			return nil, fmt.Errorf("failed to read status: %w", err)
		}

		b, err := json.Marshal(sums)
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
