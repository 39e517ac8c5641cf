package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/task"
)

func newTestDeps(t *testing.T) (Deps, *registry.Store) {
	t.Helper()
	store, err := registry.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return Deps{Store: store, Version: "test"}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_BridgeStatus_Empty(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpBridgeStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("bridge_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if toolText(t, result) != "[]" {
		t.Errorf("empty registry should yield [], got %s", toolText(t, result))
	}
}

func TestMCPTool_BridgeStatus_LatestAndHistory(t *testing.T) {
	deps, store := newTestDeps(t)

	for i := 0; i < 2; i++ {
		if err := store.SaveRunSummary(registry.RunSummary{
			Bridge:     "personal",
			FinishedAt: time.Now().Add(time.Duration(i) * time.Minute),
			NotesFound: i + 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	handler := mcpBridgeStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("bridge_status", nil))
	if err != nil {
		t.Fatal(err)
	}
	var latest []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &latest); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(latest) != 1 || latest[0]["bridge"] != "personal" {
		t.Errorf("latest = %v", latest)
	}

	result, err = handler(context.Background(), makeCallToolRequest("bridge_status", map[string]interface{}{
		"bridge": "personal",
	}))
	if err != nil {
		t.Fatal(err)
	}
	var hist []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Errorf("history entries = %d, want 2", len(hist))
	}
}

func TestMCPTool_PendingTasks(t *testing.T) {
	deps, store := newTestDeps(t)

	tasks := []task.Task{
		{LocalID: "b:n.md:1", Bridge: "personal", Vault: "P", NotePath: "n.md", Line: 1, Title: "open thing"},
		{LocalID: "b:n.md:2", Bridge: "personal", Vault: "P", NotePath: "n.md", Line: 2, Title: "done thing", Completed: true},
	}
	if err := store.UpsertTasks(tasks); err != nil {
		t.Fatal(err)
	}

	handler := mcpPendingTasks(deps)

	result, err := handler(context.Background(), makeCallToolRequest("pending_tasks", map[string]interface{}{
		"provider": "todoist",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var pending []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &pending); err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0]["title"] != "open thing" {
		t.Errorf("pending = %v", pending)
	}

	result, err = handler(context.Background(), makeCallToolRequest("pending_tasks", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("missing provider should be a tool error")
	}
}

func TestMCPTool_TaskCounts(t *testing.T) {
	deps, store := newTestDeps(t)

	if err := store.UpsertTasks([]task.Task{
		{LocalID: "b:n.md:1", Bridge: "personal", Vault: "P", NotePath: "n.md", Line: 1, Title: "a"},
		{LocalID: "b:n.md:2", Bridge: "personal", Vault: "P", NotePath: "n.md", Line: 2, Title: "b", Completed: true},
	}); err != nil {
		t.Fatal(err)
	}

	handler := mcpTaskCounts(deps)
	result, err := handler(context.Background(), makeCallToolRequest("task_counts", map[string]interface{}{
		"bridge": "personal",
	}))
	if err != nil {
		t.Fatal(err)
	}

	var counts struct {
		Total     int `json:"total"`
		Open      int `json:"open"`
		Completed int `json:"completed"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &counts); err != nil {
		t.Fatal(err)
	}
	if counts.Total != 2 || counts.Open != 1 || counts.Completed != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestMCPResource_Status(t *testing.T) {
	deps, store := newTestDeps(t)
	if err := store.SaveRunSummary(registry.RunSummary{
		Bridge:     "work",
		FinishedAt: time.Now(),
		Converted:  4,
	}); err != nil {
		t.Fatal(err)
	}

	handler := mcpResourceStatus(deps)
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "inkbridge://status"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var sums []registry.RunSummary
	if err := json.Unmarshal([]byte(text.Text), &sums); err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].Bridge != "work" || sums[0].Converted != 4 {
		t.Errorf("sums = %+v", sums)
	}
}
