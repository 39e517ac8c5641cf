package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tkoster/inkbridge/internal/extract"
	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/task"
	"github.com/tkoster/inkbridge/internal/todo"
	"github.com/tkoster/inkbridge/internal/vault"
)

// fakeExtractor returns canned text per source file base name.
type fakeExtractor struct {
	texts map[string]string
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, srcPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.texts[filepath.Base(srcPath)]
	if !ok {
		return "", extract.ErrNoText
	}
	return text, nil
}

// captureProvider records every task it is asked to create.
type captureProvider struct {
	mu     sync.Mutex
	synced []task.Task
}

func (c *captureProvider) Name() string { return "capture" }

func (c *captureProvider) SyncTasks(_ context.Context, tasks []task.Task, _ todo.TodoContext) []registry.SyncResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = append(c.synced, tasks...)
	results := make([]registry.SyncResult, 0, len(tasks))
	for _, t := range tasks {
		results = append(results, registry.SyncResult{
			LocalID:    t.LocalID,
			Provider:   c.Name(),
			ExternalID: "ext-" + t.LocalID,
			Status:     registry.StatusCreated,
		})
	}
	return results
}

func writeNote(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func testBridge(t *testing.T, ext extract.Extractor, provider todo.Provider) (Bridge, string, string) {
	t.Helper()
	srcDir := t.TempDir()
	vaultDir := t.TempDir()

	b := Bridge{
		Name:         "personal",
		SourcePath:   srcDir,
		VaultPath:    vaultDir,
		VaultName:    filepath.Base(vaultDir),
		NotifyPolicy: "none",
		Vault:        vault.NewObsidian("personal", vaultDir),
		Todo:         provider,
		Extractor:    func(string) extract.Extractor { return ext },
	}
	return b, srcDir, vaultDir
}

func testRunner(t *testing.T, b Bridge) (*Runner, *registry.Store) {
	t.Helper()
	store, err := registry.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return &Runner{Store: store, Bridges: []Bridge{b}, BridgePar: 2, NotePar: 4}, store
}

func TestRunConvertsAndExtractsTasks(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{
		"Meeting.note": "Meeting notes\n[ ] follow up with client\n[x] book the room",
	}}
	provider := &captureProvider{}
	b, srcDir, vaultDir := testBridge(t, ext, provider)
	writeNote(t, srcDir, "Work/Meeting.note", time.Now().Add(-time.Hour))

	r, store := testRunner(t, b)
	sums, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("got %d summaries", len(sums))
	}
	sum := sums[0]
	if sum.NotesFound != 1 || sum.Converted != 1 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.TasksTotal != 2 || sum.TasksOpen != 1 || sum.TasksCompleted != 1 {
		t.Errorf("task counts = %+v", sum)
	}

	data, err := os.ReadFile(filepath.Join(vaultDir, "Work", "Meeting.md"))
	if err != nil {
		t.Fatalf("converted note not written: %v", err)
	}
	md := string(data)
	if !strings.Contains(md, "- [ ] Follow up with client") {
		t.Errorf("checkbox not normalized:\n%s", md)
	}
	if !strings.Contains(md, `title: "Meeting notes"`) {
		t.Errorf("frontmatter missing title:\n%s", md)
	}

	// Only the open task reaches the provider.
	if len(provider.synced) != 1 || provider.synced[0].Title != "Follow up with client" {
		t.Errorf("synced tasks = %+v", provider.synced)
	}

	// The completed task is settled locally.
	st, err := store.SyncStatus("personal:Work/Meeting.md:3", "capture")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if st.Status != registry.StatusSkipped {
		t.Errorf("completed task status = %q, want skipped", st.Status)
	}

	// A status note appears under the reserved folder.
	if _, err := os.Stat(filepath.Join(vaultDir, vault.ReservedDir, "Status - personal.md")); err != nil {
		t.Errorf("status note not written: %v", err)
	}
}

func TestRunTitleDerivedWithFileNameFallback(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{
		"Ideas.note":   "Big plans for spring\nMore detail below",
		"Scratch.note": "???",
	}}
	b, srcDir, vaultDir := testBridge(t, ext, &captureProvider{})
	writeNote(t, srcDir, "Ideas.note", time.Now().Add(-time.Hour))
	writeNote(t, srcDir, "Scratch.note", time.Now().Add(-time.Hour))

	r, _ := testRunner(t, b)
	if _, err := r.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	ideas, err := os.ReadFile(filepath.Join(vaultDir, "Ideas.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(ideas), `title: "Big plans for spring"`) {
		t.Errorf("title not derived from the first content line:\n%s", ideas)
	}

	// Nothing usable in the content, so the file name stem wins.
	scratch, err := os.ReadFile(filepath.Join(vaultDir, "Scratch.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(scratch), `title: "Scratch"`) {
		t.Errorf("title should fall back to the file name:\n%s", scratch)
	}
}

func TestRunBridgeFailureDoesNotAbortOthers(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{"A.note": "Alpha"}}
	healthy, srcDir, vaultDir := testBridge(t, ext, &captureProvider{})
	writeNote(t, srcDir, "A.note", time.Now().Add(-time.Hour))

	broken, brokenSrc, _ := testBridge(t, &fakeExtractor{}, &captureProvider{})
	broken.Name = "work"
	if err := os.RemoveAll(brokenSrc); err != nil {
		t.Fatal(err)
	}

	// Broken bridge first so its fast failure races ahead of the
	// healthy bridge's conversion.
	r, _ := testRunner(t, broken)
	r.Bridges = append(r.Bridges, healthy)

	sums, err := r.Run(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "work") {
		t.Errorf("err = %v, want failure naming the broken bridge", err)
	}
	if err != nil && strings.Contains(err.Error(), "personal") {
		t.Errorf("healthy bridge dragged into the error: %v", err)
	}

	var personal registry.RunSummary
	for _, s := range sums {
		if s.Bridge == "personal" {
			personal = s
		}
	}
	if personal.Converted != 1 || personal.HasErrors() {
		t.Errorf("healthy bridge summary = %+v, want one clean conversion", personal)
	}
	if _, err := os.Stat(filepath.Join(vaultDir, "A.md")); err != nil {
		t.Errorf("healthy bridge note not written: %v", err)
	}
}

func TestRunSkipsUpToDateNotes(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{"A.note": "Alpha"}}
	b, srcDir, _ := testBridge(t, ext, &captureProvider{})
	writeNote(t, srcDir, "A.note", time.Now().Add(-time.Hour))

	r, _ := testRunner(t, b)
	if _, err := r.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	sums, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if sums[0].Converted != 0 || sums[0].Skipped != 1 {
		t.Errorf("second run summary = %+v, want everything skipped", sums[0])
	}
}

func TestRunAtMostOnceAcrossRuns(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{"A.note": "[ ] only once"}}
	provider := &captureProvider{}
	b, srcDir, _ := testBridge(t, ext, provider)
	notePath := writeNote(t, srcDir, "A.note", time.Now().Add(-time.Hour))

	r, _ := testRunner(t, b)
	for i := 0; i < 3; i++ {
		// Touch the source so the note re-converts every run.
		stamp := time.Now().Add(time.Duration(i+1) * time.Hour)
		if err := os.Chtimes(notePath, stamp, stamp); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Run(context.Background(), ""); err != nil {
			t.Fatal(err)
		}
	}

	if len(provider.synced) != 1 {
		t.Errorf("task submitted %d times, want exactly once", len(provider.synced))
	}
}

func TestRunSourceMissing(t *testing.T) {
	b, srcDir, _ := testBridge(t, &fakeExtractor{}, &captureProvider{})
	if err := os.RemoveAll(srcDir); err != nil {
		t.Fatal(err)
	}

	r, store := testRunner(t, b)
	sums, err := r.Run(context.Background(), "")
	if err == nil {
		t.Error("missing source should surface an error")
	}
	if len(sums) != 1 || !sums[0].SourceMissing {
		t.Errorf("summary = %+v, want source_missing", sums)
	}

	// The aborted run is still recorded.
	latest, err := store.LatestSummaries()
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || !latest[0].SourceMissing {
		t.Errorf("latest = %+v", latest)
	}
}

func TestRunVaultMissing(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{"A.note": "Alpha"}}
	b, srcDir, vaultDir := testBridge(t, ext, &captureProvider{})
	writeNote(t, srcDir, "A.note", time.Now().Add(-time.Hour))
	if err := os.RemoveAll(vaultDir); err != nil {
		t.Fatal(err)
	}

	r, _ := testRunner(t, b)
	sums, err := r.Run(context.Background(), "")
	if err == nil {
		t.Error("missing vault should surface an error")
	}
	if !sums[0].VaultMissing {
		t.Errorf("summary = %+v, want vault_missing", sums[0])
	}
}

func TestRunExtractionErrorsCounted(t *testing.T) {
	ext := &fakeExtractor{err: extract.ErrToolMissing}
	b, srcDir, _ := testBridge(t, ext, &captureProvider{})
	writeNote(t, srcDir, "A.note", time.Now().Add(-time.Hour))
	writeNote(t, srcDir, "B.note", time.Now().Add(-time.Hour))

	r, _ := testRunner(t, b)
	sums, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("tool errors should not abort the run: %v", err)
	}
	if sums[0].ToolMissing != 2 || sums[0].Converted != 0 {
		t.Errorf("summary = %+v", sums[0])
	}
	if !sums[0].HasErrors() {
		t.Error("summary with tool errors should report HasErrors")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{"A.note": "[ ] task here"}}
	provider := &captureProvider{}
	b, srcDir, vaultDir := testBridge(t, ext, provider)
	writeNote(t, srcDir, "A.note", time.Now().Add(-time.Hour))

	r, store := testRunner(t, b)
	r.DryRun = true

	sums, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if sums[0].Converted != 1 {
		t.Errorf("dry run should still count conversions: %+v", sums[0])
	}

	if _, err := os.Stat(filepath.Join(vaultDir, "A.md")); !os.IsNotExist(err) {
		t.Error("dry run wrote a vault note")
	}
	if len(provider.synced) != 0 {
		t.Error("dry run submitted tasks")
	}
	latest, err := store.LatestSummaries()
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 0 {
		t.Error("dry run persisted a summary")
	}
}

func TestRunUnknownBridge(t *testing.T) {
	b, _, _ := testBridge(t, &fakeExtractor{}, &captureProvider{})
	r, _ := testRunner(t, b)
	if _, err := r.Run(context.Background(), "nope"); err == nil {
		t.Error("want error for unknown bridge name")
	}
}

func TestRunSelectsNamedBridge(t *testing.T) {
	extA := &fakeExtractor{texts: map[string]string{"A.note": "Alpha"}}
	a, srcA, _ := testBridge(t, extA, &captureProvider{})
	writeNote(t, srcA, "A.note", time.Now().Add(-time.Hour))

	other, srcB, _ := testBridge(t, &fakeExtractor{}, &captureProvider{})
	other.Name = "work"
	writeNote(t, srcB, "B.note", time.Now().Add(-time.Hour))

	r, _ := testRunner(t, a)
	r.Bridges = append(r.Bridges, other)

	sums, err := r.Run(context.Background(), "personal")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].Bridge != "personal" {
		t.Errorf("summaries = %+v", sums)
	}
}
