package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/tkoster/inkbridge/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTask(id string, completed bool) task.Task {
	return task.Task{
		LocalID:   id,
		Bridge:    "personal",
		Vault:     "Personal",
		NotePath:  "Ideas/App.md",
		Line:      3,
		Title:     "do the thing",
		Completed: completed,
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestUpsertTasksNeverOverwrites(t *testing.T) {
	s := openTestStore(t)

	orig := testTask("personal:Ideas/App.md:3", false)
	if err := s.UpsertTasks([]task.Task{orig}); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	changed := orig
	changed.Title = "a different title"
	changed.Completed = true
	if err := s.UpsertTasks([]task.Task{changed}); err != nil {
		t.Fatalf("second UpsertTasks: %v", err)
	}

	pending, err := s.PendingForProvider("noop")
	if err != nil {
		t.Fatalf("PendingForProvider: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending tasks, want 1", len(pending))
	}
	if pending[0].Title != "do the thing" {
		t.Errorf("title was overwritten: %q", pending[0].Title)
	}
	if pending[0].Completed {
		t.Error("completed flag was overwritten")
	}
}

func TestPendingForProvider(t *testing.T) {
	s := openTestStore(t)

	open1 := testTask("b:n.md:1", false)
	open2 := testTask("b:n.md:2", false)
	open3 := testTask("b:n.md:3", false)
	done := testTask("b:n.md:4", true)
	if err := s.UpsertTasks([]task.Task{open1, open2, open3, done}); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	// open1 already created, open2 failed previously, open3 untouched.
	mustRecord(t, s, SyncResult{LocalID: open1.LocalID, Provider: "todoist", ExternalID: "ext-1", Status: StatusCreated})
	mustRecord(t, s, SyncResult{LocalID: open2.LocalID, Provider: "todoist", Status: StatusFailed, Error: "http 500"})

	pending, err := s.PendingForProvider("todoist")
	if err != nil {
		t.Fatalf("PendingForProvider: %v", err)
	}

	ids := map[string]bool{}
	for _, p := range pending {
		ids[p.LocalID] = true
	}
	if ids[open1.LocalID] {
		t.Error("created task must never be pending again")
	}
	if !ids[open2.LocalID] {
		t.Error("failed task should be eligible for retry")
	}
	if !ids[open3.LocalID] {
		t.Error("never-attempted task should be pending")
	}
	if ids[done.LocalID] {
		t.Error("completed task must never be pending")
	}

	// A different provider has no records: all open tasks pending.
	other, err := s.PendingForProvider("notion")
	if err != nil {
		t.Fatalf("PendingForProvider(notion): %v", err)
	}
	if len(other) != 3 {
		t.Errorf("got %d pending for notion, want 3", len(other))
	}
}

func TestAtMostOnceAcrossRuns(t *testing.T) {
	s := openTestStore(t)

	tsk := testTask("b:n.md:1", false)
	createCalls := 0

	// Simulate three runs, the first "interrupted" before recording.
	for run := 0; run < 3; run++ {
		if err := s.UpsertTasks([]task.Task{tsk}); err != nil {
			t.Fatalf("UpsertTasks: %v", err)
		}
		pending, err := s.PendingForProvider("todoist")
		if err != nil {
			t.Fatalf("PendingForProvider: %v", err)
		}
		for _, p := range pending {
			createCalls++
			if run == 0 {
				continue // crash before RecordResult
			}
			mustRecord(t, s, SyncResult{LocalID: p.LocalID, Provider: "todoist", ExternalID: "ext", Status: StatusCreated})
		}
	}

	// The interrupted run legitimately retries once; after the first
	// recorded create, no further submissions happen.
	if createCalls != 2 {
		t.Errorf("create invoked %d times, want 2 (initial + one retry after crash)", createCalls)
	}

	pending, err := s.PendingForProvider("todoist")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("task still pending after created: %+v", pending)
	}
}

func TestMarkSkippedLocalDoesNotDowngrade(t *testing.T) {
	s := openTestStore(t)

	tsk := testTask("b:n.md:1", false)
	if err := s.UpsertTasks([]task.Task{tsk}); err != nil {
		t.Fatal(err)
	}
	mustRecord(t, s, SyncResult{LocalID: tsk.LocalID, Provider: "todoist", ExternalID: "ext-9", Status: StatusCreated})

	// Task gets completed later; the bridge marks it skipped-local.
	if err := s.MarkSkippedLocal([]string{tsk.LocalID}, "todoist"); err != nil {
		t.Fatalf("MarkSkippedLocal: %v", err)
	}

	st, err := s.SyncStatus(tsk.LocalID, "todoist")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if st.Status != StatusCreated || st.ExternalID != "ext-9" {
		t.Errorf("created record was downgraded: %+v", st)
	}
}

func TestMarkSkippedLocalInsertsWhenAbsent(t *testing.T) {
	s := openTestStore(t)

	tsk := testTask("b:n.md:1", true)
	if err := s.UpsertTasks([]task.Task{tsk}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSkippedLocal([]string{tsk.LocalID}, "noop"); err != nil {
		t.Fatal(err)
	}

	st, err := s.SyncStatus(tsk.LocalID, "noop")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if st.Status != StatusSkipped {
		t.Errorf("status = %q, want skipped", st.Status)
	}
}

func TestSyncStatusNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.SyncStatus("nope", "noop"); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestSaveRunSummaryLatestAndHistory(t *testing.T) {
	s := openTestStore(t)

	first := RunSummary{
		Bridge:     "personal",
		FinishedAt: time.Now().Add(-time.Hour),
		NotesFound: 5,
		Converted:  2,
	}
	if err := s.SaveRunSummary(first); err != nil {
		t.Fatalf("SaveRunSummary: %v", err)
	}

	second := first
	second.FinishedAt = time.Now()
	second.Converted = 0
	second.Skipped = 5
	if err := s.SaveRunSummary(second); err != nil {
		t.Fatalf("SaveRunSummary: %v", err)
	}

	latest, err := s.LatestSummaries()
	if err != nil {
		t.Fatalf("LatestSummaries: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("got %d latest rows, want 1 (overwritten per bridge)", len(latest))
	}
	if latest[0].Skipped != 5 || latest[0].Converted != 0 {
		t.Errorf("latest not overwritten: %+v", latest[0])
	}

	hist, err := s.History("personal", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("got %d history rows, want 2", len(hist))
	}
	if hist[0].Skipped != 5 {
		t.Errorf("history not newest-first: %+v", hist[0])
	}
}

func TestRunHistoryBounded(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Duration(historyKeep+10) * time.Minute)
	for i := 0; i < historyKeep+5; i++ {
		sum := RunSummary{
			Bridge:     "personal",
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
			NotesFound: i,
		}
		if err := s.SaveRunSummary(sum); err != nil {
			t.Fatalf("SaveRunSummary %d: %v", i, err)
		}
	}

	hist, err := s.History("personal", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != historyKeep {
		t.Errorf("history has %d rows, want %d", len(hist), historyKeep)
	}
	if hist[0].NotesFound != historyKeep+4 {
		t.Errorf("newest history row = %+v, want the last run", hist[0])
	}
}

func TestTaskCountsFor(t *testing.T) {
	s := openTestStore(t)

	var tasks []task.Task
	for i := 1; i <= 4; i++ {
		tasks = append(tasks, testTask(fmt.Sprintf("b:n.md:%d", i), i%2 == 0))
	}
	if err := s.UpsertTasks(tasks); err != nil {
		t.Fatal(err)
	}

	c, err := s.TaskCountsFor("personal")
	if err != nil {
		t.Fatalf("TaskCountsFor: %v", err)
	}
	if c.Total != 4 || c.Open != 2 || c.Completed != 2 {
		t.Errorf("counts = %+v, want total 4 open 2 completed 2", c)
	}

	empty, err := s.TaskCountsFor("absent")
	if err != nil {
		t.Fatalf("TaskCountsFor(absent): %v", err)
	}
	if empty.Total != 0 {
		t.Errorf("counts for unknown bridge = %+v", empty)
	}
}

func TestListTaskStates(t *testing.T) {
	s := openTestStore(t)

	tsk := testTask("b:n.md:1", false)
	if err := s.UpsertTasks([]task.Task{tsk}); err != nil {
		t.Fatal(err)
	}
	mustRecord(t, s, SyncResult{LocalID: tsk.LocalID, Provider: "todoist", ExternalID: "ext-3", Status: StatusCreated})

	states, err := s.ListTaskStates("todoist", 10)
	if err != nil {
		t.Fatalf("ListTaskStates: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	if states[0].Status != StatusCreated || states[0].ExternalID != "ext-3" {
		t.Errorf("state = %+v", states[0])
	}

	// Unknown provider still lists tasks, with empty status.
	states, err = s.ListTaskStates("notion", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 || states[0].Status != "" {
		t.Errorf("states for other provider = %+v", states)
	}
}

func mustRecord(t *testing.T, s *Store, res SyncResult) {
	t.Helper()
	if err := s.RecordResult(res); err != nil {
		t.Fatalf("RecordResult(%+v): %v", res, err)
	}
}
