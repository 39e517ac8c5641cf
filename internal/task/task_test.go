package task

import (
	"reflect"
	"testing"
)

const sampleMD = `# Meeting notes

- [ ] Follow up with client
- regular bullet
- [x] Send the summary
  - [ ] Nested item
- [ ]
plain text line
`

func TestExtract(t *testing.T) {
	got := Extract(sampleMD, "work", "Work", "Meetings/2026-08-20.md")

	want := []Task{
		{
			LocalID:  "work:Meetings/2026-08-20.md:3",
			Bridge:   "work",
			Vault:    "Work",
			NotePath: "Meetings/2026-08-20.md",
			Line:     3,
			Title:    "Follow up with client",
		},
		{
			LocalID:   "work:Meetings/2026-08-20.md:5",
			Bridge:    "work",
			Vault:     "Work",
			NotePath:  "Meetings/2026-08-20.md",
			Line:      5,
			Title:     "Send the summary",
			Completed: true,
		},
		{
			LocalID:  "work:Meetings/2026-08-20.md:6",
			Bridge:   "work",
			Vault:    "Work",
			NotePath: "Meetings/2026-08-20.md",
			Line:     6,
			Title:    "Nested item",
		},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestExtractStableIDs(t *testing.T) {
	a := Extract(sampleMD, "work", "Work", "note.md")
	b := Extract(sampleMD, "work", "Work", "note.md")
	if !reflect.DeepEqual(a, b) {
		t.Error("re-extraction of identical input produced different tasks")
	}
}

func TestExtractUppercaseMark(t *testing.T) {
	got := Extract("- [X] shouty done\n", "b", "V", "n.md")
	if len(got) != 1 || !got[0].Completed {
		t.Errorf("uppercase X not treated as completed: %+v", got)
	}
}

func TestExtractNone(t *testing.T) {
	if got := Extract("no tasks\n- just a bullet\n", "b", "V", "n.md"); len(got) != 0 {
		t.Errorf("expected no tasks, got %+v", got)
	}
}

func TestLocalIDFormat(t *testing.T) {
	if got := LocalID("personal", "Ideas/App.md", 17); got != "personal:Ideas/App.md:17" {
		t.Errorf("LocalID = %q", got)
	}
}
