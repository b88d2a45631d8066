package cache

import (
	"path/filepath"
	"testing"

	"github.com/mklimuk/task-pilot/pkg/task"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	c, err := New(NewRepository(database))
	if err != nil {
		t.Fatalf("failed to load cache: %v", err)
	}
	return c
}

func TestTaskLifecycle(t *testing.T) {
	c := setupTestCache(t)

	tk := task.Task{
		ID:       "t1",
		Content:  "write report",
		Path:     "notes/today.md",
		Labels:   []string{"work"},
		Priority: 3,
	}
	if err := c.AppendTask(tk); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, ok := c.TaskByID("t1")
	if !ok {
		t.Fatal("expected task, got none")
	}
	if got.SyncState != task.StateSynced {
		t.Errorf("sync state = %q, want synced", got.SyncState)
	}
	if got.Content != "write report" {
		t.Errorf("content = %q", got.Content)
	}

	if err := c.CloseTask("t1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ = c.TaskByID("t1")
	if !got.Completed {
		t.Error("expected completed after close")
	}

	if err := c.ReopenTask("t1"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ = c.TaskByID("t1")
	if got.Completed {
		t.Error("expected uncompleted after reopen")
	}

	if err := c.ModifyContent("t1", "new content"); err != nil {
		t.Fatalf("modify content: %v", err)
	}
	if err := c.ModifyDue("t1", "", "2025-04-01T14:30:00"); err != nil {
		t.Fatalf("modify due: %v", err)
	}
	got, _ = c.TaskByID("t1")
	if got.Content != "new content" {
		t.Errorf("content = %q", got.Content)
	}
	if got.DueDatetime != "2025-04-01T14:30:00" || got.DueDate != "" {
		t.Errorf("due = %q / %q", got.DueDate, got.DueDatetime)
	}

	if err := c.DeleteTasks([]string{"t1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.TaskByID("t1"); ok {
		t.Error("expected task gone after delete")
	}
}

func TestPersistenceAcrossReload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := NewDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := database.InitSchema(); err != nil {
		t.Fatal(err)
	}
	repo := NewRepository(database)
	c, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.AppendTask(task.Task{ID: "t1", Content: "persisted", Path: "a.md"}); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordEvents([]task.Event{{ID: "e1", ObjectType: task.ObjectItem, EventType: task.EventCompleted, ObjectID: "t1"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateMetadata("a.md", task.FileMetadata{TaskIDs: []string{"t1"}}); err != nil {
		t.Fatal(err)
	}
	database.Close()

	database2, err := NewDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer database2.Close()
	reloaded, err := New(NewRepository(database2))
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := reloaded.TaskByID("t1"); !ok {
		t.Error("task did not survive reload")
	}
	if !reloaded.IsEventProcessed("e1") {
		t.Error("event did not survive reload")
	}
	meta, ok := reloaded.Metadata("a.md")
	if !ok || meta.Count != 1 {
		t.Errorf("metadata did not survive reload: %+v", meta)
	}
}

func TestEventsAreProcessedOnce(t *testing.T) {
	c := setupTestCache(t)

	evt := task.Event{ID: "e1", ObjectType: task.ObjectItem, EventType: task.EventUpdated, ObjectID: "t1"}
	if c.IsEventProcessed("e1") {
		t.Error("unseen event reported processed")
	}
	if err := c.RecordEvents([]task.Event{evt}); err != nil {
		t.Fatal(err)
	}
	if !c.IsEventProcessed("e1") {
		t.Error("recorded event not reported processed")
	}
	// recording again is a no-op, not an error
	if err := c.RecordEvents([]task.Event{evt}); err != nil {
		t.Fatalf("re-record: %v", err)
	}
}

func TestMetadataCountFollowsIDs(t *testing.T) {
	c := setupTestCache(t)

	if err := c.UpdateMetadata("a.md", task.FileMetadata{TaskIDs: []string{"t1", "t2"}, Count: 99}); err != nil {
		t.Fatal(err)
	}
	meta, _ := c.Metadata("a.md")
	if meta.Count != 2 {
		t.Errorf("count = %d, want 2", meta.Count)
	}
}

func TestRenameFile(t *testing.T) {
	c := setupTestCache(t)

	if err := c.AppendTask(task.Task{ID: "t1", Content: "a", Path: "old.md"}); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateMetadata("old.md", task.FileMetadata{TaskIDs: []string{"t1"}}); err != nil {
		t.Fatal(err)
	}

	if err := c.RenameFile("old.md", "new.md"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, ok := c.Metadata("old.md"); ok {
		t.Error("old metadata still present")
	}
	meta, ok := c.Metadata("new.md")
	if !ok || len(meta.TaskIDs) != 1 {
		t.Fatalf("new metadata missing: %+v", meta)
	}
	tk, _ := c.TaskByID("t1")
	if tk.Path != "new.md" {
		t.Errorf("task path = %q, want new.md", tk.Path)
	}
}

func TestProjectAndSectionLookups(t *testing.T) {
	c := setupTestCache(t)

	if err := c.AddProject(task.Project{ID: "projA", Name: "Alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSection(task.Section{ID: "sec1", Name: "Drafts", ProjectID: "projA"}); err != nil {
		t.Fatal(err)
	}

	if id, ok := c.ProjectIDByName("Alpha"); !ok || id != "projA" {
		t.Errorf("project by name = %q, %v", id, ok)
	}
	if name, ok := c.ProjectNameByID("projA"); !ok || name != "Alpha" {
		t.Errorf("project by id = %q, %v", name, ok)
	}
	if id, ok := c.SectionIDByName("Drafts", "projA"); !ok || id != "sec1" {
		t.Errorf("section by name = %q, %v", id, ok)
	}
	if _, ok := c.SectionIDByName("Drafts", "other"); ok {
		t.Error("section matched wrong project")
	}
}

func TestDefaultProjectFallback(t *testing.T) {
	c := setupTestCache(t)
	c.SetGlobalDefaultProject("projG")

	if got := c.DefaultProjectID("unknown.md"); got != "projG" {
		t.Errorf("global default = %q", got)
	}

	if err := c.UpdateMetadata("a.md", task.FileMetadata{DefaultProjectID: "projD"}); err != nil {
		t.Fatal(err)
	}
	if got := c.DefaultProjectID("a.md"); got != "projD" {
		t.Errorf("document default = %q", got)
	}
}

func TestSnapshotShape(t *testing.T) {
	c := setupTestCache(t)

	if err := c.AppendTask(task.Task{ID: "t1", Content: "a", Path: "a.md"}); err != nil {
		t.Fatal(err)
	}
	if err := c.AddProject(task.Project{ID: "projA", Name: "Alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateMetadata("a.md", task.FileMetadata{TaskIDs: []string{"t1"}}); err != nil {
		t.Fatal(err)
	}

	snap := c.Snapshot()
	if len(snap.Tasks) != 1 || len(snap.Projects) != 1 {
		t.Errorf("snapshot sizes: %d tasks, %d projects", len(snap.Tasks), len(snap.Projects))
	}
	if _, ok := snap.FileMetadata["a.md"]; !ok {
		t.Error("snapshot missing file metadata")
	}
}
