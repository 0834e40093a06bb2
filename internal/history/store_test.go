package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nametidy/nametidy/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return store
}

func testRecord(id string, kind core.RecordKind, endedAt time.Time) *core.OperationRecord {
	return &core.OperationRecord{
		ID:         id,
		Kind:       kind,
		Status:     core.BatchCompleted,
		WorkingDir: "/data",
		StartedAt:  endedAt.Add(-time.Second),
		EndedAt:    endedAt,
		Entries: []core.EntryResult{
			{SourcePath: "/data/a.txt", OldName: "a.txt", NewName: "a renamed.txt", Outcome: core.OutcomeSuccess},
		},
	}
}

func TestAppendAndLast(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Append(testRecord("batch-1", core.RecordRename, base)); err != nil {
		t.Fatalf("Append() = %v", err)
	}
	if err := store.Append(testRecord("batch-2", core.RecordRename, base.Add(time.Hour))); err != nil {
		t.Fatalf("Append() = %v", err)
	}

	last, err := store.Last()
	if err != nil {
		t.Fatalf("Last() = %v", err)
	}
	if last == nil || last.ID != "batch-2" {
		t.Errorf("Last() = %+v, want batch-2", last)
	}
}

func TestLastEmpty(t *testing.T) {
	store := newTestStore(t)
	last, err := store.Last()
	if err != nil {
		t.Fatalf("Last() = %v", err)
	}
	if last != nil {
		t.Errorf("Last() = %+v, want nil for empty history", last)
	}
}

func TestGet(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	want := testRecord("batch-xyz", core.RecordRename, base)
	if err := store.Append(want); err != nil {
		t.Fatalf("Append() = %v", err)
	}

	got, err := store.Get("batch-xyz")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	missing, err := store.Get("no-such-id")
	if err != nil {
		t.Fatalf("Get(missing) = %v", err)
	}
	if missing != nil {
		t.Errorf("Get(missing) = %+v, want nil", missing)
	}
}

func TestQuery(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store.Append(testRecord("r1", core.RecordRename, base))
	store.Append(testRecord("u1", core.RecordUndo, base.Add(time.Hour)))
	store.Append(testRecord("r2", core.RecordRename, base.Add(2*time.Hour)))

	all, err := store.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"r2", "u1", "r1"}, ids); diff != "" {
		t.Errorf("Query() newest-first order mismatch (-want +got):\n%s", diff)
	}

	renames, _ := store.Query(Filter{Kind: core.RecordRename})
	if len(renames) != 2 {
		t.Errorf("Query(Kind=rename) = %d records, want 2", len(renames))
	}

	recent, _ := store.Query(Filter{Since: base.Add(30 * time.Minute)})
	if len(recent) != 2 {
		t.Errorf("Query(Since) = %d records, want 2", len(recent))
	}

	limited, _ := store.Query(Filter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "r2" {
		t.Errorf("Query(Limit=1) = %v, want just r2", ids)
	}
}

func TestMarkUndone(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.Append(testRecord("orig", core.RecordRename, base))

	if err := store.MarkUndone("orig", "undo-1"); err != nil {
		t.Fatalf("MarkUndone() = %v", err)
	}
	got, _ := store.Get("orig")
	if got.UndoneBy != "undo-1" {
		t.Errorf("UndoneBy = %q, want undo-1", got.UndoneBy)
	}

	if err := store.MarkUndone("absent", "undo-2"); err == nil {
		t.Error("MarkUndone(absent) = nil, want error")
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	old := testRecord("old", core.RecordRename, time.Now().Add(-48*time.Hour))
	fresh := testRecord("fresh", core.RecordRename, time.Now())
	store.Append(old)
	store.Append(fresh)

	// Cleanup keys off file modification time, so age the old record's file.
	files, _ := filepath.Glob(filepath.Join(dir, "*old.json"))
	if len(files) != 1 {
		t.Fatalf("old record files = %d, want 1", len(files))
	}
	past := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(files[0], past, past); err != nil {
		t.Fatalf("Chtimes() = %v", err)
	}

	if err := store.Cleanup(1); err != nil {
		t.Fatalf("Cleanup() = %v", err)
	}

	if got, _ := store.Get("old"); got != nil {
		t.Error("Cleanup() kept the expired record")
	}
	if got, _ := store.Get("fresh"); got == nil {
		t.Error("Cleanup() removed a record inside the retention window")
	}

	if err := store.Cleanup(0); err != nil {
		t.Errorf("Cleanup(0) = %v, want nil no-op", err)
	}
}

func TestAppendNil(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append(nil); err != nil {
		t.Errorf("Append(nil) = %v, want nil", err)
	}
}
