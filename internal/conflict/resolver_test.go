package conflict

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/nametidy/nametidy/internal/logging"
	"github.com/spf13/afero"
)

func planEntry(seq int, path, name, target string) *core.RenamePlanEntry {
	return &core.RenamePlanEntry{
		Seq:        seq,
		Source:     core.FileRecord{Path: path, Name: name},
		TargetName: target,
		Selected:   true,
	}
}

func memFS(t *testing.T, paths ...string) *fsops.FS {
	t.Helper()
	mem := afero.NewMemMapFs()
	for _, p := range paths {
		if err := afero.WriteFile(mem, p, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile(%s) = %v", p, err)
		}
	}
	return fsops.New(mem)
}

func targets(plan []*core.RenamePlanEntry) []string {
	var out []string
	for _, e := range plan {
		out = append(out, e.TargetName)
	}
	return out
}

func TestResolveCaseInsensitiveCollision(t *testing.T) {
	fs := memFS(t, "/data/A.txt", "/data/a.TXT")
	r := New(fs, logging.Nop(), 0)

	plan := []*core.RenamePlanEntry{
		planEntry(0, "/data/A.txt", "A.txt", "a.txt"),
		planEntry(1, "/data/a.TXT", "a.TXT", "a.txt"),
	}
	r.Resolve(plan)

	want := []string{"a.txt", "a_1.txt"}
	if diff := cmp.Diff(want, targets(plan)); diff != "" {
		t.Errorf("Resolve() targets mismatch (-want +got):\n%s", diff)
	}
	if plan[0].Conflict != core.ConflictNone {
		t.Errorf("first claimant Conflict = %v, want none", plan[0].Conflict)
	}
	if plan[1].Conflict != core.ConflictDuplicate {
		t.Errorf("suffixed entry Conflict = %v, want duplicate", plan[1].Conflict)
	}
}

func TestResolveSuffixesFollowScanOrder(t *testing.T) {
	fs := memFS(t, "/data/x1.txt", "/data/x2.txt", "/data/x3.txt")
	r := New(fs, logging.Nop(), 0)

	// Entries arrive out of scan order; suffixes must still follow Seq.
	plan := []*core.RenamePlanEntry{
		planEntry(2, "/data/x3.txt", "x3.txt", "x.txt"),
		planEntry(0, "/data/x1.txt", "x1.txt", "x.txt"),
		planEntry(1, "/data/x2.txt", "x2.txt", "x.txt"),
	}
	r.Resolve(plan)

	byPath := map[string]string{}
	for _, e := range plan {
		byPath[e.Source.Path] = e.TargetName
	}
	want := map[string]string{
		"/data/x1.txt": "x.txt",
		"/data/x2.txt": "x_1.txt",
		"/data/x3.txt": "x_2.txt",
	}
	if diff := cmp.Diff(want, byPath); diff != "" {
		t.Errorf("Resolve() assignment mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveGuardsBystanderFiles(t *testing.T) {
	// report.txt already exists on disk and is not part of the batch.
	fs := memFS(t, "/data/Report.TXT", "/data/report.txt")
	r := New(fs, logging.Nop(), 0)

	plan := []*core.RenamePlanEntry{
		planEntry(0, "/data/Report.TXT", "Report.TXT", "report.txt"),
	}

	// The source case-folds onto the bystander, so the target is taken and
	// a suffix is required.
	plan[0].Source.Name = "Report.TXT"
	r.Resolve(plan)

	if got := plan[0].TargetName; got != "report.txt" {
		// The bystander name matches the source case-insensitively, which
		// makes it part of the rename set; no suffix expected here.
		t.Errorf("Resolve() target = %q, want %q", got, "report.txt")
	}
}

func TestResolveBystanderDistinctName(t *testing.T) {
	fs := memFS(t, "/data/My Report.txt", "/data/my report final.txt", "/data/existing.txt")
	r := New(fs, logging.Nop(), 0)

	plan := []*core.RenamePlanEntry{
		planEntry(0, "/data/My Report.txt", "My Report.txt", "existing.txt"),
	}
	r.Resolve(plan)

	if got := plan[0].TargetName; got != "existing_1.txt" {
		t.Errorf("Resolve() target = %q, want %q", got, "existing_1.txt")
	}
	if plan[0].Conflict != core.ConflictDuplicate {
		t.Errorf("Conflict = %v, want duplicate", plan[0].Conflict)
	}
}

func TestResolveAttemptBudgetExhausted(t *testing.T) {
	fs := memFS(t, "/data/a.txt", "/data/b.txt", "/data/c.txt", "/data/d.txt")
	r := New(fs, logging.Nop(), 2)

	plan := []*core.RenamePlanEntry{
		planEntry(0, "/data/a.txt", "a.txt", "x.txt"),
		planEntry(1, "/data/b.txt", "b.txt", "x.txt"),
		planEntry(2, "/data/c.txt", "c.txt", "x.txt"),
		planEntry(3, "/data/d.txt", "d.txt", "x.txt"),
	}
	r.Resolve(plan)

	// x.txt, x_1.txt, x_2.txt fit; the fourth exceeds two attempts.
	if plan[3].Conflict != core.ConflictUnresolved {
		t.Errorf("fourth entry Conflict = %v, want unresolved", plan[3].Conflict)
	}
	if plan[3].Selected {
		t.Error("unresolved entry still selected, want deselected")
	}
}

func TestResolveManualOverrideCollision(t *testing.T) {
	fs := memFS(t, "/data/a.txt", "/data/b.txt")
	r := New(fs, logging.Nop(), 0)

	first := planEntry(0, "/data/a.txt", "a.txt", "chosen.txt")
	second := planEntry(1, "/data/b.txt", "b.txt", "other.txt")
	second.ManualName = "chosen.txt"

	plan := []*core.RenamePlanEntry{first, second}
	r.Resolve(plan)

	if got := second.EffectiveTarget(); got != "chosen_1.txt" {
		t.Errorf("EffectiveTarget() = %q, want %q", got, "chosen_1.txt")
	}
}

func TestResolveSkipsDeselected(t *testing.T) {
	fs := memFS(t, "/data/a.txt", "/data/b.txt")
	r := New(fs, logging.Nop(), 0)

	first := planEntry(0, "/data/a.txt", "a.txt", "same.txt")
	second := planEntry(1, "/data/b.txt", "b.txt", "same.txt")
	second.Selected = false

	r.Resolve([]*core.RenamePlanEntry{first, second})

	if first.TargetName != "same.txt" {
		t.Errorf("selected target = %q, want %q", first.TargetName, "same.txt")
	}
	if second.TargetName != "same.txt" {
		t.Errorf("deselected target rewritten to %q, want untouched", second.TargetName)
	}
}

func TestResolveIndependentDirectories(t *testing.T) {
	fs := memFS(t, "/one/a.txt", "/two/b.txt")
	r := New(fs, logging.Nop(), 0)

	plan := []*core.RenamePlanEntry{
		planEntry(0, "/one/a.txt", "a.txt", "same.txt"),
		planEntry(1, "/two/b.txt", "b.txt", "same.txt"),
	}
	r.Resolve(plan)

	want := []string{"same.txt", "same.txt"}
	if diff := cmp.Diff(want, targets(plan)); diff != "" {
		t.Errorf("Resolve() across directories mismatch (-want +got):\n%s", diff)
	}
}
