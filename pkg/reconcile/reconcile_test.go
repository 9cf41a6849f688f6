package reconcile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holdfast-ci/holdfast/pkg/chrono"
	"github.com/holdfast-ci/holdfast/pkg/digest"
	"github.com/holdfast-ci/holdfast/pkg/manifest"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("unable to write %s: %v", name, err)
	}
}

func TestClassifyUnchangedModifiedAdded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unchanged.txt", "same content")
	writeFile(t, dir, "modified.txt", "new content")
	writeFile(t, dir, "added.txt", "brand new")

	m := manifest.New()
	size, hash, err := digest.Digest(filepath.Join(dir, "unchanged.txt"))
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	m.Upsert(manifest.FileRecord{Path: "unchanged.txt", Size: size, Hash: hash, MtimeNanos: 100})
	m.Upsert(manifest.FileRecord{Path: "modified.txt", Size: 999, Hash: "stale-hash", MtimeNanos: 200})

	result := Classify(dir, []string{"unchanged.txt", "modified.txt", "added.txt"}, m)

	if len(result.Unchanged) != 1 || result.Unchanged[0].Path != "unchanged.txt" {
		t.Errorf("Unchanged = %v, want [unchanged.txt]", result.Unchanged)
	}
	if len(result.Modified) != 1 || result.Modified[0] != "modified.txt" {
		t.Errorf("Modified = %v, want [modified.txt]", result.Modified)
	}
	if len(result.Added) != 1 || result.Added[0] != "added.txt" {
		t.Errorf("Added = %v, want [added.txt]", result.Added)
	}
	if len(result.Errored) != 0 {
		t.Errorf("Errored = %v, want none", result.Errored)
	}
}

func TestClassifyMissingFileIsErrored(t *testing.T) {
	dir := t.TempDir()
	m := manifest.New()
	// Tracked in the manifest but gone from disk: the size check fails.
	m.Upsert(manifest.FileRecord{Path: "does-not-exist.txt", Size: 5, Hash: "h", MtimeNanos: 100})

	result := Classify(dir, []string{"does-not-exist.txt"}, m)
	if len(result.Errored) != 1 {
		t.Errorf("Errored = %v, want one entry", result.Errored)
	}
}

func TestIssueTimestampAdvancesPastManifest(t *testing.T) {
	m := manifest.New()
	m.Upsert(manifest.FileRecord{Path: "a", MtimeNanos: 5000})

	ts := IssueTimestamp(m)
	if ts <= 5000 {
		t.Errorf("IssueTimestamp() = %d, want > 5000", ts)
	}
}

func TestRestoreTimesAppliesCorrectMtimes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unchanged.txt", "x")
	writeFile(t, dir, "modified.txt", "y")
	writeFile(t, dir, "added.txt", "z")

	oldMtime := chrono.FromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	newMtime := chrono.FromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	result := &ClassifyResult{
		Unchanged: []manifest.FileRecord{{Path: "unchanged.txt", MtimeNanos: oldMtime}},
		Modified:  []string{"modified.txt"},
		Added:     []string{"added.txt"},
	}

	if err := RestoreTimes(dir, result, newMtime); err != nil {
		t.Fatalf("RestoreTimes failed: %v", err)
	}

	checkMtime := func(name string, want uint64) {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Stat(%s) failed: %v", name, err)
		}
		if got := chrono.FromTime(info.ModTime()); got != want {
			t.Errorf("%s mtime = %d, want %d", name, got, want)
		}
	}
	checkMtime("unchanged.txt", oldMtime)
	checkMtime("modified.txt", newMtime)
	checkMtime("added.txt", newMtime)
}

func TestRecordCapturesCurrentState(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "b.txt", "beta")

	m, errCount := Record(dir, []string{"a.txt", "b.txt"})
	if errCount != 0 {
		t.Errorf("errCount = %d, want 0", errCount)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	record, ok := m.Get("a.txt")
	if !ok {
		t.Fatal("a.txt not found in recorded manifest")
	}
	if record.Size != 5 {
		t.Errorf("a.txt size = %d, want 5", record.Size)
	}
}

func TestRecordReportsErrorsForMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, errCount := Record(dir, []string{"missing.txt"})
	if errCount != 1 {
		t.Errorf("errCount = %d, want 1", errCount)
	}
}

func TestPreservationTimestampTakesMax(t *testing.T) {
	existing := manifest.New()
	existingGC := uint64(500)
	existing.LastGCMtimeNanos = &existingGC

	fresh := manifest.New()
	fresh.Upsert(manifest.FileRecord{Path: "a", MtimeNanos: 900})

	got := PreservationTimestamp(existing, fresh)
	if got != 900 {
		t.Errorf("PreservationTimestamp = %d, want 900", got)
	}
}

func TestPreservationTimestampFallsBackToExistingMax(t *testing.T) {
	existing := manifest.New()
	existing.Upsert(manifest.FileRecord{Path: "a", MtimeNanos: 700})

	fresh := manifest.New()

	got := PreservationTimestamp(existing, fresh)
	if got != 700 {
		t.Errorf("PreservationTimestamp = %d, want 700", got)
	}
}

func TestPreservationTimestampFallsBackToNowWithNoState(t *testing.T) {
	fresh := manifest.New()

	before := chrono.FromTime(time.Now())
	got := PreservationTimestamp(nil, fresh)
	after := chrono.FromTime(time.Now())

	if got < before || got > after {
		t.Errorf("PreservationTimestamp = %d, want between %d and %d", got, before, after)
	}
}
