package gc

import (
	"os"
	"path/filepath"
	"testing"
)

func mkfile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestParseUnitIdentity(t *testing.T) {
	cases := []struct {
		name     string
		wantName string
		wantHash string
		wantOK   bool
	}{
		{"libfoo-0123456789abcdef.rlib", "libfoo", "0123456789abcdef", true},
		{"foo-0123456789abcdef", "foo", "0123456789abcdef", true},
		{"no-hash-here.txt", "", "", false},
		{"short-abcd.rlib", "", "", false},
	}
	for _, c := range cases {
		name, hash, ok := parseUnitIdentity(c.name)
		if ok != c.wantOK {
			t.Errorf("parseUnitIdentity(%q) ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if ok && (name != c.wantName || hash != c.wantHash) {
			t.Errorf("parseUnitIdentity(%q) = (%q, %q), want (%q, %q)", c.name, name, hash, c.wantName, c.wantHash)
		}
	}
}

func TestFindProfileDirectoriesDetectsTargetRoot(t *testing.T) {
	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "build", "marker"), "x")

	profiles, err := FindProfileDirectories(dir)
	if err != nil {
		t.Fatalf("FindProfileDirectories failed: %v", err)
	}
	if len(profiles) != 1 || profiles[0] != dir {
		t.Errorf("profiles = %v, want [%s]", profiles, dir)
	}
}

func TestFindProfileDirectoriesDescendsWhenRootIsNotOne(t *testing.T) {
	dir := t.TempDir()
	debugDir := filepath.Join(dir, "target", "debug")
	releaseDir := filepath.Join(dir, "target", "release")
	mkfile(t, filepath.Join(debugDir, "deps", "marker"), "x")
	mkfile(t, filepath.Join(releaseDir, ".fingerprint", "marker"), "x")

	profiles, err := FindProfileDirectories(filepath.Join(dir, "target"))
	if err != nil {
		t.Fatalf("FindProfileDirectories failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Errorf("profiles = %v, want 2 entries", profiles)
	}
}

func TestFindProfileDirectoriesMissingPathReturnsEmpty(t *testing.T) {
	profiles, err := FindProfileDirectories(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("FindProfileDirectories failed: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("profiles = %v, want none", profiles)
	}
}

func TestScanProfileGroupsArtifactsByIdentity(t *testing.T) {
	profileDir := t.TempDir()
	hash := "0123456789abcdef"
	mkfile(t, filepath.Join(profileDir, ".fingerprint", "foo-"+hash), "fp")
	mkfile(t, filepath.Join(profileDir, "deps", "libfoo-"+hash+".rlib"), "rlib-bytes")
	mkfile(t, filepath.Join(profileDir, "build", "foo-"+hash, "output"), "build-output")
	// Unrelated unit with no fingerprint entry: still gets its own bundle.
	otherHash := "fedcba9876543210"
	mkfile(t, filepath.Join(profileDir, "deps", "libbar-"+otherHash+".rlib"), "other")

	bundles, err := ScanProfile(profileDir)
	if err != nil {
		t.Fatalf("ScanProfile failed: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("len(bundles) = %d, want 2", len(bundles))
	}

	var foo, bar *Bundle
	for _, b := range bundles {
		switch b.Name {
		case "foo":
			foo = b
		case "libbar":
			bar = b
		}
	}
	if foo == nil {
		t.Fatal("missing foo bundle")
	}
	if foo.Hash != hash {
		t.Errorf("foo.Hash = %q, want %q", foo.Hash, hash)
	}
	if foo.TotalSize == 0 {
		t.Error("foo.TotalSize = 0, want > 0")
	}
	// fingerprint file + rlib + build-output file + build unit directory member.
	if len(foo.Members) < 3 {
		t.Errorf("len(foo.Members) = %d, want at least 3", len(foo.Members))
	}

	if bar == nil {
		t.Fatal("missing bar bundle (unclaimed identity should still form its own bundle)")
	}
}

func TestScanProfileNoFingerprintDirIsNotAnError(t *testing.T) {
	profileDir := t.TempDir()
	mkfile(t, filepath.Join(profileDir, "deps", "libfoo-0123456789abcdef.rlib"), "x")

	bundles, err := ScanProfile(profileDir)
	if err != nil {
		t.Fatalf("ScanProfile failed: %v", err)
	}
	if len(bundles) != 1 {
		t.Errorf("len(bundles) = %d, want 1", len(bundles))
	}
}
