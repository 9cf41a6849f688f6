// Package gc implements the artifact-tree garbage collector: grouping build
// output into per-unit bundles, selecting which to evict under size, age,
// and preservation constraints, and an adaptive controller that derives a
// size cap from rolling telemetry when the caller doesn't supply one.
package gc

import (
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// unitNameRE extracts the unit name and content hash from an artifact
// filename. Capture 1 is the unit name, capture 2 its 16-hex-digit hash.
var unitNameRE = regexp.MustCompile(`^(.+)-([0-9a-f]{16})(\.|$)`)

// profileMarkers are the subdirectories whose presence (any one of them)
// marks a directory as a compiler output profile worth scanning.
var profileMarkers = []string{"build", "deps", ".fingerprint"}

// skipEntries are directory-root files that are never themselves profile
// directories and should not be descended into while searching for them.
var skipEntries = map[string]bool{
	"CACHEDIR.TAG":     true,
	".rustc_info.json": true,
}

// Member is one filesystem entry belonging to a Bundle: either a regular
// file (with a real size and mtime) or a directory (zero size, zero mtime,
// kept only so it gets removed alongside its contents).
type Member struct {
	Path  string
	Size  uint64
	Mtime time.Time
	IsDir bool
}

// Bundle is the atomic unit of eviction: every filesystem entry belonging to
// one compilation unit, identified by (Name, Hash) parsed from its
// artifact filenames.
type Bundle struct {
	Name        string
	Hash        string
	Members     []Member
	TotalSize   uint64
	NewestMtime time.Time
}

// key identifies a bundle uniquely within one profile directory.
type key struct{ name, hash string }

// FindProfileDirectories walks targetDir looking for every subtree that
// looks like a compiler output profile: one containing at least one of
// build/, deps/, or .fingerprint/. If targetDir itself qualifies, the walk
// stops there rather than descending further.
func FindProfileDirectories(targetDir string) ([]string, error) {
	info, err := os.Stat(targetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	if isProfileDirectory(targetDir) {
		return []string{targetDir}, nil
	}

	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil, err
	}

	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if skipEntries[entry.Name()] {
			continue
		}
		path := filepath.Join(targetDir, entry.Name())
		if isProfileDirectory(path) {
			profiles = append(profiles, path)
			continue
		}
		sub, err := FindProfileDirectories(path)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, sub...)
	}
	return profiles, nil
}

func isProfileDirectory(path string) bool {
	for _, marker := range profileMarkers {
		if info, err := os.Stat(filepath.Join(path, marker)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// ScanProfile groups a single profile directory's artifacts into bundles.
// Fingerprint directories seed a bundle per (name, hash); files under
// deps/ and build/ merge into the bundle with the matching identity, or
// form their own singleton bundle when no fingerprint entry claimed that
// identity first.
func ScanProfile(profileDir string) ([]*Bundle, error) {
	bundles := make(map[key]*Bundle)

	fingerprintDir := filepath.Join(profileDir, ".fingerprint")
	if info, err := os.Stat(fingerprintDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(fingerprintDir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			path := filepath.Join(fingerprintDir, entry.Name())
			name, hash, ok := parseUnitIdentity(entry.Name())
			if !ok {
				continue
			}
			k := key{name, hash}
			b := bundles[k]
			if b == nil {
				b = &Bundle{Name: name, Hash: hash}
				bundles[k] = b
			}
			if err := addArtifact(path, b); err != nil {
				return nil, err
			}
		}
	}

	for _, sub := range []string{"deps", "build"} {
		dir := filepath.Join(profileDir, sub)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			name, hash, ok := parseUnitIdentity(entry.Name())
			if !ok {
				continue
			}
			k := key{name, hash}
			b := bundles[k]
			if b == nil {
				b = &Bundle{Name: name, Hash: hash}
				bundles[k] = b
			}
			if err := addArtifact(path, b); err != nil {
				return nil, err
			}
		}
	}

	result := make([]*Bundle, 0, len(bundles))
	for _, b := range bundles {
		result = append(result, b)
	}
	return result, nil
}

func parseUnitIdentity(filename string) (name, hash string, ok bool) {
	m := unitNameRE.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// addArtifact folds path (a file or directory) into bundle, recursing into
// directories so every descendant file contributes to TotalSize and
// NewestMtime while the directory entries themselves are kept as
// zero-size, zero-mtime members so they are still deleted.
func addArtifact(path string, bundle *Bundle) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := addArtifact(filepath.Join(path, entry.Name()), bundle); err != nil {
				return err
			}
		}
		bundle.Members = append(bundle.Members, Member{Path: path, IsDir: true})
		return nil
	}

	bundle.TotalSize += uint64(info.Size())
	mtime := info.ModTime()
	if mtime.After(bundle.NewestMtime) {
		bundle.NewestMtime = mtime
	}
	bundle.Members = append(bundle.Members, Member{
		Path:  path,
		Size:  uint64(info.Size()),
		Mtime: mtime,
	})
	return nil
}
