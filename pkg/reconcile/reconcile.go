// Package reconcile implements the core cache-invalidation decision: for
// every file Git tracks, decide whether its content actually changed since
// the last run, and drive the filesystem mtimes that a build tool uses to
// decide what to rebuild.
package reconcile

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/holdfast-ci/holdfast/pkg/chrono"
	"github.com/holdfast-ci/holdfast/pkg/digest"
	"github.com/holdfast-ci/holdfast/pkg/manifest"
)

// ClassifyResult partitions a repository's tracked files by how they relate
// to a previously recorded manifest.
type ClassifyResult struct {
	// Unchanged holds the previously recorded record for every file whose
	// size and digest still match. Its original timestamp should be
	// restored.
	Unchanged []manifest.FileRecord
	// Modified holds the repository-relative paths of files that exist in
	// the manifest but whose content has changed. These get a fresh
	// monotonic timestamp.
	Modified []string
	// Added holds paths tracked by Git but absent from the manifest
	// entirely. These also get a fresh monotonic timestamp.
	Added []string
	// Errored holds paths that could not be analyzed (e.g. a read error
	// between discovery and hashing); these are skipped rather than
	// treated as fatal, since a single unreadable file shouldn't abort an
	// entire CI run.
	Errored []string
}

// maxWorkers bounds how many files are hashed concurrently, following the
// same "don't oversubscribe beyond available cores" intent as a bounded
// worker pool; hashing is CPU-bound so there's no benefit beyond NumCPU.
func maxWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// classifyOutcome is the per-file result produced by a Classify worker.
type classifyOutcome struct {
	path     string
	record   manifest.FileRecord
	category category
}

// Classify compares every tracked file against the manifest and sorts it
// into Unchanged, Modified, Added, or Errored. Files are hashed concurrently across a
// bounded worker pool, since content hashing is the dominant per-file cost.
func Classify(repoRoot string, trackedFiles []string, m *manifest.Manifest) *ClassifyResult {
	jobs := make(chan string)
	results := make(chan classifyOutcome, len(trackedFiles))

	var wg sync.WaitGroup
	workers := maxWorkers()
	if workers > len(trackedFiles) {
		workers = len(trackedFiles)
	}
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- classifyOne(repoRoot, path, m)
			}
		}()
	}

	go func() {
		for _, path := range trackedFiles {
			jobs <- path
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &ClassifyResult{}
	for o := range results {
		switch o.category {
		case categoryUnchanged:
			result.Unchanged = append(result.Unchanged, o.record)
		case categoryModified:
			result.Modified = append(result.Modified, o.path)
		case categoryAdded:
			result.Added = append(result.Added, o.path)
		case categoryError:
			result.Errored = append(result.Errored, o.path)
		}
	}
	return result
}

type category int

const (
	categoryUnchanged category = iota
	categoryModified
	categoryAdded
	categoryError
)

func classifyOne(repoRoot, path string, m *manifest.Manifest) classifyOutcome {
	existing, tracked := m.Get(path)
	if !tracked {
		return classifyOutcome{path: path, category: categoryAdded}
	}

	fullPath := filepath.Join(repoRoot, filepath.FromSlash(path))

	size, err := digest.Size(fullPath)
	if err != nil {
		return classifyOutcome{path: path, category: categoryError}
	}
	if size != existing.Size {
		return classifyOutcome{path: path, category: categoryModified}
	}

	_, hash, err := digest.Digest(fullPath)
	if err != nil {
		return classifyOutcome{path: path, category: categoryError}
	}
	if hash != existing.Hash {
		return classifyOutcome{path: path, category: categoryModified}
	}

	return classifyOutcome{path: path, record: existing, category: categoryUnchanged}
}

// IssueTimestamp derives the monotonic timestamp to apply to every modified
// or added file this run, guaranteed to be newer than anything already
// recorded in m.
func IssueTimestamp(m *manifest.Manifest) uint64 {
	maxRecorded, _ := m.MaxMtimeNanos()
	return chrono.IssueTimestamp(maxRecorded)
}

// RestoreTimes applies the classification decision to disk: unchanged files
// get their originally recorded mtime back, while modified and added files
// get newMtime. This is what lets a build tool's own timestamp-based
// incremental logic agree with holdfast's content-based one.
func RestoreTimes(repoRoot string, result *ClassifyResult, newMtime uint64) error {
	for _, record := range result.Unchanged {
		full := filepath.Join(repoRoot, filepath.FromSlash(record.Path))
		if err := chrono.SetFileMtime(full, record.MtimeNanos); err != nil {
			return err
		}
	}
	for _, path := range result.Modified {
		full := filepath.Join(repoRoot, filepath.FromSlash(path))
		if err := chrono.SetFileMtime(full, newMtime); err != nil {
			return err
		}
	}
	for _, path := range result.Added {
		full := filepath.Join(repoRoot, filepath.FromSlash(path))
		if err := chrono.SetFileMtime(full, newMtime); err != nil {
			return err
		}
	}
	return nil
}

// recordOutcome pairs a path with either its freshly computed record or an
// error, for use by Record's worker pool.
type recordOutcome struct {
	record manifest.FileRecord
	err    error
}

// Record scans every tracked file and computes a fresh manifest from its
// current on-disk size, digest, and modification time. This is the "stow"
// half of the pipeline: it doesn't judge what changed, it just captures
// what's there now. The returned error count reflects files that could not
// be analyzed; those are omitted from the manifest rather than aborting the
// whole scan.
func Record(repoRoot string, trackedFiles []string) (*manifest.Manifest, int) {
	jobs := make(chan string)
	results := make(chan recordOutcome, len(trackedFiles))

	var wg sync.WaitGroup
	workers := maxWorkers()
	if workers > len(trackedFiles) {
		workers = len(trackedFiles)
	}
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- recordOne(repoRoot, path)
			}
		}()
	}

	go func() {
		for _, path := range trackedFiles {
			jobs <- path
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	m := manifest.New()
	errors := 0
	for o := range results {
		if o.err != nil {
			errors++
			continue
		}
		m.Upsert(o.record)
	}
	return m, errors
}

func recordOne(repoRoot, path string) recordOutcome {
	fullPath := filepath.Join(repoRoot, filepath.FromSlash(path))

	size, hash, err := digest.Digest(fullPath)
	if err != nil {
		return recordOutcome{err: err}
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return recordOutcome{err: err}
	}

	return recordOutcome{record: manifest.FileRecord{
		Path:       path,
		Size:       size,
		Hash:       hash,
		MtimeNanos: chrono.FromTime(info.ModTime()),
	}}
}

// PreservationTimestamp computes the mtime floor the garbage collector must
// preserve artifacts newer than. It is the later of whatever the previous
// manifest already committed to preserving (its own preservation timestamp,
// falling back to its highest recorded mtime) and the freshest mtime in the
// manifest just recorded — so a GC run never evicts output from the build
// that just finished. With no prior state at all, it falls back to the
// current wall-clock time.
func PreservationTimestamp(existing *manifest.Manifest, fresh *manifest.Manifest) uint64 {
	var existingPreservation uint64
	haveExisting := false
	if existing != nil {
		if existing.LastGCMtimeNanos != nil {
			existingPreservation = *existing.LastGCMtimeNanos
			haveExisting = true
		} else if highWater, ok := existing.MaxMtimeNanos(); ok {
			existingPreservation = highWater
			haveExisting = true
		}
	}

	freshMax, haveFresh := fresh.MaxMtimeNanos()

	switch {
	case haveExisting && haveFresh:
		if existingPreservation > freshMax {
			return existingPreservation
		}
		return freshMax
	case haveExisting:
		return existingPreservation
	case haveFresh:
		return freshMax
	default:
		return chrono.FromTime(time.Now())
	}
}
