// Package manifest defines the on-disk record of every tracked file's last
// known size, content digest, and issued timestamp, along with the rolling
// garbage-collection telemetry the auto-cap controller uses to size the
// artifact cache.
package manifest

// CurrentVersion is the schema version this build of holdfast writes. A
// manifest whose Version exceeds this is refused outright; one whose
// Version is lower is migrated forward in memory and rewritten at this
// version on the next save.
const CurrentVersion uint32 = 4

// FileRecord captures everything needed to detect whether a tracked file
// has changed since the last run and to restore its timestamp afterward.
type FileRecord struct {
	// Path is repository-relative and always forward-slash-separated on
	// disk, regardless of host OS, so manifests stay portable across CI
	// runners.
	Path string
	// Size is the file's length in bytes, checked before the digest since
	// a size mismatch is cheaper to detect than a content mismatch.
	Size uint64
	// Hash is the hex-encoded BLAKE3 digest of the file's contents.
	Hash string
	// MtimeNanos is the monotonically increasing timestamp last set on
	// this file, in nanoseconds since the Unix epoch.
	MtimeNanos uint64
}

// CapTrace is a diagnostic record of how the most recent auto-cap
// computation arrived at its suggested size cap.
type CapTrace struct {
	Baseline          uint64
	GrowthBudget      uint64
	ObservedGrowthPct uint64
	ClampReason       string
}

// GcMetrics is the rolling window of garbage-collection statistics the
// auto-cap controller consults to suggest a new size cap. All "recent"
// slices are bounded windows; see pkg/gc for the window size and eviction
// policy.
type GcMetrics struct {
	Runs               uint32
	SeedInitialSize    *uint64
	RecentInitialSizes []uint64
	RecentBytesFreed   []uint64
	LastSuggestedCap   *uint64
	RecentFinalSizes   []uint64
	LastCapTrace       *CapTrace
}

// Manifest is the full persisted state: every tracked file's record, the
// preservation timestamp written by the last stow (LastGCMtimeNanos, which
// heave uses to protect recent artifacts), and the rolling GC telemetry.
type Manifest struct {
	Version          uint32
	Files            map[string]FileRecord
	LastGCMtimeNanos *uint64
	GcMetrics        GcMetrics
}

// New creates an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{
		Version: CurrentVersion,
		Files:   make(map[string]FileRecord),
	}
}

// MaxMtimeNanos returns the largest MtimeNanos across every tracked file,
// and false if the manifest has no files. This is the floor the chrono
// package's monotonic issuance rule builds on.
func (m *Manifest) MaxMtimeNanos() (uint64, bool) {
	var max uint64
	found := false
	for _, record := range m.Files {
		if !found || record.MtimeNanos > max {
			max = record.MtimeNanos
			found = true
		}
	}
	return max, found
}

// Upsert inserts or replaces the record for record.Path.
func (m *Manifest) Upsert(record FileRecord) {
	if m.Files == nil {
		m.Files = make(map[string]FileRecord)
	}
	m.Files[record.Path] = record
}

// Remove deletes the record for path, returning it and true if it was
// present.
func (m *Manifest) Remove(path string) (FileRecord, bool) {
	record, ok := m.Files[path]
	if ok {
		delete(m.Files, path)
	}
	return record, ok
}

// Get returns the record for path, if tracked.
func (m *Manifest) Get(path string) (FileRecord, bool) {
	record, ok := m.Files[path]
	return record, ok
}

// Contains reports whether path is tracked.
func (m *Manifest) Contains(path string) bool {
	_, ok := m.Files[path]
	return ok
}

// Len returns the number of tracked files.
func (m *Manifest) Len() int {
	return len(m.Files)
}

// IsEmpty reports whether the manifest tracks no files.
func (m *Manifest) IsEmpty() bool {
	return len(m.Files) == 0
}
