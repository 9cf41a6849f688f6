package gc

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
	"github.com/holdfast-ci/holdfast/pkg/logging"
	"github.com/holdfast-ci/holdfast/pkg/manifest"
)

// miscDirectories are bulk-deletable with no selection logic: they hold
// derived output with no preservation semantics of their own.
var miscDirectories = []string{"doc", "package", "tmp"}

// Stats summarizes one GC invocation.
type Stats struct {
	InitialSize       uint64
	FinalSize         uint64
	BytesFreed        uint64
	ArtifactsRemoved  int
	UnitsCleaned      int
	BinariesPreserved int
}

// Options configures one GC run. CapBytes, when non-nil, is the resolved
// size cap to enforce (explicit or auto-suggested — resolving which is the
// caller's job, since only the caller holds the loaded manifest).
type Options struct {
	TargetDir           string
	CapBytes            *uint64
	AgeDays             int
	DryRun              bool
	PreserveBinaryNames []string
	PreservationNanos   *uint64
	Log                 *logging.Logger
}

// Run scans TargetDir for compiler-output profile directories, groups
// their artifacts into bundles, selects bundles to evict under the
// configured size/age/preservation rules, deletes them (unless DryRun),
// and bulk-removes the ancillary doc/package/tmp directories. Every delete
// path tolerates "already gone" so a partially-cleaned tree from an
// earlier interrupted run never causes this run to fail.
func Run(opts Options) (*Stats, error) {
	runID := uuid.New().String()
	log := opts.Log
	log.Debugf("gc run %s: starting in %s", runID, opts.TargetDir)

	stats := &Stats{}

	initial, err := directorySize(opts.TargetDir)
	if err != nil {
		return nil, holderrors.Gc("failed to measure initial artifact tree size", err)
	}
	stats.InitialSize = initial

	preserveNames := make(map[string]bool, len(opts.PreserveBinaryNames))
	for _, name := range opts.PreserveBinaryNames {
		preserveNames[name] = true
	}

	profileDirs, err := FindProfileDirectories(opts.TargetDir)
	if err != nil {
		return nil, holderrors.Gc("failed to enumerate profile directories", err)
	}

	for _, profileDir := range profileDirs {
		log.Debugf("gc run %s: cleaning profile directory %s", runID, profileDir)
		if err := cleanProfileDirectory(profileDir, opts, preserveNames, stats, log); err != nil {
			return nil, err
		}
	}

	miscFreed, err := cleanMiscDirectories(opts.TargetDir, opts.DryRun, log)
	if err != nil {
		return nil, holderrors.Gc("failed to clean ancillary directories", err)
	}
	stats.BytesFreed += miscFreed

	final, err := directorySize(opts.TargetDir)
	if err != nil {
		return nil, holderrors.Gc("failed to measure final artifact tree size", err)
	}
	stats.FinalSize = final

	log.Infof("gc run %s: freed %s, %d artifact(s) removed across %d unit(s)",
		runID, FormatSize(stats.BytesFreed), stats.ArtifactsRemoved, stats.UnitsCleaned)

	return stats, nil
}

func cleanProfileDirectory(profileDir string, opts Options, preserveNames map[string]bool, global *Stats, log *logging.Logger) error {
	preserved, err := preserveBinaries(profileDir, preserveNames)
	if err != nil {
		return holderrors.Gc("failed to scan for preserved binaries", err)
	}
	global.BinariesPreserved += len(preserved)

	incrementalDir := filepath.Join(profileDir, "incremental")
	if info, err := os.Stat(incrementalDir); err == nil && info.IsDir() {
		size, err := directorySize(incrementalDir)
		if err != nil {
			return holderrors.Gc("failed to measure incremental compilation state", err)
		}
		if !opts.DryRun {
			if err := os.RemoveAll(incrementalDir); err != nil && !os.IsNotExist(err) {
				return holderrors.Gc("failed to remove incremental compilation state", err)
			}
		}
		global.BytesFreed += size
	}

	bundles, err := ScanProfile(profileDir)
	if err != nil {
		return holderrors.Gc("failed to scan artifact bundles", err)
	}

	currentTotal := saturatingSub(global.InitialSize, global.BytesFreed)
	toRemove := Select(bundles, currentTotal, opts.CapBytes, opts.AgeDays, opts.PreservationNanos)

	for _, bundle := range toRemove {
		if isPreservedBundle(bundle, preserved) {
			continue
		}
		if !opts.DryRun {
			if err := removeBundle(bundle); err != nil {
				return holderrors.Gc("failed to remove artifact bundle", err)
			}
		}
		global.BytesFreed += bundle.TotalSize
		global.ArtifactsRemoved += len(bundle.Members)
		global.UnitsCleaned++
		log.Debugf("removing %s-%s (%s)", bundle.Name, bundle.Hash, FormatSize(bundle.TotalSize))
	}

	return nil
}

// preserveBinaries returns every profile-root-level file that is either
// automatically a binary (executable bit set with no extension on Unix;
// .exe on Windows) or explicitly named in the caller's preserve list.
func preserveBinaries(profileDir string, names map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(profileDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var preserved []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(profileDir, entry.Name())
		if names[entry.Name()] {
			preserved = append(preserved, path)
			continue
		}
		if isPlatformBinary(path) {
			preserved = append(preserved, path)
		}
	}
	return preserved, nil
}

func isPreservedBundle(bundle *Bundle, preserved []string) bool {
	if len(preserved) == 0 {
		return false
	}
	for _, member := range bundle.Members {
		for _, p := range preserved {
			if member.Path == p {
				return true
			}
		}
	}
	return false
}

func removeBundle(bundle *Bundle) error {
	for _, member := range bundle.Members {
		if member.IsDir {
			if err := os.RemoveAll(member.Path); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := os.Remove(member.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func cleanMiscDirectories(targetDir string, dryRun bool, log *logging.Logger) (uint64, error) {
	var freed uint64
	for _, name := range miscDirectories {
		dir := filepath.Join(targetDir, name)
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return freed, err
		}
		if !info.IsDir() {
			continue
		}
		size, err := directorySize(dir)
		if err != nil {
			return freed, err
		}
		log.Debugf("removing ancillary directory %s", dir)
		if !dryRun {
			if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
				return freed, err
			}
		}
		freed += size
	}
	return freed, nil
}

// DirectorySize sums the size of every regular file under path,
// recursively. A missing path reports zero rather than an error, since an
// artifact tree that was never created is the common case on a fresh
// runner. Exported so callers (e.g. the orchestrator's auto-cap seeding)
// can measure the current artifact tree without duplicating this walk.
func DirectorySize(path string) (uint64, error) {
	return directorySize(path)
}

func directorySize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return uint64(info.Size()), nil
	}

	var total uint64
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		childSize, err := directorySize(filepath.Join(path, entry.Name()))
		if err != nil {
			return 0, err
		}
		total += childSize
	}
	return total, nil
}

// UpdateTelemetry folds the outcome of one GC run into metrics' rolling
// windows: seed_initial_size is set only the first time, the three
// per-run series append-and-trim to TelemetryWindow entries, and the
// suggested cap/trace are recorded only when auto-cap was actually used.
func UpdateTelemetry(metrics *manifest.GcMetrics, initial, freed, final uint64, capUsed *uint64, autoCapUsed bool, trace *manifest.CapTrace) {
	metrics.Runs++
	if metrics.SeedInitialSize == nil {
		seed := initial
		metrics.SeedInitialSize = &seed
	}
	metrics.RecentInitialSizes = PushBounded(metrics.RecentInitialSizes, initial)
	metrics.RecentBytesFreed = PushBounded(metrics.RecentBytesFreed, freed)
	metrics.RecentFinalSizes = PushBounded(metrics.RecentFinalSizes, final)

	if autoCapUsed && capUsed != nil {
		capValue := *capUsed
		metrics.LastSuggestedCap = &capValue
		metrics.LastCapTrace = trace
	}
}
