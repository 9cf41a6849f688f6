// Package orchestrator composes pkg/discovery, pkg/reconcile, pkg/manifest,
// and pkg/gc into holdfast's six caller-surface operations: salvage, stow,
// anchor (salvage+stow), bilge, heave, and voyage (anchor+heave).
package orchestrator

import (
	"os"

	"github.com/holdfast-ci/holdfast/pkg/discovery"
	"github.com/holdfast-ci/holdfast/pkg/holderrors"
	"github.com/holdfast-ci/holdfast/pkg/logging"
	"github.com/holdfast-ci/holdfast/pkg/manifest"
	"github.com/holdfast-ci/holdfast/pkg/reconcile"
)

// SalvageOptions configures a salvage run.
type SalvageOptions struct {
	MetadataPath string
	WorkingDir   string
	Log          *logging.Logger
}

// SalvageResult summarizes one salvage run for the caller to report.
type SalvageResult struct {
	Empty           bool
	FilesAnalyzed   int
	Unchanged       int
	Modified        int
	Added           int
	Errored         int
	SymlinksSkipped int
}

// Salvage restores file timestamps from a previously stowed manifest:
// unchanged files get their recorded timestamp back, modified and new
// files get a fresh monotonic timestamp. A missing or empty manifest is
// not an error — there is simply nothing to restore yet, which is the
// state of every fresh checkout before the first stow.
func Salvage(opts SalvageOptions) (*SalvageResult, error) {
	log := opts.Log
	log.Infof("salvaging timestamps from %s", opts.MetadataPath)

	m, err := manifest.LoadOrReset(opts.MetadataPath, func(msg string) { log.Warn(msg) })
	if err != nil {
		return nil, err
	}

	if m.IsEmpty() {
		log.Info("manifest is empty, nothing to restore")
		return &SalvageResult{Empty: true}, nil
	}

	log.Debugf("manifest: version=%d tracked=%d path=%s", m.Version, m.Len(), opts.MetadataPath)

	result, err := discovery.Discover(opts.WorkingDir)
	if err != nil {
		return nil, err
	}
	if result.SymlinksSkipped > 0 {
		log.Warnf("skipped %d symbolic link(s) (timestamps not needed for symlinks)", result.SymlinksSkipped)
	}

	newMtime := reconcile.IssueTimestamp(m)
	classified := reconcile.Classify(result.Root, result.Files, m)

	if len(classified.Errored) > 0 {
		log.Warnf("failed to analyze %d file(s); they were skipped", len(classified.Errored))
	}

	if err := reconcile.RestoreTimes(result.Root, classified, newMtime); err != nil {
		return nil, err
	}

	log.Infof("timestamp restoration complete: %d analyzed, %d unchanged, %d modified, %d added",
		len(result.Files), len(classified.Unchanged), len(classified.Modified), len(classified.Added))

	return &SalvageResult{
		FilesAnalyzed:   len(result.Files),
		Unchanged:       len(classified.Unchanged),
		Modified:        len(classified.Modified),
		Added:           len(classified.Added),
		Errored:         len(classified.Errored),
		SymlinksSkipped: result.SymlinksSkipped,
	}, nil
}

// StowOptions configures a stow run.
type StowOptions struct {
	MetadataPath string
	WorkingDir   string
	Log          *logging.Logger
}

// StowResult summarizes one stow run for the caller to report.
type StowResult struct {
	FilesTracked    int
	MetadataEntries int
	Errored         int
	SymlinksSkipped int
	MetadataBytes   int64
}

// Stow scans every Git-tracked file, hashes and sizes it, and persists the
// result as the new manifest. The later of the previous manifest's
// preservation timestamp (or, lacking one, its maximum mtime) and the new
// manifest's maximum mtime becomes the preservation timestamp that heave
// will later use to protect this build's artifacts from eviction.
func Stow(opts StowOptions) (*StowResult, error) {
	log := opts.Log
	log.Info("stowing tracked files")

	result, err := discovery.Discover(opts.WorkingDir)
	if err != nil {
		return nil, err
	}
	if result.SymlinksSkipped > 0 {
		log.Infof("skipped %d symbolic link(s) (not stored in manifest)", result.SymlinksSkipped)
	}

	fresh, errCount := reconcile.Record(result.Root, result.Files)
	if errCount > 0 {
		log.Warnf("failed to analyze %d file(s); they were omitted from the manifest", errCount)
	}

	existing, err := manifest.Load(opts.MetadataPath)
	if err != nil {
		if !holderrors.Is(err, holderrors.DeserializationError) {
			return nil, err
		}
		existing = nil
	}

	preservationNanos := reconcile.PreservationTimestamp(existing, fresh)
	fresh.LastGCMtimeNanos = &preservationNanos
	if existing != nil {
		fresh.GcMetrics = existing.GcMetrics
	}

	log.Debugf("preserving build timestamp for gc: %d nanos", preservationNanos)

	if err := manifest.Save(fresh, opts.MetadataPath); err != nil {
		return nil, err
	}

	var metadataBytes int64
	if info, statErr := os.Stat(opts.MetadataPath); statErr == nil {
		metadataBytes = info.Size()
	}

	log.Infof("file scan complete: %d tracked, %d entries, manifest saved to %s (%d bytes)",
		len(result.Files), fresh.Len(), opts.MetadataPath, metadataBytes)

	return &StowResult{
		FilesTracked:    len(result.Files),
		MetadataEntries: fresh.Len(),
		Errored:         errCount,
		SymlinksSkipped: result.SymlinksSkipped,
		MetadataBytes:   metadataBytes,
	}, nil
}

// AnchorOptions configures an anchor run.
type AnchorOptions struct {
	MetadataPath string
	WorkingDir   string
	Log          *logging.Logger
}

// AnchorResult bundles the salvage and stow results an anchor run produces.
type AnchorResult struct {
	Salvage *SalvageResult
	Stow    *StowResult
}

// Anchor is the recommended single entry point for CI use: it restores
// timestamps from whatever manifest already exists, then rescans and
// persists a fresh one, in that order.
func Anchor(opts AnchorOptions) (*AnchorResult, error) {
	opts.Log.Info("anchoring build state")

	salvageResult, err := Salvage(SalvageOptions{
		MetadataPath: opts.MetadataPath,
		WorkingDir:   opts.WorkingDir,
		Log:          opts.Log,
	})
	if err != nil {
		return nil, err
	}

	stowResult, err := Stow(StowOptions{
		MetadataPath: opts.MetadataPath,
		WorkingDir:   opts.WorkingDir,
		Log:          opts.Log,
	})
	if err != nil {
		return nil, err
	}

	opts.Log.Info("build state anchored successfully")
	return &AnchorResult{Salvage: salvageResult, Stow: stowResult}, nil
}

// Bilge removes the manifest file entirely. It is idempotent: removing an
// already-absent manifest is success, not an error.
func Bilge(metadataPath string, log *logging.Logger) error {
	log.Debugf("bilging out manifest at %s", metadataPath)
	if err := manifest.Clean(metadataPath); err != nil {
		return err
	}
	log.Debug("manifest bilged successfully")
	return nil
}
