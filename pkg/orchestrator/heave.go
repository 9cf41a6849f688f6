package orchestrator

import (
	"github.com/holdfast-ci/holdfast/pkg/chrono"
	"github.com/holdfast-ci/holdfast/pkg/gc"
	"github.com/holdfast-ci/holdfast/pkg/logging"
	"github.com/holdfast-ci/holdfast/pkg/manifest"
)

// HeaveOptions configures a heave (garbage collection) run.
type HeaveOptions struct {
	TargetDir           string
	MetadataPath        string
	MaxTargetSize       string
	AutoMaxTargetSize   bool
	DryRun              bool
	PreserveBinaryNames []string
	AgeThresholdDays    int
	Log                 *logging.Logger
}

// HeaveResult summarizes one heave run, including the cap mode that was
// actually used, for the caller to report.
type HeaveResult struct {
	Stats       *gc.Stats
	CapBytes    *uint64
	AutoCapUsed bool
	CapTrace    *manifest.CapTrace
}

// Heave runs garbage collection against TargetDir. When no explicit
// MaxTargetSize is given and AutoMaxTargetSize is enabled, it derives a cap
// from the manifest's rolling GC telemetry before running, then folds this
// run's outcome back into that telemetry for the next invocation.
func Heave(opts HeaveOptions) (*HeaveResult, error) {
	log := opts.Log
	log.Info("heave ho! starting garbage collection")

	var capBytes *uint64
	if opts.MaxTargetSize != "" {
		parsed, err := gc.ParseSize(opts.MaxTargetSize)
		if err != nil {
			return nil, err
		}
		capBytes = &parsed
	}

	loaded, err := manifest.LoadOrReset(opts.MetadataPath, func(msg string) { log.Warn(msg) })
	loadFailed := err != nil
	if loadFailed {
		log.Warnf("failed to load manifest for gc metrics (%v); continuing with defaults", err)
		loaded = manifest.New()
	}

	currentSize, sizeErr := gc.DirectorySize(opts.TargetDir)
	var seedFromCurrent *uint64
	if sizeErr == nil && currentSize > 0 {
		seedFromCurrent = &currentSize
	}

	if loaded.LastGCMtimeNanos != nil {
		log.Debugf("using previous build timestamp for artifact preservation: %d nanos", *loaded.LastGCMtimeNanos)
		if _, saturated := chrono.ToTime(*loaded.LastGCMtimeNanos); saturated {
			log.Warnf("preservation timestamp %d nanos exceeds the representable time range; clamped", *loaded.LastGCMtimeNanos)
		}
	}

	var autoCapUsed bool
	var trace *manifest.CapTrace
	if capBytes == nil && opts.AutoMaxTargetSize {
		if suggested, suggestedTrace, ok := gc.SuggestCap(loaded.GcMetrics, seedFromCurrent); ok {
			capBytes = &suggested
			autoCapUsed = true
			trace = &suggestedTrace
			log.Infof("auto-selected max target size: %s (based on cached gc metrics)", gc.FormatSize(suggested))
			log.Debugf("  baseline: %s, growth budget: %s, clamp: %s",
				gc.FormatSize(suggestedTrace.Baseline), gc.FormatSize(suggestedTrace.GrowthBudget), suggestedTrace.ClampReason)
		}
	}

	stats, err := gc.Run(gc.Options{
		TargetDir:           opts.TargetDir,
		CapBytes:            capBytes,
		AgeDays:             opts.AgeThresholdDays,
		DryRun:              opts.DryRun,
		PreserveBinaryNames: opts.PreserveBinaryNames,
		PreservationNanos:   loaded.LastGCMtimeNanos,
		Log:                 log,
	})
	if err != nil {
		return nil, err
	}

	log.Infof("garbage collection complete: initial %s, final %s, freed %s, %d artifact(s), %d unit(s), %d binaries preserved",
		gc.FormatSize(stats.InitialSize), gc.FormatSize(stats.FinalSize), gc.FormatSize(stats.BytesFreed),
		stats.ArtifactsRemoved, stats.UnitsCleaned, stats.BinariesPreserved)
	if opts.DryRun {
		log.Info("(DRY RUN - no files were actually deleted)")
	}

	if opts.MetadataPath != "" && !loadFailed {
		gc.UpdateTelemetry(&loaded.GcMetrics, stats.InitialSize, stats.BytesFreed, stats.FinalSize, capBytes, autoCapUsed, trace)
		if err := manifest.Save(loaded, opts.MetadataPath); err != nil {
			return nil, err
		}
	}

	return &HeaveResult{Stats: stats, CapBytes: capBytes, AutoCapUsed: autoCapUsed, CapTrace: trace}, nil
}

// VoyageOptions configures a voyage: an anchor run followed by a heave run.
type VoyageOptions struct {
	MetadataPath        string
	WorkingDir          string
	TargetDir           string
	MaxTargetSize       string
	AutoMaxTargetSize   bool
	DryRun              bool
	PreserveBinaryNames []string
	AgeThresholdDays    int
	Log                 *logging.Logger
}

// VoyageResult bundles the anchor and heave results a voyage produces.
type VoyageResult struct {
	Anchor *AnchorResult
	Heave  *HeaveResult
}

// Voyage combines Anchor and Heave into a single end-to-end run: restore
// and re-stow timestamps, then reclaim artifact space.
func Voyage(opts VoyageOptions) (*VoyageResult, error) {
	log := opts.Log
	log.Info("setting sail on voyage (anchor + heave)")

	anchorResult, err := Anchor(AnchorOptions{
		MetadataPath: opts.MetadataPath,
		WorkingDir:   opts.WorkingDir,
		Log:          log,
	})
	if err != nil {
		return nil, err
	}

	log.Info("starting garbage collection")
	heaveResult, err := Heave(HeaveOptions{
		TargetDir:           opts.TargetDir,
		MetadataPath:        opts.MetadataPath,
		MaxTargetSize:       opts.MaxTargetSize,
		AutoMaxTargetSize:   opts.AutoMaxTargetSize,
		DryRun:              opts.DryRun,
		PreserveBinaryNames: opts.PreserveBinaryNames,
		AgeThresholdDays:    opts.AgeThresholdDays,
		Log:                 log,
	})
	if err != nil {
		return nil, err
	}

	log.Info("voyage completed successfully")
	return &VoyageResult{Anchor: anchorResult, Heave: heaveResult}, nil
}
