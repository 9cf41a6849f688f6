package main

import (
	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/cmd"
	"github.com/holdfast-ci/holdfast/pkg/logging"
	"github.com/holdfast-ci/holdfast/pkg/orchestrator"
)

var heaveConfiguration struct {
	help              bool
	maxTargetSize     string
	autoMaxTargetSize bool
	dryRun            bool
	debug             bool
	preserveBinary    []string
	ageThresholdDays  int
}

func heaveMain(command *cobra.Command, arguments []string) error {
	log := newLogger()
	if heaveConfiguration.debug && log.Level() < logging.LevelDebug {
		log = logging.New(logging.LevelDebug)
	}

	_, err := orchestrator.Heave(orchestrator.HeaveOptions{
		TargetDir:           globalConfiguration.targetDir,
		MetadataPath:        resolveMetadataPath(),
		MaxTargetSize:       heaveConfiguration.maxTargetSize,
		AutoMaxTargetSize:   heaveConfiguration.autoMaxTargetSize,
		DryRun:              heaveConfiguration.dryRun,
		PreserveBinaryNames: heaveConfiguration.preserveBinary,
		AgeThresholdDays:    heaveConfiguration.ageThresholdDays,
		Log:                 log,
	})
	return err
}

var heaveCommand = &cobra.Command{
	Use:   "heave",
	Short: "Heave ho! Clean up old build artifacts",
	Long: `Heave performs garbage collection on build artifacts to reclaim disk
space:

- First ensures the target directory is under the size limit (if specified)
- Then removes artifacts older than the age threshold (default: 7 days)
- Both conditions are always applied together for consistent cleanup
- Always preserves binaries and recent artifacts within the protection window

Artifacts are removed by unit (all related files together) to maintain
build consistency.`,
	Run: cmd.Mainify(heaveMain),
}

func init() {
	flags := heaveCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&heaveConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&heaveConfiguration.maxTargetSize, "max-target-size", envOrDefault("HOLDFAST_MAX_TARGET_SIZE", ""), "Maximum target directory size (e.g. \"5G\", \"500M\", or bytes)")
	flags.BoolVar(&heaveConfiguration.autoMaxTargetSize, "auto-max-target-size", envBoolOrDefault("HOLDFAST_AUTO_MAX_TARGET_SIZE", false), "Derive the size cap from historical gc telemetry instead of a fixed value")
	flags.BoolVar(&heaveConfiguration.dryRun, "dry-run", envBoolOrDefault("HOLDFAST_DRY_RUN", false), "Show what would be deleted without actually deleting")
	flags.BoolVar(&heaveConfiguration.debug, "debug", envBoolOrDefault("HOLDFAST_DEBUG", false), "Enable debug output for garbage collection")
	flags.StringSliceVar(&heaveConfiguration.preserveBinary, "preserve-binary", envStringSlice("HOLDFAST_PRESERVE_BINARY"), "Additional binary names to preserve (may be repeated)")
	flags.IntVar(&heaveConfiguration.ageThresholdDays, "age-threshold-days", envIntOrDefault("HOLDFAST_AGE_THRESHOLD_DAYS", 7), "Age threshold in days for removing artifacts")
}
