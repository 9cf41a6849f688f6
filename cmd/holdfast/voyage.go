package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/cmd"
	"github.com/holdfast-ci/holdfast/pkg/logging"
	"github.com/holdfast-ci/holdfast/pkg/orchestrator"
)

var voyageConfiguration struct {
	help               bool
	maxTargetSize      string
	autoMaxTargetSize  bool
	gcDryRun           bool
	gcDebug            bool
	preserveBinary     []string
	gcAgeThresholdDays int
}

func voyageMain(command *cobra.Command, arguments []string) error {
	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	log := newLogger()
	if voyageConfiguration.gcDebug && log.Level() < logging.LevelDebug {
		log = logging.New(logging.LevelDebug)
	}

	_, err = orchestrator.Voyage(orchestrator.VoyageOptions{
		MetadataPath:        resolveMetadataPath(),
		WorkingDir:          workingDir,
		TargetDir:           globalConfiguration.targetDir,
		MaxTargetSize:       voyageConfiguration.maxTargetSize,
		AutoMaxTargetSize:   voyageConfiguration.autoMaxTargetSize,
		DryRun:              voyageConfiguration.gcDryRun,
		PreserveBinaryNames: voyageConfiguration.preserveBinary,
		AgeThresholdDays:    voyageConfiguration.gcAgeThresholdDays,
		Log:                 log,
	})
	return err
}

var voyageCommand = &cobra.Command{
	Use:   "voyage",
	Short: "Full voyage - anchor and heave in one command",
	Long: `Voyage combines the anchor and heave commands for a complete CI
workflow:

1. First runs anchor to restore timestamps and update the manifest
2. Then runs heave to clean up old artifacts and manage disk usage

This is ideal for CI pipelines that need both timestamp management and
disk space control in a single command.`,
	Run: cmd.Mainify(voyageMain),
}

func init() {
	flags := voyageCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&voyageConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&voyageConfiguration.maxTargetSize, "max-target-size", envOrDefault("HOLDFAST_MAX_TARGET_SIZE", ""), "Maximum target directory size (e.g. \"5G\", \"500M\", or bytes)")
	flags.BoolVar(&voyageConfiguration.autoMaxTargetSize, "auto-max-target-size", envBoolOrDefault("HOLDFAST_AUTO_MAX_TARGET_SIZE", false), "Derive the size cap from historical gc telemetry instead of a fixed value")
	flags.BoolVar(&voyageConfiguration.gcDryRun, "dry-run", envBoolOrDefault("HOLDFAST_GC_DRY_RUN", false), "Show what would be deleted without actually deleting")
	flags.BoolVar(&voyageConfiguration.gcDebug, "debug", envBoolOrDefault("HOLDFAST_GC_DEBUG", false), "Enable debug output for garbage collection")
	flags.StringSliceVar(&voyageConfiguration.preserveBinary, "preserve-binary", envStringSlice("HOLDFAST_PRESERVE_BINARY"), "Additional binary names to preserve (may be repeated)")
	flags.IntVar(&voyageConfiguration.gcAgeThresholdDays, "age-threshold-days", envIntOrDefault("HOLDFAST_GC_AGE_THRESHOLD_DAYS", 7), "Age threshold in days for garbage collection")
}
