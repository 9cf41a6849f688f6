// Command holdfast manages incremental-build artifact timestamps and disk
// usage for CI pipelines: it restores and records file modification times
// around a content hash so unchanged files never trigger a spurious rebuild,
// and it garbage-collects a build output directory under a size and age
// budget.
package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/pkg/logging"
)

// globalConfiguration holds the flags shared by every subcommand.
var globalConfiguration struct {
	// targetDir is the build output directory that heave/voyage clean and
	// that the default metadata path is derived from.
	targetDir string
	// metadataPath is the manifest file location. When empty, it defaults
	// to <target-dir>/holdfast.manifest.
	metadataPath string
	// verbose is the -v repeat count.
	verbose int
	// quiet silences all output, overriding verbose.
	quiet bool
}

// resolveMetadataPath returns the configured metadata path, or
// <target-dir>/holdfast.manifest when none was given.
func resolveMetadataPath() string {
	if globalConfiguration.metadataPath != "" {
		return globalConfiguration.metadataPath
	}
	return filepath.Join(globalConfiguration.targetDir, "holdfast.manifest")
}

// newLogger builds the logger every subcommand's RunE uses, honoring the
// shared verbosity/quiet flags.
func newLogger() *logging.Logger {
	return logging.NewForVerbosity(globalConfiguration.verbose, globalConfiguration.quiet)
}

var rootCommand = &cobra.Command{
	Use:   "holdfast",
	Short: "holdfast reconciles build cache timestamps and garbage-collects build artifacts",
	Run: func(command *cobra.Command, arguments []string) {
		command.Help()
	},
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.SortFlags = false

	flags.StringVar(&globalConfiguration.targetDir, "target-dir", envOrDefault("HOLDFAST_TARGET_DIR", "target"), "Build output directory")
	flags.StringVar(&globalConfiguration.metadataPath, "metadata-path", os.Getenv("HOLDFAST_METADATA_PATH"), "Manifest file path (default <target-dir>/holdfast.manifest)")
	flags.CountVarP(&globalConfiguration.verbose, "verbose", "v", "Increase logging verbosity (may be repeated)")
	flags.BoolVarP(&globalConfiguration.quiet, "quiet", "q", envBoolOrDefault("HOLDFAST_QUIET", false), "Suppress all output")

	if raw := os.Getenv("HOLDFAST_VERBOSE"); raw != "" {
		if n, err := parseVerboseEnv(raw); err == nil {
			globalConfiguration.verbose = n
		}
	}

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		anchorCommand,
		salvageCommand,
		stowCommand,
		bilgeCommand,
		heaveCommand,
		voyageCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
