package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/cmd"
	"github.com/holdfast-ci/holdfast/pkg/orchestrator"
)

func anchorMain(command *cobra.Command, arguments []string) error {
	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	_, err = orchestrator.Anchor(orchestrator.AnchorOptions{
		MetadataPath: resolveMetadataPath(),
		WorkingDir:   workingDir,
		Log:          newLogger(),
	})
	return err
}

var anchorCommand = &cobra.Command{
	Use:   "anchor",
	Short: "Anchor your build state (recommended CI command)",
	Long: `Anchor performs the complete pre-build workflow in one step:

1. Restores timestamps from the metadata file based on content changes
2. Scans all tracked files for modifications
3. Updates and saves the metadata with the current state

Run this in CI before invoking the build so incremental compilation works
correctly against the cached artifacts.`,
	Run: cmd.Mainify(anchorMain),
}

func init() {
	flags := anchorCommand.Flags()
	flags.SortFlags = false
	flags.BoolP("help", "h", false, "Show help information")
}
