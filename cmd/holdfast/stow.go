package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/cmd"
	"github.com/holdfast-ci/holdfast/pkg/orchestrator"
)

func stowMain(command *cobra.Command, arguments []string) error {
	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	_, err = orchestrator.Stow(orchestrator.StowOptions{
		MetadataPath: resolveMetadataPath(),
		WorkingDir:   workingDir,
		Log:          newLogger(),
	})
	return err
}

var stowCommand = &cobra.Command{
	Use:   "stow",
	Short: "Stow files in the holdfast manifest",
	Long: `Stow scans all tracked files and saves their current state:

- Computes content hashes for change detection
- Records file sizes and modification times
- Saves the manifest to enable future timestamp restoration

Run this after a successful build to update the manifest.`,
	Run: cmd.Mainify(stowMain),
}

func init() {
	flags := stowCommand.Flags()
	flags.SortFlags = false
	flags.BoolP("help", "h", false, "Show help information")
}
