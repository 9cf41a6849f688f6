package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/cmd"
	"github.com/holdfast-ci/holdfast/pkg/orchestrator"
)

func salvageMain(command *cobra.Command, arguments []string) error {
	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	_, err = orchestrator.Salvage(orchestrator.SalvageOptions{
		MetadataPath: resolveMetadataPath(),
		WorkingDir:   workingDir,
		Log:          newLogger(),
	})
	return err
}

var salvageCommand = &cobra.Command{
	Use:   "salvage",
	Short: "Salvage file timestamps from the metadata",
	Long: `Salvage restores timestamps based on the previous build state:

- Unchanged files: restored to their original timestamps
- Modified files: given a new monotonic timestamp
- New files: given a new monotonic timestamp

This prevents unnecessary rebuilds while ensuring changed files are
properly recompiled.`,
	Run: cmd.Mainify(salvageMain),
}

func init() {
	flags := salvageCommand.Flags()
	flags.SortFlags = false
	flags.BoolP("help", "h", false, "Show help information")
}
