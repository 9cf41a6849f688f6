package main

import (
	"github.com/spf13/cobra"

	"github.com/holdfast-ci/holdfast/cmd"
	"github.com/holdfast-ci/holdfast/pkg/orchestrator"
)

func bilgeMain(command *cobra.Command, arguments []string) error {
	return orchestrator.Bilge(resolveMetadataPath(), newLogger())
}

var bilgeCommand = &cobra.Command{
	Use:   "bilge",
	Short: "Bilge out the manifest file",
	Long: `Bilge removes the manifest file, forcing a fresh start on the next run.

Use this when you want to reset timestamp tracking state, the manifest has
become corrupted, or you're troubleshooting incremental build issues.`,
	Run: cmd.Mainify(bilgeMain),
}

func init() {
	flags := bilgeCommand.Flags()
	flags.SortFlags = false
	flags.BoolP("help", "h", false, "Show help information")
}
