package cmd

import (
	"github.com/spf13/cobra"
)

// Mainify wraps a holdfast subcommand entry point (one returning an error
// carrying a holderrors.Kind) and produces a standard Cobra RunE-shaped
// function. It exists so every subcommand (anchor/salvage/stow/bilge/heave/
// voyage) can rely on defer-based cleanup — closing the manifest file,
// flushing the logger — which wouldn't run if the entry point terminated
// the process directly. Errors are handed to Fatal, which renders the
// error's Kind and suggested next step before exiting non-zero.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
