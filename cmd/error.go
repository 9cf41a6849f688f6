package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
)

// nextStep names the suggested remediation printed after a holderrors.Error
// of the given kind, when one exists. Kinds with no useful next step (e.g.
// per-file errors already summarized by the caller) map to "".
func nextStep(kind holderrors.Kind) string {
	switch kind {
	case holderrors.ConfigError, holderrors.DeserializationError:
		return "run holdfast bilge and retry"
	case holderrors.RepoNotFound:
		return "run holdfast from within a Git work tree"
	case holderrors.InvalidSizeSpec:
		return "pass a size like 512MiB or 2GiB"
	default:
		return ""
	}
}

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error. When err is a
// holderrors.Error, its Kind is rendered alongside the message and, if one
// applies, a suggested next step is appended on its own line.
func Error(err error) {
	var herr *holderrors.Error
	if errors.As(err, &herr) {
		fmt.Fprintln(os.Stderr, "Error:", fmt.Sprintf("[%s] %v", herr.Kind, err))
		if step := nextStep(herr.Kind); step != "" {
			fmt.Fprintln(os.Stderr, "  ->", step)
		}
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and then terminates the
// process with an error exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}
