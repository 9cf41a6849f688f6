package logging

import (
	"log"
	"os"
)

func init() {
	// Diagnostics go to standard error so that stdout stays free for any
	// machine-readable output a subcommand might someday produce, and
	// disable the standard logger's own timestamp/prefix decorations since
	// Logger already formats each line itself.
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
}
