package gc

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
)

// ParseSize parses a user-supplied size string for --max-target-size. A
// bare integer is interpreted as a raw byte count; anything else falls
// through to go-humanize's suffix parsing ("5G", "500M", "1024KiB", ...).
func ParseSize(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, holderrors.InvalidSize(raw, "empty size")
	}

	if bytes, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		return bytes, nil
	}

	bytes, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, holderrors.InvalidSize(raw, err.Error())
	}
	return bytes, nil
}

// unitSuffixes mirrors the binary (IEC) units go-humanize's own IBytes
// formatter uses, but FormatSize is hand-rolled rather than delegating so
// the exact one-decimal-place rendering holdfast's log lines depend on
// never shifts under a go-humanize version bump.
var unitSuffixes = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatSize renders bytes as a human-readable IEC size: a plain integer
// byte count below 1 KiB, one decimal place at 1 KiB and above.
func FormatSize(bytes uint64) string {
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(unitSuffixes)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return strconv.FormatUint(bytes, 10) + " " + unitSuffixes[0]
	}
	return strconv.FormatFloat(size, 'f', 1, 64) + " " + unitSuffixes[unit]
}
