//go:build windows

package gc

import "strings"

// isPlatformBinary reports whether path looks like a build binary worth
// preserving: a .exe extension.
func isPlatformBinary(path string) bool {
	return strings.EqualFold(extensionOf(path), ".exe")
}
