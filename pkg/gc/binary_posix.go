//go:build !windows

package gc

import "os"

// isPlatformBinary reports whether path looks like a build binary worth
// preserving: executable bit set, no file extension.
func isPlatformBinary(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Mode().Perm()&0o111 == 0 {
		return false
	}
	return extensionOf(path) == ""
}
