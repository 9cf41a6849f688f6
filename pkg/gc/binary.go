package gc

import "path/filepath"

// extensionOf returns path's file extension including the leading dot, or
// "" when it has none.
func extensionOf(path string) string {
	return filepath.Ext(path)
}
